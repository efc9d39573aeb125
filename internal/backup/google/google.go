// Package google mirrors backup artifacts into a Google Spreadsheet,
// one tab per period plus a manifest tab. It is an off-site alternative
// to the local csvfile backend; the verification contract is identical.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"extrato/internal/backup"
	"extrato/internal/core"
)

const manifestSheet = "Manifests"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var (
	_ backup.ArtifactWriter = (*Client)(nil)
	_ backup.ArtifactReader = (*Client)(nil)
)

// NewFromEnv creates a Sheets-backed artifact store.
// Required: GOOGLE_SPREADSHEET_ID.
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func tabName(p core.Period) string {
	return fmt.Sprintf("Backup %04d-%02d", p.Year, p.Month)
}

// Write creates a period tab holding header plus rows and records the
// manifest. An existing tab means the artifact was already created.
func (c *Client) Write(ctx context.Context, p core.Period, rows [][]string) (backup.Manifest, bool, error) {
	if c.svc == nil {
		return backup.Manifest{}, false, errors.New("sheets service not initialized")
	}

	exists, err := c.tabExists(ctx, tabName(p))
	if err != nil {
		return backup.Manifest{}, false, err
	}
	if exists {
		m, err := c.readManifest(ctx, p)
		if err != nil {
			return backup.Manifest{}, true, fmt.Errorf("existing artifact has no readable manifest: %w", err)
		}
		slog.InfoContext(ctx, "Backup tab already exists",
			"year", p.Year, "month", p.Month, "tab", tabName(p))
		return m, true, nil
	}

	if err := c.addTab(ctx, tabName(p)); err != nil {
		return backup.Manifest{}, false, err
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, toAny(backup.Header))
	for _, row := range rows {
		values = append(values, toAny(row))
	}

	rng := fmt.Sprintf("%s!A1", tabName(p))
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng,
		&gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return backup.Manifest{}, false, fmt.Errorf("write backup rows to %s: %w", tabName(p), err)
	}

	m := backup.NewManifest(p, rows, time.Now())
	if err := c.appendManifest(ctx, m); err != nil {
		return backup.Manifest{}, false, err
	}

	slog.InfoContext(ctx, "Backup artifact mirrored to spreadsheet",
		"year", p.Year, "month", p.Month, "rows", m.Rows, "sha256", m.SHA256)
	return m, false, nil
}

// Open reads a period tab back for verification.
func (c *Client) Open(ctx context.Context, p core.Period) (backup.Artifact, error) {
	if c.svc == nil {
		return backup.Artifact{}, errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:K", tabName(p))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return backup.Artifact{}, fmt.Errorf("%w: read tab %s: %v", backup.ErrNotFound, tabName(p), err)
	}
	if len(resp.Values) == 0 {
		return backup.Artifact{}, fmt.Errorf("artifact tab %s is empty", tabName(p))
	}

	records := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		// The API drops trailing empty cells; restore the fixed width.
		rec := make([]string, len(backup.Header))
		for j := 0; j < len(rec) && j < len(row); j++ {
			rec[j] = fmt.Sprint(row[j])
		}
		records[i] = rec
	}

	m, err := c.readManifest(ctx, p)
	if err != nil {
		return backup.Artifact{}, err
	}

	return backup.Artifact{
		Header:   records[0],
		Rows:     records[1:],
		Manifest: m,
	}, nil
}

func (c *Client) tabExists(ctx context.Context, name string) (bool, error) {
	doc, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sheet := range doc.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) addTab(ctx context.Context, name string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: name},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", name, err)
	}
	return nil
}

// appendManifest stores one manifest per row on the Manifests tab:
// period key in column A, manifest JSON in column B.
func (c *Client) appendManifest(ctx context.Context, m backup.Manifest) error {
	if ok, err := c.tabExists(ctx, manifestSheet); err != nil {
		return err
	} else if !ok {
		if err := c.addTab(ctx, manifestSheet); err != nil {
			return err
		}
	}

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	key := fmt.Sprintf("%04d-%02d", m.Year, m.Month)

	rng := fmt.Sprintf("%s!A:B", manifestSheet)
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng,
		&gsheet.ValueRange{Values: [][]any{{key, string(body)}}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append manifest row: %w", err)
	}
	return nil
}

func (c *Client) readManifest(ctx context.Context, p core.Period) (backup.Manifest, error) {
	rng := fmt.Sprintf("%s!A:B", manifestSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return backup.Manifest{}, fmt.Errorf("read manifests: %w", err)
	}

	key := fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	for _, row := range resp.Values {
		if len(row) < 2 || fmt.Sprint(row[0]) != key {
			continue
		}
		var m backup.Manifest
		if err := json.Unmarshal([]byte(fmt.Sprint(row[1])), &m); err != nil {
			return backup.Manifest{}, fmt.Errorf("parse manifest for %s: %w", key, err)
		}
		return m, nil
	}
	return backup.Manifest{}, fmt.Errorf("no manifest row for %s", key)
}

func toAny(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
