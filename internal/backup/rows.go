// Package backup defines the durable export of a period's live records
// and the verifier that gates archival on it. The artifact is tabular:
// one row per record across all four kinds, tagged by a type column,
// under a fixed header.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"extrato/internal/core"
)

// Header is the fixed artifact header row. A backup whose header
// deviates from this fails verification.
var Header = []string{
	"type", "id", "date", "amount_cents", "client", "artist",
	"method", "category", "payment_id", "percent", "notes",
}

const dateLayout = "2006-01-02"

// Manifest describes one artifact for verification: declared row count
// and content checksum, written beside the export when it is created.
type Manifest struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Rows      int       `json:"rows"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeRows flattens a record set into artifact rows, payments first,
// then sessions, commissions and expenses. Order is stable so the
// checksum is reproducible.
func EncodeRows(rs core.RecordSet) [][]string {
	rows := make([][]string, 0, rs.Counts().Total())
	for _, p := range rs.Payments {
		rows = append(rows, []string{
			string(core.KindPayment),
			strconv.FormatInt(p.ID, 10),
			p.Date.Format(dateLayout),
			strconv.FormatInt(p.Amount.Cents, 10),
			p.ClientName, p.ArtistName, p.Method, "", "", "",
			p.Notes,
		})
	}
	for _, s := range rs.Sessions {
		rows = append(rows, []string{
			string(core.KindSession),
			strconv.FormatInt(s.ID, 10),
			s.Date.Format(dateLayout),
			strconv.FormatInt(s.Amount.Cents, 10),
			s.ClientName, s.ArtistName, "", "", "", "",
			s.Notes,
		})
	}
	for _, c := range rs.Commissions {
		rows = append(rows, []string{
			string(core.KindCommission),
			strconv.FormatInt(c.ID, 10),
			c.Date.Format(dateLayout),
			strconv.FormatInt(c.Amount.Cents, 10),
			"", c.ArtistName, "", "",
			strconv.FormatInt(c.PaymentID, 10),
			strconv.FormatFloat(c.Percent, 'f', -1, 64),
			c.Notes,
		})
	}
	for _, e := range rs.Expenses {
		rows = append(rows, []string{
			string(core.KindExpense),
			strconv.FormatInt(e.ID, 10),
			e.Date.Format(dateLayout),
			strconv.FormatInt(e.Amount.Cents, 10),
			"", "", e.Method, e.Category, "", "",
			e.Notes,
		})
	}
	return rows
}

// ParseRow validates one data row against the header contract and
// returns its record kind. Structural problems (wrong width, unknown
// kind, unparseable id/date/amount, missing commission reference) are
// errors; verification treats any of them as a corrupt artifact.
func ParseRow(row []string) (core.RecordKind, error) {
	if len(row) != len(Header) {
		return "", fmt.Errorf("row has %d columns, want %d", len(row), len(Header))
	}
	kind := core.RecordKind(row[0])
	if !kind.Valid() {
		return "", fmt.Errorf("unknown record type %q", row[0])
	}
	if _, err := strconv.ParseInt(row[1], 10, 64); err != nil {
		return "", fmt.Errorf("bad id %q: %w", row[1], err)
	}
	if _, err := time.Parse(dateLayout, row[2]); err != nil {
		return "", fmt.Errorf("bad date %q: %w", row[2], err)
	}
	if _, err := strconv.ParseInt(row[3], 10, 64); err != nil {
		return "", fmt.Errorf("bad amount %q: %w", row[3], err)
	}
	if kind == core.KindCommission {
		if _, err := strconv.ParseInt(row[8], 10, 64); err != nil {
			return "", fmt.Errorf("bad commission payment reference %q: %w", row[8], err)
		}
		if _, err := strconv.ParseFloat(row[9], 64); err != nil {
			return "", fmt.Errorf("bad commission percent %q: %w", row[9], err)
		}
	}
	return kind, nil
}

// ChecksumRows computes the canonical content checksum: fields joined
// by a unit separator, rows by newline, hashed with SHA-256. Both
// backends and the verifier share this definition.
func ChecksumRows(rows [][]string) string {
	h := sha256.New()
	for _, row := range rows {
		for i, field := range row {
			if i > 0 {
				h.Write([]byte{0x1f})
			}
			h.Write([]byte(field))
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewManifest builds the manifest for a freshly written artifact.
func NewManifest(p core.Period, rows [][]string, createdAt time.Time) Manifest {
	return Manifest{
		Year:      p.Year,
		Month:     p.Month,
		Rows:      len(rows),
		SHA256:    ChecksumRows(rows),
		CreatedAt: createdAt.UTC(),
	}
}
