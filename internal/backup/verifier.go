package backup

import (
	"context"
	"log/slog"

	"extrato/internal/core"
)

// Verifier is the precondition gate in front of every archival run. It
// confirms an artifact exists and is structurally sound; it never
// creates one. Verify returns false instead of an error on any problem
// and logs the specific reason.
type Verifier struct {
	reader ArtifactReader
	live   LiveCounter
}

func NewVerifier(reader ArtifactReader, live LiveCounter) *Verifier {
	return &Verifier{reader: reader, live: live}
}

// Verify reports whether a valid backup artifact exists for the period.
//
// Hard checks: artifact present, header matches the contract, every
// data row parses, manifest row count and checksum match the content.
// Soft check: declared row count roughly agrees with the current live
// count — records may legitimately have changed since the backup, so a
// mismatch only logs a warning.
func (v *Verifier) Verify(ctx context.Context, p core.Period) bool {
	log := slog.With("year", p.Year, "month", p.Month)

	art, err := v.reader.Open(ctx, p)
	if err != nil {
		log.WarnContext(ctx, "Backup verification failed: cannot open artifact", "error", err)
		return false
	}

	if len(art.Header) != len(Header) {
		log.WarnContext(ctx, "Backup verification failed: bad header width",
			"got", len(art.Header), "want", len(Header))
		return false
	}
	for i, col := range Header {
		if art.Header[i] != col {
			log.WarnContext(ctx, "Backup verification failed: header mismatch",
				"column", i, "got", art.Header[i], "want", col)
			return false
		}
	}

	for i, row := range art.Rows {
		if _, err := ParseRow(row); err != nil {
			log.WarnContext(ctx, "Backup verification failed: corrupt row",
				"row", i+1, "error", err)
			return false
		}
	}

	if art.Manifest.Rows != len(art.Rows) {
		log.WarnContext(ctx, "Backup verification failed: manifest row count mismatch",
			"declared", art.Manifest.Rows, "actual", len(art.Rows))
		return false
	}
	if sum := ChecksumRows(art.Rows); sum != art.Manifest.SHA256 {
		log.WarnContext(ctx, "Backup verification failed: checksum mismatch",
			"declared", art.Manifest.SHA256, "actual", sum)
		return false
	}

	if v.live != nil {
		liveCount, err := v.live.CountPeriodRecords(ctx, p)
		if err != nil {
			log.WarnContext(ctx, "Live record count unavailable, skipping consistency check", "error", err)
		} else if liveCount != len(art.Rows) {
			// Best-effort only: live data may have moved since the
			// export was taken.
			log.WarnContext(ctx, "Backup row count differs from live records",
				"backup_rows", len(art.Rows), "live_records", liveCount)
		}
	}

	log.InfoContext(ctx, "Backup artifact verified", "rows", len(art.Rows))
	return true
}
