package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scanerrors"
)

// ScanErrorRepository persists the per-scan failure audit trail. Rows are
// append-only; nothing in the pipeline ever updates or deletes them.
type ScanErrorRepository struct {
	db *sql.DB
}

func NewScanErrorRepository(db *sql.DB) *ScanErrorRepository {
	return &ScanErrorRepository{db: db}
}

// Save appends one audit row. Pemanggil sudah memperlakukan ini best-effort,
// jadi tidak ada retry di sini.
func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	const q = `
INSERT INTO model_scan_errors
(tenant_id, scan_id, analyzer, phase, message, details_json, created_at)
VALUES (?,?,?,?,?,?,?);
`
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		stringOrDash(e.TenantID),
		stringOrDash(e.ScanID),
		stringOrDash(e.Analyzer),
		stringOrDash(string(e.Phase)),
		stringOrDash(e.Message),
		ensureJSONObject(e.DetailsJSON),
		created,
	)
	return err
}

// ListByScan returns the newest audit rows of one scan first.
func (r *ScanErrorRepository) ListByScan(ctx context.Context, tenant string, scanID string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, tenant_id, scan_id, analyzer, phase, message, details_json, created_at
FROM model_scan_errors
WHERE tenant_id=? AND scan_id=?
ORDER BY created_at DESC, id DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ScanError
	for rows.Next() {
		var e domain.ScanError
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ScanID, &e.Analyzer, &e.Phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ensureJSONObject keeps the details_json column valid JSON: empty input
// becomes {}, non-JSON input is wrapped as a raw string field.
func ensureJSONObject(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	var js any
	if json.Unmarshal([]byte(s), &js) == nil {
		return s
	}
	b, _ := json.Marshal(map[string]string{"raw": s})
	return string(b)
}
