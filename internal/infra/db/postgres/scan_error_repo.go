package postgres

import (
    "context"
    "database/sql"
    "encoding/json"
    "strings"
    "time"

    domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scanerrors"
)

// ScanErrorRepository persists scan failures for deployments on Postgres.
// Append-only; rows are never updated.
type ScanErrorRepository struct { db *sql.DB }

func NewScanErrorRepository(db *sql.DB) *ScanErrorRepository { return &ScanErrorRepository{db: db} }

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
    const q = `
INSERT INTO model_scan_errors
  (tenant_id, scan_id, analyzer, phase, message, details_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`

    created := e.CreatedAt
    if created.IsZero() { created = time.Now() }

    _, err := r.db.ExecContext(ctx, q,
        stringOrDash(e.TenantID),
        stringOrDash(e.ScanID),
        stringOrDash(e.Analyzer),
        stringOrDash(string(e.Phase)),
        stringOrDash(e.Message),
        normalizeDetails(e.DetailsJSON),
        created.UTC(),
    )
    return err
}

func (r *ScanErrorRepository) ListByScan(ctx context.Context, tenant string, scanID string, limit int) ([]*domain.ScanError, error) {
    if limit <= 0 { limit = 20 }
    const q = `
SELECT id, tenant_id, scan_id, analyzer, phase, message, details_json, created_at
FROM model_scan_errors
WHERE tenant_id=$1 AND scan_id=$2
ORDER BY created_at DESC, id DESC
LIMIT $3;`

    rows, err := r.db.QueryContext(ctx, q, tenant, scanID, limit)
    if err != nil { return nil, err }
    defer rows.Close()

    var out []*domain.ScanError
    for rows.Next() {
        e := new(domain.ScanError)
        if err := rows.Scan(&e.ID, &e.TenantID, &e.ScanID, &e.Analyzer, &e.Phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, e)
    }
    return out, rows.Err()
}

// normalizeDetails keeps the details_json column valid JSON. Payload yang
// bukan JSON dibungkus, tidak ditolak; ini audit trail.
func normalizeDetails(s string) string {
    if strings.TrimSpace(s) == "" { return "{}" }
    if json.Valid([]byte(s)) { return s }
    b, _ := json.Marshal(map[string]string{"raw": s})
    return string(b)
}
