package postgres

import (
    "context"
    "database/sql"
    "errors"
    "time"

    domain "github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
)

// AdviceRepository stores AI advisory reports on Postgres.
type AdviceRepository struct { db *sql.DB }

func NewAdviceRepository(db *sql.DB) *AdviceRepository { return &AdviceRepository{db: db} }

// Save upserts by advice ID so replayed events stay idempotent.
func (r *AdviceRepository) Save(ctx context.Context, a *domain.Advice) error {
    const q = `
INSERT INTO model_scan_advice
  (id, tenant_id, scan_id, verdict, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  verdict = EXCLUDED.verdict,
  result_json = EXCLUDED.result_json;`

    created := a.CreatedAt
    if created.IsZero() { created = time.Now() }

    _, err := r.db.ExecContext(ctx, q,
        a.ID,
        stringOrDash(a.TenantID),
        a.ScanID,
        stringOrDash(a.Verdict),
        normalizeDetails(a.Result),
        created.UTC(),
    )
    return err
}

// Paginate lists a tenant's advice newest first. Page mulai dari 1.
func (r *AdviceRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Advice, error) {
    if page <= 0 { page = 1 }
    if pageSize <= 0 { pageSize = 20 }

    const q = `
SELECT id, tenant_id, scan_id, verdict, result_json, created_at
FROM model_scan_advice
WHERE tenant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;`

    rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, (page-1)*pageSize)
    if err != nil { return nil, err }
    defer rows.Close()

    var out []*domain.Advice
    for rows.Next() {
        a := new(domain.Advice)
        if err := rows.Scan(&a.ID, &a.TenantID, &a.ScanID, &a.Verdict, &a.Result, &a.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, a)
    }
    return out, rows.Err()
}

// LatestByScan returns the newest advice for one scan, nil when none exists.
func (r *AdviceRepository) LatestByScan(ctx context.Context, tenant string, scanID string) (*domain.Advice, error) {
    const q = `
SELECT id, tenant_id, scan_id, verdict, result_json, created_at
FROM model_scan_advice
WHERE tenant_id=$1 AND scan_id=$2
ORDER BY created_at DESC, id DESC
LIMIT 1;`

    a := new(domain.Advice)
    err := r.db.QueryRowContext(ctx, q, tenant, scanID).Scan(&a.ID, &a.TenantID, &a.ScanID, &a.Verdict, &a.Result, &a.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return a, nil
}
