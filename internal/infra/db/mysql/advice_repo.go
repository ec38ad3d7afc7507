package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
)

// AdviceRepository stores AI advisory results, one row per advise call.
type AdviceRepository struct {
	db *sql.DB
}

func NewAdviceRepository(db *sql.DB) *AdviceRepository {
	return &AdviceRepository{db: db}
}

// Save upserts an advice row. Advice IDs are generated per call, so the
// upsert only matters when an operator replays an event export.
func (r *AdviceRepository) Save(ctx context.Context, a *domain.Advice) error {
	const q = `
INSERT INTO model_scan_advice
(id, tenant_id, scan_id, verdict, result_json, created_at)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
verdict=VALUES(verdict), result_json=VALUES(result_json);
`
	// result_json kolom JSON; jaga supaya selalu valid
	result := a.Result
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		a.ID, stringOrDash(a.TenantID), a.ScanID, stringOrDash(a.Verdict), result, created,
	)
	return err
}

// Paginate lists a tenant's advice newest first.
func (r *AdviceRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Advice, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	const q = `
SELECT id, tenant_id, scan_id, verdict, result_json, created_at
FROM model_scan_advice
WHERE tenant_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Advice
	for rows.Next() {
		var a domain.Advice
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ScanID, &a.Verdict, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// LatestByScan returns the newest advice for one scan, nil when none exists.
func (r *AdviceRepository) LatestByScan(ctx context.Context, tenant string, scanID string) (*domain.Advice, error) {
	const q = `
SELECT id, tenant_id, scan_id, verdict, result_json, created_at
FROM model_scan_advice
WHERE tenant_id=? AND scan_id=?
ORDER BY created_at DESC, id DESC
LIMIT 1;
`
	var a domain.Advice
	err := r.db.QueryRowContext(ctx, q, tenant, scanID).
		Scan(&a.ID, &a.TenantID, &a.ScanID, &a.Verdict, &a.Result, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
