package postgres

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

type ScanRepository struct { db *sql.DB }

func NewScanRepository(db *sql.DB) *ScanRepository { return &ScanRepository{db: db} }

// Create insert scan record baru
func (r *ScanRepository) Create(ctx context.Context, s *domain.ModelScan) error {
    const q = `
INSERT INTO model_scans
(id, tenant_id, owner_id, filename, declared_size, storage_path, status, summary, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`

    summary, err := marshalJSON(s.Summary)
    if err != nil { return fmt.Errorf("encode summary: %w", err) }
    created := s.CreatedAt
    if created.IsZero() { created = time.Now().UTC() }
    updated := s.UpdatedAt
    if updated.IsZero() { updated = created }

    _, err = r.db.ExecContext(ctx, q,
        s.ID, s.TenantID, stringOrDash(s.OwnerID), s.Filename, s.DeclaredSize, s.StoragePath,
        s.Status, summary, created, updated,
    )
    return err
}

// Get by ID + Tenant
func (r *ScanRepository) Get(ctx context.Context, tenant string, id domain.ScanID) (*domain.ModelScan, error) {
    const q = `
SELECT id, tenant_id, owner_id, filename, declared_size, storage_path, status, summary, created_at, updated_at
FROM model_scans
WHERE tenant_id=$1 AND id=$2
LIMIT 1;`
    row := r.db.QueryRowContext(ctx, q, tenant, id)
    s, err := scanRecord(row)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, domain.ErrNotFound }
        return nil, err
    }
    dets, err := r.detections(ctx, s.ID)
    if err != nil { return nil, err }
    s.Detections = dets
    return s, nil
}

// ClaimForScanning: conditional UPDATE, RowsAffected decides ownership
func (r *ScanRepository) ClaimForScanning(ctx context.Context, id domain.ScanID) (bool, error) {
    const q = `
UPDATE model_scans
SET status=$1, updated_at=$2
WHERE id=$3 AND status=$4;`
    res, err := r.db.ExecContext(ctx, q, domain.StatusScanning, time.Now().UTC(), id, domain.StatusQueued)
    if err != nil { return false, err }
    n, err := res.RowsAffected()
    if err != nil { return false, err }
    return n == 1, nil
}

// Update tulis status+summary dan ganti seluruh set detections
func (r *ScanRepository) Update(ctx context.Context, s *domain.ModelScan) error {
    summary, err := marshalJSON(s.Summary)
    if err != nil { return fmt.Errorf("encode summary: %w", err) }

    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer tx.Rollback()

    const upd = `
UPDATE model_scans
SET status=$1, summary=$2, updated_at=$3
WHERE id=$4;`
    if _, err := tx.ExecContext(ctx, upd, s.Status, summary, s.UpdatedAt, s.ID); err != nil {
        return err
    }

    const del = `DELETE FROM model_scan_detections WHERE scan_id=$1;`
    if _, err := tx.ExecContext(ctx, del, s.ID); err != nil {
        return err
    }

    const ins = `
INSERT INTO model_scan_detections
(id, scan_id, ord, threat_type, confidence, severity, description, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
    for i, d := range s.Detections {
        meta, err := marshalJSON(d.Metadata)
        if err != nil { return fmt.Errorf("encode detection metadata: %w", err) }
        if _, err := tx.ExecContext(ctx, ins,
            d.ID, s.ID, i, d.ThreatType, d.Confidence, d.Severity, d.Description, meta, d.CreatedAt,
        ); err != nil {
            return err
        }
    }
    return tx.Commit()
}

// ListByStatus ambil batch tertua dulu, tanpa detections
func (r *ScanRepository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.ModelScan, error) {
    if limit <= 0 { limit = 10 }
    const q = `
SELECT id, tenant_id, owner_id, filename, declared_size, storage_path, status, summary, created_at, updated_at
FROM model_scans
WHERE status=$1 ORDER BY created_at ASC, id ASC
LIMIT $2;`
    rows, err := r.db.QueryContext(ctx, q, status, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    return collectRecords(rows)
}

// Latest scans per tenant, tanpa detections
func (r *ScanRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.ModelScan, error) {
    if limit <= 0 { limit = 20 }
    const q = `
SELECT id, tenant_id, owner_id, filename, declared_size, storage_path, status, summary, created_at, updated_at
FROM model_scans
WHERE tenant_id=$1 ORDER BY created_at DESC, id DESC
LIMIT $2;`
    rows, err := r.db.QueryContext(ctx, q, tenant, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    return collectRecords(rows)
}

// ListForTenant seperti Latest tapi difilter satu status
func (r *ScanRepository) ListForTenant(ctx context.Context, tenant string, status domain.Status, limit int) ([]*domain.ModelScan, error) {
    if limit <= 0 { limit = 20 }
    const q = `
SELECT id, tenant_id, owner_id, filename, declared_size, storage_path, status, summary, created_at, updated_at
FROM model_scans
WHERE tenant_id=$1 AND status=$2 ORDER BY created_at DESC, id DESC
LIMIT $3;`
    rows, err := r.db.QueryContext(ctx, q, tenant, status, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    return collectRecords(rows)
}

// CountByStatus rekap antrian per status. since nol = tanpa window.
func (r *ScanRepository) CountByStatus(ctx context.Context, tenant string, since time.Time) (map[domain.Status]int64, error) {
    q := `
SELECT status, COUNT(*) FROM model_scans
WHERE tenant_id=$1 GROUP BY status;`
    args := []any{tenant}
    if !since.IsZero() {
        q = `
SELECT status, COUNT(*) FROM model_scans
WHERE tenant_id=$1 AND created_at>=$2 GROUP BY status;`
        args = append(args, since.UTC())
    }
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()

    out := make(map[domain.Status]int64)
    for rows.Next() {
        var st domain.Status
        var n int64
        if err := rows.Scan(&st, &n); err != nil { return nil, err }
        out[st] = n
    }
    return out, rows.Err()
}

func (r *ScanRepository) detections(ctx context.Context, id domain.ScanID) ([]domain.ThreatDetection, error) {
    const q = `
SELECT id, scan_id, threat_type, confidence, severity, description, metadata, created_at
FROM model_scan_detections
WHERE scan_id=$1 ORDER BY ord ASC;`
    rows, err := r.db.QueryContext(ctx, q, id)
    if err != nil { return nil, err }
    defer rows.Close()

    var out []domain.ThreatDetection
    for rows.Next() {
        var d domain.ThreatDetection
        var meta sql.NullString
        if err := rows.Scan(&d.ID, &d.ScanID, &d.ThreatType, &d.Confidence, &d.Severity, &d.Description, &meta, &d.CreatedAt); err != nil {
            return nil, err
        }
        if meta.Valid && meta.String != "" {
            if err := json.Unmarshal([]byte(meta.String), &d.Metadata); err != nil {
                return nil, fmt.Errorf("decode detection metadata: %w", err)
            }
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner) (*domain.ModelScan, error) {
    var s domain.ModelScan
    var summary sql.NullString
    if err := row.Scan(
        &s.ID, &s.TenantID, &s.OwnerID, &s.Filename, &s.DeclaredSize, &s.StoragePath,
        &s.Status, &summary, &s.CreatedAt, &s.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    if summary.Valid && summary.String != "" {
        if err := json.Unmarshal([]byte(summary.String), &s.Summary); err != nil {
            return nil, fmt.Errorf("decode summary: %w", err)
        }
    }
    return &s, nil
}

func collectRecords(rows *sql.Rows) ([]*domain.ModelScan, error) {
    var out []*domain.ModelScan
    for rows.Next() {
        s, err := scanRecord(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}
