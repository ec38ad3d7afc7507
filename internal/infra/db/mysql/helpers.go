package mysql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// stringOrDash returns "-" when the input is empty/whitespace. Beberapa
// kolom NOT NULL; dash lebih enak dibaca daripada string kosong.
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// marshalJSON encodes v for a nullable JSON column; nil stays NULL.
func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

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
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
