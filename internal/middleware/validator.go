package middleware

import (
	"fmt"
	"regexp"
	"strings"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// Validasi input yang dipakai handler sebelum menyentuh service layer.

var (
	tenantPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	scanIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
)

// ValidateTenantID checks the tenant slug taken from the URL.
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateScanID accepts UUIDs in either case.
func ValidateScanID(scanID string) error {
	if scanID == "" {
		return fmt.Errorf("scan ID cannot be empty")
	}
	if !scanIDPattern.MatchString(strings.ToLower(scanID)) {
		return fmt.Errorf("invalid scan ID format")
	}
	return nil
}

// ValidateStatus checks a status filter value from a query param.
func ValidateStatus(status string) error {
	if status == "" {
		return nil
	}
	if !domain.Status(status).Valid() {
		return fmt.Errorf("invalid status: %s (allowed: queued, scanning, completed, quarantined, failed)", status)
	}
	return nil
}

// ValidateFilename menolak nama file yang bisa dipakai main-main dengan path.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("filename too long (max 255 chars)")
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return fmt.Errorf("invalid characters in filename")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("path traversal detected")
	}
	return nil
}

// SanitizeString strips NUL and control characters from free-text
// fields (owner ID, filenames) before they reach storage or logs.
// Tab dan newline dibiarkan.
func SanitizeString(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r >= 32 {
			return r
		}
		return -1
	}, input)
	return strings.TrimSpace(cleaned)
}

// ValidateLimit clamps a pagination limit into [1,100], defaulting to 20.
func ValidateLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}
