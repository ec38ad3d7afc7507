package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// FS stores artifacts under a local root directory. Quarantined artifacts
// move to a sibling tree that serving code never reads from.
type FS struct {
	root       string
	quarantine string
}

func NewFS(root, quarantine string) (*FS, error) {
	for _, dir := range []string{root, quarantine} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &FS{root: root, quarantine: quarantine}, nil
}

// resolve maps a storage path onto the root and refuses anything that
// would escape it.
func (s *FS) resolve(base, p string) (string, error) {
	full := filepath.Join(base, filepath.FromSlash(p))
	full = filepath.Clean(full)
	if full != base && !strings.HasPrefix(full, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage path %q escapes root", p)
	}
	return full, nil
}

func (s *FS) Put(ctx context.Context, p string, r io.Reader, size int64) error {
	full, err := s.resolve(s.root, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return err
	}
	return f.Close()
}

func (s *FS) Stat(ctx context.Context, p string) (domain.ArtifactInfo, error) {
	full, err := s.resolve(s.root, p)
	if err != nil {
		return domain.ArtifactInfo{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ArtifactInfo{}, domain.ErrArtifactNotFound
		}
		return domain.ArtifactInfo{}, err
	}
	return domain.ArtifactInfo{Size: info.Size(), Regular: info.Mode().IsRegular()}, nil
}

func (s *FS) ReadPrefix(ctx context.Context, p string, maxBytes int64) ([]byte, error) {
	full, err := s.resolve(s.root, p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrArtifactNotFound
		}
		return nil, err
	}
	defer f.Close()
	if maxBytes <= 0 {
		return io.ReadAll(f)
	}
	return io.ReadAll(io.LimitReader(f, maxBytes))
}

// Isolate moves the artifact into the quarantine tree and drops a reason
// file next to it. Falls back to copy+remove when rename crosses devices.
func (s *FS) Isolate(ctx context.Context, p string, reason string) error {
	src, err := s.resolve(s.root, p)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrArtifactNotFound
		}
		return err
	}
	dst, err := s.resolve(s.quarantine, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if err := copyFile(src, dst); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			return err
		}
	}
	// best-effort audit note alongside the moved artifact
	_ = os.WriteFile(dst+".reason", []byte(reason+"\n"), 0o644)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
