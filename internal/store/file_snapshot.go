package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"teamreport/internal/domain"
)

// FileSnapshot 本地 JSON 文件快照，也用作远端快照前的本地缓存
type FileSnapshot struct {
	path string
	now  func() time.Time
}

var _ SnapshotBackend = (*FileSnapshot)(nil)

// NewFileSnapshot 创建文件快照后端
func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{path: path, now: time.Now}
}

func (s *FileSnapshot) Name() string { return "file" }

// Path 快照文件路径
func (s *FileSnapshot) Path() string { return s.path }

func (s *FileSnapshot) Read(ctx context.Context) ([]domain.ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.ReportRecord{}, nil
		}
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	records, err := DecodeDocument(data)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	return records, nil
}

// Write 先写临时文件再 rename，避免读到半截文件
func (s *FileSnapshot) Write(ctx context.Context, records []domain.ReportRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeDocument(records, s.now())
	if err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.PersistenceError{Op: "write", Err: fmt.Errorf("create dir %s: %w", dir, err)}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	return nil
}
