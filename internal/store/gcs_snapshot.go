package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"teamreport/internal/domain"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// blobObject 单个对象的读写
type blobObject interface {
	ReadAll(ctx context.Context) ([]byte, error)
	WriteAll(ctx context.Context, data []byte) error
}

// errBlobNotExist 对象不存在
var errBlobNotExist = errors.New("blob does not exist")

// GCSSnapshot 以 GCS 对象保存快照文档
type GCSSnapshot struct {
	object blobObject
	now    func() time.Time
}

var _ SnapshotBackend = (*GCSSnapshot)(nil)

// NewGCSClient 创建 GCS 客户端
// 优先使用 ADC，显式提供 credentialsJSON 时使用服务账号 JSON
func NewGCSClient(ctx context.Context, credentialsJSON string) (*storage.Client, error) {
	if strings.TrimSpace(credentialsJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	return storage.NewClient(ctx)
}

// NewGCSSnapshot 创建 GCS 快照后端
func NewGCSSnapshot(client *storage.Client, bucket, object string) *GCSSnapshot {
	return newGCSSnapshot(&gcsObject{handle: client.Bucket(bucket).Object(object)})
}

func newGCSSnapshot(obj blobObject) *GCSSnapshot {
	return &GCSSnapshot{object: obj, now: time.Now}
}

func (s *GCSSnapshot) Name() string { return "gcs" }

func (s *GCSSnapshot) Read(ctx context.Context) ([]domain.ReportRecord, error) {
	data, err := s.object.ReadAll(ctx)
	if err != nil {
		if errors.Is(err, errBlobNotExist) {
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

func (s *GCSSnapshot) Write(ctx context.Context, records []domain.ReportRecord) error {
	data, err := EncodeDocument(records, s.now())
	if err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	if err := s.object.WriteAll(ctx, data); err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	return nil
}

type gcsObject struct {
	handle *storage.ObjectHandle
}

func (o *gcsObject) ReadAll(ctx context.Context) ([]byte, error) {
	r, err := o.handle.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errBlobNotExist
		}
		return nil, fmt.Errorf("open gcs object: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (o *gcsObject) WriteAll(ctx context.Context, data []byte) error {
	w := o.handle.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer: %w", err)
	}
	return nil
}
