package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrExtraction 抽取服务调用失败或返回无法解析的内容（可重试）
	ErrExtraction = errors.New("extraction failed")
	// ErrStorageFull 序列化体积超过软阈值，需要导出并清空
	ErrStorageFull = errors.New("storage near full")
	// ErrPersistence 持久化后端失败（网络/权限/容量）
	ErrPersistence = errors.New("persistence failed")
	// ErrUnauthorized 操作员口令错误
	ErrUnauthorized = errors.New("operator passphrase rejected")
	// ErrNotConfirmed 破坏性操作未确认
	ErrNotConfirmed = errors.New("operation not confirmed")
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("report not found")
	// ErrEmptyInput 输入文本为空
	ErrEmptyInput = errors.New("input text is empty")
)

// ExtractionError 抽取失败
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}

// CapacityError 快照写入超过软阈值
type CapacityError struct {
	Size  int // 序列化后的字节数
	Limit int // 软阈值
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("storage near full: payload %d bytes exceeds soft limit %d bytes", e.Size, e.Limit)
}

func (e *CapacityError) Unwrap() error {
	return ErrStorageFull
}

// PersistenceError 后端读写失败
type PersistenceError struct {
	Op  string // read / write / create / delete / subscribe
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Status 面向调用方的状态码
type Status string

const (
	StatusOK                Status = "ok"
	StatusExtractionFailed  Status = "extraction_failed"
	StatusStorageFull       Status = "storage_full"
	StatusPersistenceFailed Status = "persistence_failed"
	StatusUnauthorized      Status = "unauthorized"
	StatusNotConfirmed      Status = "not_confirmed"
	StatusNotFound          Status = "not_found"
	StatusInvalidRequest    Status = "invalid_request"
	StatusCancelled         Status = "cancelled"
	StatusInternal          Status = "internal_error"
)

// StatusOf 将错误归类为状态码
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrStorageFull):
		return StatusStorageFull
	case errors.Is(err, ErrUnauthorized):
		return StatusUnauthorized
	case errors.Is(err, ErrNotConfirmed):
		return StatusNotConfirmed
	case errors.Is(err, ErrExtraction):
		return StatusExtractionFailed
	case errors.Is(err, ErrPersistence):
		return StatusPersistenceFailed
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrEmptyInput):
		return StatusInvalidRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusInternal
	}
}
