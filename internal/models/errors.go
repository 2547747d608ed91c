package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData 训练数据量不足
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidRecord 体征缺失或超出生理合理范围
	ErrInvalidRecord = errors.New("invalid record")
	// ErrArtifactLoad 模型/数据集文件缺失、损坏或结构不匹配
	ErrArtifactLoad = errors.New("artifact load failed")
)

// InsufficientDataError 训练集小于最小样本数
type InsufficientDataError struct {
	Got int
	Min int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: got %d records, need at least %d", e.Got, e.Min)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// InvalidRecordError 单条记录非法
type InvalidRecordError struct {
	Field   string
	Value   float64
	Min     float64
	Max     float64
	Missing bool
}

func (e *InvalidRecordError) Error() string {
	if e.Missing {
		return fmt.Sprintf("invalid record: %s is missing", e.Field)
	}
	return fmt.Sprintf("invalid record: %s=%v outside [%v, %v]", e.Field, e.Value, e.Min, e.Max)
}

func (e *InvalidRecordError) Unwrap() error { return ErrInvalidRecord }

// ArtifactLoadError 加载制品失败；Err 为底层原因
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("artifact load failed: %v", e.Err)
	}
	return fmt.Sprintf("artifact load failed (%s): %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrArtifactLoad) 成立，同时保留底层错误链
func (e *ArtifactLoadError) Is(target error) bool { return target == ErrArtifactLoad }
