package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"wisefido-risk/internal/models"
)

// Header 数据集 CSV 表头：特征列（固定顺序）+ 标签列
var Header = append(slices.Clone(models.FeatureNames), models.LabelColumn)

// WriteCSV 写出带标签的数据集
func WriteCSV(w io.Writer, records []models.VitalRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(Header))
	for i, r := range records {
		if r.RiskLabel == nil {
			return fmt.Errorf("record %d: %w", i, &models.InvalidRecordError{Field: models.LabelColumn, Missing: true})
		}
		for j, name := range models.FeatureNames {
			v, _ := r.Value(name)
			row[j] = formatFloat(v)
		}
		row[len(row)-1] = formatFloat(*r.RiskLabel)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV 读取数据集；表头不符、单元格无法解析或缺少标签都返回 ArtifactLoadError
// 生理范围校验留给训练阶段
func ReadCSV(r io.Reader) ([]models.VitalRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &models.ArtifactLoadError{Err: errors.New("empty dataset file")}
		}
		return nil, &models.ArtifactLoadError{Err: fmt.Errorf("read header: %w", err)}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if !slices.Equal(header, Header) {
		return nil, &models.ArtifactLoadError{Err: fmt.Errorf("unexpected header %v, expected %v", header, Header)}
	}

	var records []models.VitalRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &models.ArtifactLoadError{Err: fmt.Errorf("line %d: %w", line, err)}
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, &models.ArtifactLoadError{Err: fmt.Errorf("line %d: %w", line, err)}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (models.VitalRecord, error) {
	if len(row) != len(Header) {
		return models.VitalRecord{}, fmt.Errorf("expected %d columns, got %d", len(Header), len(row))
	}

	var rec models.VitalRecord
	for j, name := range models.FeatureNames {
		v, err := parseFloat(row[j])
		if err != nil {
			return models.VitalRecord{}, fmt.Errorf("column %s: %w", name, err)
		}
		rec.Set(name, v)
	}

	raw := strings.TrimSpace(row[len(row)-1])
	if raw == "" {
		return models.VitalRecord{}, fmt.Errorf("column %s: missing label", models.LabelColumn)
	}
	label, err := parseFloat(raw)
	if err != nil {
		return models.VitalRecord{}, fmt.Errorf("column %s: %w", models.LabelColumn, err)
	}
	return rec.WithLabel(label), nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SaveCSV 写入文件（目录不存在时创建）
func SaveCSV(path string, records []models.VitalRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dataset dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadCSV 从文件读取数据集
func LoadCSV(path string) ([]models.VitalRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.ArtifactLoadError{Path: path, Err: err}
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		var ale *models.ArtifactLoadError
		if errors.As(err, &ale) {
			ale.Path = path
		}
		return nil, err
	}
	return records, nil
}
