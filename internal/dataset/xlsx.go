package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"wisefido-risk/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	datasetSheet = "Dataset"
	summarySheet = "Summary"
)

// SummaryHeader 汇总表表头
var SummaryHeader = []string{"Column", "Count", "Mean", "Std", "Min", "25%", "50%", "75%", "Max"}

// ExportXLSX 生成数据集 Excel 文件：Dataset 表为全部记录，Summary 表为描述统计、分级分布、直方图和相关矩阵
func ExportXLSX(records []models.VitalRecord) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(datasetSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeDatasetSheet(f, records, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummarySheet(f, Summarize(records), headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeDatasetSheet(f *excelize.File, records []models.VitalRecord, headerStyle int) error {
	if err := writeHeader(f, datasetSheet, Header, headerStyle); err != nil {
		return err
	}

	row := make([]any, len(Header))
	for i, r := range records {
		for j, name := range models.FeatureNames {
			row[j], _ = r.Value(name)
		}
		row[len(row)-1] = nil
		if r.RiskLabel != nil {
			row[len(row)-1] = *r.RiskLabel
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(datasetSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(datasetSheet, "A", "G", 24); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	// 冻结表头
	if err := f.SetPanes(datasetSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, s Summary, headerStyle int) error {
	if err := writeHeader(f, summarySheet, SummaryHeader, headerStyle); err != nil {
		return err
	}

	rowIdx := 2
	for _, c := range s.Columns {
		row := []any{c.Column, c.Count, c.Mean, c.Std, c.Min, c.P25, c.P50, c.P75, c.Max}
		if err := setRow(f, summarySheet, rowIdx, row); err != nil {
			return err
		}
		rowIdx++
	}

	// 空一行后写分级分布
	rowIdx++
	if err := setBlockHeader(f, rowIdx, []any{"Status", "Count", "From", "To"}, headerStyle); err != nil {
		return err
	}
	for i, st := range []models.Status{models.StatusSafe, models.StatusWarning, models.StatusCritical} {
		rowIdx++
		row := []any{string(st), s.StatusCounts[st]}
		if i+1 < len(s.RiskBands.Edges) {
			row = append(row, s.RiskBands.Edges[i], s.RiskBands.Edges[i+1])
		}
		if err := setRow(f, summarySheet, rowIdx, row); err != nil {
			return err
		}
	}

	// 直方图：每列一行，依次为各箱计数
	rowIdx += 2
	histHeader := []any{"Histogram", "Min", "Max"}
	for i := 1; i <= HistogramBins; i++ {
		histHeader = append(histHeader, fmt.Sprintf("Bin %d", i))
	}
	if err := setBlockHeader(f, rowIdx, histHeader, headerStyle); err != nil {
		return err
	}
	for _, h := range s.Histograms {
		rowIdx++
		row := []any{h.Column}
		if len(h.Edges) > 0 {
			row = append(row, h.Edges[0], h.Edges[len(h.Edges)-1])
		}
		for _, c := range h.Counts {
			row = append(row, c)
		}
		if err := setRow(f, summarySheet, rowIdx, row); err != nil {
			return err
		}
	}

	if s.Correlation != nil {
		rowIdx += 2
		corrHeader := []any{"Correlation"}
		for _, c := range s.Correlation.Columns {
			corrHeader = append(corrHeader, c)
		}
		if err := setBlockHeader(f, rowIdx, corrHeader, headerStyle); err != nil {
			return err
		}
		for i, c := range s.Correlation.Columns {
			rowIdx++
			row := []any{c}
			for _, v := range s.Correlation.Values[i] {
				row = append(row, v)
			}
			if err := setRow(f, summarySheet, rowIdx, row); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(summarySheet, "A", "A", 26); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

// setBlockHeader 写汇总表中间区块的表头行并加粗
func setBlockHeader(f *excelize.File, row int, values []any, style int) error {
	if err := setRow(f, summarySheet, row, values); err != nil {
		return err
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	end, _ := excelize.CoordinatesToCellName(len(values), row)
	if err := f.SetCellStyle(summarySheet, cell, end, style); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d on %s: %w", row, sheet, err)
	}
	return nil
}

// SaveXLSX 导出 Excel 到文件
func SaveXLSX(path string, records []models.VitalRecord) error {
	data, err := ExportXLSX(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
