package dataset

import (
	"math"
	"slices"

	"wisefido-risk/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnSummary 单列描述统计（count、mean、std、min、四分位数、max）
type ColumnSummary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	Max    float64 `json:"max"`
}

// HistogramBins 每列等宽分箱数
const HistogramBins = 10

// Histogram 单列分箱计数，第 i 箱为 [Edges[i], Edges[i+1])，最后一箱包含最大值
type Histogram struct {
	Column string    `json:"column"`
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// Total 全部箱的计数之和
func (h Histogram) Total() int {
	n := 0
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Correlation 皮尔逊相关矩阵，Values[i][j] 对应 Columns[i] 与 Columns[j]
type Correlation struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// Get 按列名取相关系数
func (c Correlation) Get(a, b string) (float64, bool) {
	i, j := slices.Index(c.Columns, a), slices.Index(c.Columns, b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return c.Values[i][j], true
}

// Summary 数据集概要
type Summary struct {
	Rows         int                   `json:"rows"`
	Columns      []ColumnSummary       `json:"columns"`
	StatusCounts map[models.Status]int `json:"status_counts"`
	// Correlation 特征与标签的相关矩阵，只用有标签的记录；少于两条时为空
	Correlation *Correlation `json:"correlation,omitempty"`
	Histograms  []Histogram  `json:"histograms"`
	// RiskBands 标签按 SAFE / WARNING / CRITICAL 阈值分箱
	RiskBands Histogram `json:"risk_bands"`
}

// Summarize 计算每列统计量和按标签分级的分布；无标签记录不计入标签列和分级
func Summarize(records []models.VitalRecord) Summary {
	s := Summary{
		Rows:         len(records),
		Columns:      make([]ColumnSummary, 0, len(Header)),
		StatusCounts: StatusCounts(records),
		Histograms:   make([]Histogram, 0, len(Header)),
	}

	for _, name := range models.FeatureNames {
		values := make([]float64, 0, len(records))
		for _, r := range records {
			v, _ := r.Value(name)
			values = append(values, v)
		}
		s.Columns = append(s.Columns, describe(name, values))
		s.Histograms = append(s.Histograms, histogram(name, values))
	}

	labels := make([]float64, 0, len(records))
	for _, r := range records {
		if r.RiskLabel != nil {
			labels = append(labels, *r.RiskLabel)
		}
	}
	s.Columns = append(s.Columns, describe(models.LabelColumn, labels))
	s.Histograms = append(s.Histograms, histogram(models.LabelColumn, labels))
	s.RiskBands = riskBands(labels)
	s.Correlation = correlate(records)
	return s
}

// Histogram 按列名查找直方图
func (s Summary) Histogram(name string) (Histogram, bool) {
	for _, h := range s.Histograms {
		if h.Column == name {
			return h, true
		}
	}
	return Histogram{}, false
}

// histogram 在 [min, max] 上等宽分箱
func histogram(name string, values []float64) Histogram {
	h := Histogram{Column: name}
	if len(values) == 0 {
		return h
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	dividers := floats.Span(make([]float64, HistogramBins+1), lo, hi)
	// Span 的末端有舍入误差
	dividers[HistogramBins] = hi
	return binned(h, dividers, sorted)
}

// riskBands 以预警、危急阈值为边界分三箱，上下界放宽到覆盖全部标签
func riskBands(labels []float64) Histogram {
	h := Histogram{Column: models.LabelColumn}
	sorted := slices.Clone(labels)
	slices.Sort(sorted)

	lo, hi := models.LabelRange.Min, models.LabelRange.Max
	if len(sorted) > 0 {
		lo = math.Min(lo, sorted[0])
		hi = math.Max(hi, sorted[len(sorted)-1])
	}
	dividers := []float64{lo, models.WarningThreshold, models.CriticalThreshold, hi}
	return binned(h, dividers, sorted)
}

// binned 调用 stat.Histogram；最高分界要求严格大于最大值，这里上移一个 ulp 使最大值落入最后一箱
func binned(h Histogram, dividers, sorted []float64) Histogram {
	last := len(dividers) - 1
	dividers[last] = math.Nextafter(dividers[last], math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	h.Edges = slices.Clone(dividers)
	h.Edges[last] = math.Nextafter(dividers[last], math.Inf(-1))
	h.Counts = make([]int, len(counts))
	for i, c := range counts {
		h.Counts[i] = int(c)
	}
	return h
}

// correlate 计算特征与标签两两相关系数；常量列的相关系数无定义，记为 0
func correlate(records []models.VitalRecord) *Correlation {
	columns := slices.Clone(Header)
	data := make([][]float64, len(columns))
	for _, r := range records {
		if r.RiskLabel == nil {
			continue
		}
		for i, name := range models.FeatureNames {
			v, _ := r.Value(name)
			data[i] = append(data[i], v)
		}
		data[len(columns)-1] = append(data[len(columns)-1], *r.RiskLabel)
	}
	if len(data[0]) < 2 {
		return nil
	}

	values := make([][]float64, len(columns))
	for i := range columns {
		values[i] = make([]float64, len(columns))
		values[i][i] = 1
	}
	for i := range columns {
		for j := i + 1; j < len(columns); j++ {
			c := stat.Correlation(data[i], data[j], nil)
			if math.IsNaN(c) {
				c = 0
			}
			values[i][j], values[j][i] = c, c
		}
	}
	return &Correlation{Columns: columns, Values: values}
}

// StatusCounts 按标签分级统计（三个等级都会出现在结果中）
func StatusCounts(records []models.VitalRecord) map[models.Status]int {
	counts := map[models.Status]int{
		models.StatusSafe:     0,
		models.StatusWarning:  0,
		models.StatusCritical: 0,
	}
	for _, r := range records {
		if r.RiskLabel == nil {
			continue
		}
		counts[models.Classify(*r.RiskLabel)]++
	}
	return counts
}

// Column 按列名查找
func (s Summary) Column(name string) (ColumnSummary, bool) {
	for _, c := range s.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnSummary{}, false
}

func describe(name string, values []float64) ColumnSummary {
	c := ColumnSummary{Column: name, Count: len(values)}
	if len(values) == 0 {
		return c
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	c.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		c.Std = stat.StdDev(sorted, nil)
	}
	c.Min = floats.Min(sorted)
	c.Max = floats.Max(sorted)
	c.P25 = stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	c.P50 = stat.Quantile(0.50, stat.LinInterp, sorted, nil)
	c.P75 = stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	return c
}
