package simulator

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"wisefido-risk/internal/models"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat/distuv"
)

// Profile 模拟的患者状态
type Profile string

const (
	ProfileNormal   Profile = "normal"
	ProfileWarning  Profile = "warning"
	ProfileCritical Profile = "critical"
	// ProfileMixed 按数据集的混合比例随机选择状态
	ProfileMixed Profile = "mixed"
)

// DefaultLabelNoise 训练标签噪声幅度（均匀分布 ±0.02）
const DefaultLabelNoise = 0.02

// 固定的 PCG 流参数，保证相同 seed 得到相同序列
const seedStream = 0x9e3779b97f4a7c15

type gaussian struct {
	mu, sigma float64
}

// profileParams 各状态下每项体征的正态分布参数
var profileParams = map[Profile]map[string]gaussian{
	ProfileNormal: {
		models.FeatureHeartRate:        {75, 5},
		models.FeatureSystolicBP:       {120, 8},
		models.FeatureDiastolicBP:      {80, 6},
		models.FeatureOxygenSaturation: {97, 1},
		models.FeatureRespiratoryRate:  {16, 2},
		models.FeatureTemperature:      {36.8, 0.3},
	},
	ProfileWarning: {
		models.FeatureHeartRate:        {100, 10},
		models.FeatureSystolicBP:       {145, 10},
		models.FeatureDiastolicBP:      {95, 8},
		models.FeatureOxygenSaturation: {93, 2},
		models.FeatureRespiratoryRate:  {22, 3},
		models.FeatureTemperature:      {37.8, 0.4},
	},
	ProfileCritical: {
		models.FeatureHeartRate:        {130, 15},
		models.FeatureSystolicBP:       {170, 15},
		models.FeatureDiastolicBP:      {110, 12},
		models.FeatureOxygenSaturation: {88, 3},
		models.FeatureRespiratoryRate:  {30, 4},
		models.FeatureTemperature:      {39.0, 0.6},
	},
}

// profileMix 数据集中各状态所占比例（累计概率顺序与切片顺序一致）
var profileMix = []struct {
	profile Profile
	weight  float64
}{
	{ProfileNormal, 0.45},
	{ProfileWarning, 0.35},
	{ProfileCritical, 0.20},
}

// ParseProfile 解析状态名（空字符串视为 mixed）
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileMixed, nil
	case ProfileNormal, ProfileWarning, ProfileCritical, ProfileMixed:
		return p, nil
	default:
		return "", fmt.Errorf("unknown profile %q", s)
	}
}

// Option 模拟器选项
type Option func(*Synthesizer)

// WithLabelNoise 设置标签噪声幅度（0 表示无噪声）
func WithLabelNoise(amplitude float64) Option {
	return func(s *Synthesizer) {
		if amplitude >= 0 {
			s.labelNoise = amplitude
		}
	}
}

// Synthesizer 生命体征模拟器
// 非并发安全：每个 goroutine 使用独立实例
type Synthesizer struct {
	src        rand.Source
	rng        *rand.Rand
	labelNoise float64
}

// New 创建可复现的模拟器（相同 seed 输出完全一致）
func New(seed int64, opts ...Option) *Synthesizer {
	return newSynthesizer(rand.NewPCG(uint64(seed), seedStream), opts)
}

// NewUnseeded 创建不可复现的模拟器（用于实时采样）
func NewUnseeded(opts ...Option) *Synthesizer {
	return newSynthesizer(rand.NewPCG(rand.Uint64(), uint64(time.Now().UnixNano())), opts)
}

func newSynthesizer(src rand.Source, opts []Option) *Synthesizer {
	s := &Synthesizer{
		src:        src,
		rng:        rand.New(src),
		labelNoise: DefaultLabelNoise,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dataset 生成 n 条带标签的记录
func (s *Synthesizer) Dataset(n int) ([]models.VitalRecord, error) {
	if n <= 0 {
		return nil, fmt.Errorf("dataset size must be positive, got %d", n)
	}

	records := make([]models.VitalRecord, n)
	for i := range records {
		r := s.draw(s.pickProfile())
		records[i] = r.WithLabel(s.label(r))
	}
	return records, nil
}

// Sample 按数据集相同的混合分布生成一条无标签记录
func (s *Synthesizer) Sample() models.VitalRecord {
	return s.draw(s.pickProfile())
}

// SampleProfile 按指定状态生成一条无标签记录；mixed 等价于 Sample
func (s *Synthesizer) SampleProfile(p Profile) models.VitalRecord {
	if p == ProfileMixed || p == "" {
		return s.Sample()
	}
	return s.draw(p)
}

// TimeSeries 生成以 end 结尾、间隔 interval 的 n 个快照（按时间升序）
func (s *Synthesizer) TimeSeries(n int, interval time.Duration, p Profile, end time.Time) []models.Snapshot {
	if n <= 0 {
		return nil
	}
	series := make([]models.Snapshot, n)
	for i := range series {
		series[i] = models.Snapshot{
			SampleID:  uuid.NewString(),
			Profile:   string(p),
			Timestamp: end.Add(-time.Duration(n-1-i) * interval),
			Vitals:    s.SampleProfile(p),
		}
	}
	return series
}

func (s *Synthesizer) pickProfile() Profile {
	u := s.rng.Float64()
	var acc float64
	for _, m := range profileMix {
		acc += m.weight
		if u < acc {
			return m.profile
		}
	}
	return profileMix[len(profileMix)-1].profile
}

// draw 逐项按正态分布采样并截断到生成范围，保证不输出越界值
func (s *Synthesizer) draw(p Profile) models.VitalRecord {
	params, ok := profileParams[p]
	if !ok {
		params = profileParams[ProfileNormal]
	}

	var r models.VitalRecord
	for _, name := range models.FeatureNames {
		g := params[name]
		d := distuv.Normal{Mu: g.mu, Sigma: g.sigma, Src: s.src}
		r.Set(name, models.GenerationBounds[name].Clip(d.Rand()))
	}
	return r
}

func (s *Synthesizer) label(r models.VitalRecord) float64 {
	label := RiskLabel(r)
	if s.labelNoise > 0 {
		noise := distuv.Uniform{Min: -s.labelNoise, Max: s.labelNoise, Src: s.src}
		label += noise.Rand()
	}
	return models.LabelRange.Clip(label)
}

// GenerateDataset 生成可复现的训练数据集
func GenerateDataset(n int, seed int64) ([]models.VitalRecord, error) {
	return New(seed).Dataset(n)
}

// GenerateSample 生成一条不可复现的实时样本
func GenerateSample() models.VitalRecord {
	return NewUnseeded().Sample()
}
