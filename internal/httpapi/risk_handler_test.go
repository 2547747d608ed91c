package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wisefido-risk/internal/config"
	"wisefido-risk/internal/dataset"
	"wisefido-risk/internal/models"
	"wisefido-risk/internal/monitor"
	"wisefido-risk/internal/repository"
	"wisefido-risk/internal/scorer"
	"wisefido-risk/internal/simulator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	modelOnce  sync.Once
	testModel  *scorer.TrainedModel
	errTrained error
)

func sharedModel(t *testing.T) *scorer.TrainedModel {
	t.Helper()
	modelOnce.Do(func() {
		ds, err := simulator.GenerateDataset(200, 9)
		if err != nil {
			errTrained = err
			return
		}
		cfg := scorer.DefaultTrainConfig()
		cfg.NEstimators = 10
		cfg.MaxDepth = 5
		cfg.CVFolds = 2
		testModel, errTrained = scorer.Fit(ds, cfg)
	})
	require.NoError(t, errTrained)
	return testModel
}

type fakeMonitor struct {
	latest  map[string]*models.Snapshot
	history map[string][]models.Snapshot
	err     error
}

func (f *fakeMonitor) GetLatest(ctx context.Context, bedID string) (*models.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.latest[bedID]
	if !ok {
		return nil, fmt.Errorf("%w for bed: %s", monitor.ErrSnapshotNotFound, bedID)
	}
	return s, nil
}

func (f *fakeMonitor) GetHistory(ctx context.Context, bedID string, limit int64) ([]models.Snapshot, error) {
	h := f.history[bedID]
	if limit > 0 && int64(len(h)) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (f *fakeMonitor) ListBeds(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var beds []string
	for id := range f.latest {
		beds = append(beds, id)
	}
	return beds, nil
}

type fakeLister struct {
	records []repository.ModelRecord
	err     error
	limit   int
}

func (f *fakeLister) List(ctx context.Context, limit int) ([]repository.ModelRecord, error) {
	f.limit = limit
	return f.records, f.err
}

func newTestRouter(deps Deps) http.Handler {
	return NewRouter(config.HTTPConfig{}, deps, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var res Result[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func TestHealth(t *testing.T) {
	m := sharedModel(t)
	w := do(t, newTestRouter(Deps{Model: m}), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	res := decode[HealthResponse](t, w)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.True(t, res.Result.ModelLoaded)
	assert.Equal(t, m.ID(), res.Result.ModelID)
	assert.False(t, res.Result.Monitor)
}

func TestSample(t *testing.T) {
	h := newTestRouter(Deps{})

	for _, profile := range []string{"", "normal", "warning", "critical", "mixed"} {
		w := do(t, h, http.MethodGet, "/api/v1/risk/sample?profile="+profile, "")
		require.Equal(t, http.StatusOK, w.Code, profile)
		res := decode[SampleResponse](t, w)
		assert.NoError(t, res.Result.Vitals.Validate())
		assert.Nil(t, res.Result.Vitals.RiskLabel)
	}

	w := do(t, h, http.MethodGet, "/api/v1/risk/sample?profile=zombie", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ResultError, decode[any](t, w).Code)
}

func TestScore(t *testing.T) {
	m := sharedModel(t)
	h := newTestRouter(Deps{Model: m})

	t.Run("valid", func(t *testing.T) {
		body := `{"heart_rate":75,"blood_pressure_systolic":120,"blood_pressure_diastolic":80,"oxygen_saturation":98,"respiratory_rate":16,"temperature":37}`
		w := do(t, h, http.MethodPost, "/api/v1/risk/score", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		res := decode[ScoreResponse](t, w)
		assert.Equal(t, m.ID(), res.Result.ModelID)
		want, err := scorer.Score(m, simulator.NormalRecord())
		require.NoError(t, err)
		assert.Equal(t, want, res.Result.Assessment)
	})

	t.Run("out of range", func(t *testing.T) {
		body := `{"heart_rate":75,"blood_pressure_systolic":120,"blood_pressure_diastolic":80,"oxygen_saturation":150,"respiratory_rate":16,"temperature":37}`
		w := do(t, h, http.MethodPost, "/api/v1/risk/score", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[any](t, w).Message, "oxygen_saturation")
	})

	t.Run("missing field", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/v1/risk/score", `{"heart_rate":75}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[any](t, w).Message, "missing")
	})

	t.Run("malformed body", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/v1/risk/score", `{"heart_rate":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, h, http.MethodPost, "/api/v1/risk/score", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no model", func(t *testing.T) {
		w := do(t, newTestRouter(Deps{}), http.MethodPost, "/api/v1/risk/score", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestModel(t *testing.T) {
	m := sharedModel(t)
	w := do(t, newTestRouter(Deps{Model: m}), http.MethodGet, "/api/v1/risk/model", "")
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[ModelResponse](t, w)
	assert.Equal(t, m.ID(), res.Result.ModelID)
	assert.Equal(t, scorer.Algorithm, res.Result.Algorithm)
	assert.Equal(t, models.FeatureNames, res.Result.FeatureNames)
	assert.Len(t, res.Result.RankedImportances, len(models.FeatureNames))
	assert.Equal(t, 0.35, res.Result.Thresholds["WARNING"])
	assert.Equal(t, 0.65, res.Result.Thresholds["CRITICAL"])

	w = do(t, newTestRouter(Deps{}), http.MethodGet, "/api/v1/risk/model", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBedMonitor(t *testing.T) {
	a := models.NewRiskAssessment(0.7)
	latest := &models.Snapshot{SampleID: "s3", BedID: "bed-01", Timestamp: time.Now().UTC(), Vitals: simulator.NormalRecord(), Assessment: &a}
	fm := &fakeMonitor{
		latest:  map[string]*models.Snapshot{"bed-01": latest},
		history: map[string][]models.Snapshot{"bed-01": {*latest, {SampleID: "s2"}, {SampleID: "s1"}}},
	}
	h := newTestRouter(Deps{Monitor: fm})

	w := do(t, h, http.MethodGet, "/api/v1/risk/monitor/bed-01?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[MonitorResponse](t, w)
	assert.Equal(t, "bed-01", res.Result.BedID)
	require.NotNil(t, res.Result.Latest)
	assert.Equal(t, models.StatusCritical, res.Result.Latest.Assessment.Status)
	assert.Len(t, res.Result.History, 2)

	w = do(t, h, http.MethodGet, "/api/v1/risk/monitor/bed-99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/risk/monitor", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"bed-01"}, decode[[]string](t, w).Result)

	fm.err = errors.New("redis down")
	w = do(t, h, http.MethodGet, "/api/v1/risk/monitor/bed-01", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(t, newTestRouter(Deps{}), http.MethodGet, "/api/v1/risk/monitor/bed-01", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDatasetSummary(t *testing.T) {
	ds, err := simulator.GenerateDataset(40, 1)
	require.NoError(t, err)
	summary := dataset.Summarize(ds)

	w := do(t, newTestRouter(Deps{Summary: &summary}), http.MethodGet, "/api/v1/risk/dataset/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[dataset.Summary](t, w)
	assert.Equal(t, 40, res.Result.Rows)
	assert.Len(t, res.Result.Columns, len(dataset.Header))

	total := 0
	for _, n := range res.Result.StatusCounts {
		total += n
	}
	assert.Equal(t, 40, total)

	require.NotNil(t, res.Result.Correlation)
	assert.Equal(t, dataset.Header, res.Result.Correlation.Columns)
	require.Len(t, res.Result.Correlation.Values, len(dataset.Header))
	assert.Equal(t, 1.0, res.Result.Correlation.Values[0][0])

	require.Len(t, res.Result.Histograms, len(dataset.Header))
	for _, h := range res.Result.Histograms {
		assert.Equal(t, 40, h.Total(), h.Column)
	}
	assert.Equal(t, []float64{0, models.WarningThreshold, models.CriticalThreshold, 1}, res.Result.RiskBands.Edges)
	assert.Equal(t, res.Result.StatusCounts[models.StatusWarning], res.Result.RiskBands.Counts[1])

	w = do(t, newTestRouter(Deps{}), http.MethodGet, "/api/v1/risk/dataset/summary", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSampleSeries(t *testing.T) {
	h := newTestRouter(Deps{})

	w := do(t, h, http.MethodGet, "/api/v1/risk/sample/series", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[SeriesResponse](t, w)
	assert.Equal(t, "mixed", res.Result.Profile)
	assert.Equal(t, "2s", res.Result.Interval)
	assert.Empty(t, res.Result.ModelID)
	require.Len(t, res.Result.Points, 60)
	for i, p := range res.Result.Points {
		require.NoError(t, p.Vitals.Validate())
		assert.Nil(t, p.Assessment)
		if i > 0 {
			assert.Equal(t, 2*time.Second, p.Timestamp.Sub(res.Result.Points[i-1].Timestamp))
		}
	}

	w = do(t, h, http.MethodGet, "/api/v1/risk/sample/series?points=5&interval=500ms&profile=critical", "")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[SeriesResponse](t, w)
	assert.Equal(t, "critical", res.Result.Profile)
	require.Len(t, res.Result.Points, 5)
	assert.Equal(t, 2*time.Second, res.Result.Points[4].Timestamp.Sub(res.Result.Points[0].Timestamp))
}

func TestSampleSeries_Scored(t *testing.T) {
	m := sharedModel(t)
	w := do(t, newTestRouter(Deps{Model: m}), http.MethodGet, "/api/v1/risk/sample/series?points=10", "")
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[SeriesResponse](t, w)
	assert.Equal(t, m.ID(), res.Result.ModelID)
	require.Len(t, res.Result.Points, 10)
	for _, p := range res.Result.Points {
		require.NotNil(t, p.Assessment)
		want, err := scorer.Score(m, p.Vitals)
		require.NoError(t, err)
		assert.Equal(t, want, *p.Assessment)
	}
}

func TestSampleSeries_BadRequest(t *testing.T) {
	h := newTestRouter(Deps{})
	for _, q := range []string{
		"points=0",
		"points=-3",
		"points=601",
		"points=abc",
		"interval=soon",
		"interval=-1s",
		"interval=0s",
		"profile=sleepy",
	} {
		w := do(t, h, http.MethodGet, "/api/v1/risk/sample/series?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, ResultError, decode[any](t, w).Code, q)
	}
}

func batchBody(t *testing.T, records []models.VitalRecord) string {
	t.Helper()
	data, err := json.Marshal(records)
	require.NoError(t, err)
	return string(data)
}

func TestScoreBatch(t *testing.T) {
	m := sharedModel(t)
	h := newTestRouter(Deps{Model: m})

	ds, err := simulator.GenerateDataset(25, 3)
	require.NoError(t, err)
	for i := range ds {
		ds[i] = ds[i].Unlabeled()
	}

	w := do(t, h, http.MethodPost, "/api/v1/risk/score/batch", batchBody(t, ds))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[BatchScoreResponse](t, w)
	assert.Equal(t, m.ID(), res.Result.ModelID)
	assert.Equal(t, 25, res.Result.Count)
	require.Len(t, res.Result.Assessments, 25)

	want, err := scorer.ScoreBatch(m, ds)
	require.NoError(t, err)
	assert.Equal(t, want, res.Result.Assessments)

	total := 0
	for _, n := range res.Result.StatusCounts {
		total += n
	}
	assert.Equal(t, 25, total)
	assert.Len(t, res.Result.StatusCounts, 3)
}

func TestScoreBatch_Rejected(t *testing.T) {
	m := sharedModel(t)
	h := newTestRouter(Deps{Model: m})

	bad := []models.VitalRecord{simulator.NormalRecord(), simulator.NormalRecord(), simulator.NormalRecord()}
	bad[2].OxygenSaturation = 150
	w := do(t, h, http.MethodPost, "/api/v1/risk/score/batch", batchBody(t, bad))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	msg := decode[any](t, w).Message
	assert.Contains(t, msg, "record 2")
	assert.Contains(t, msg, models.FeatureOxygenSaturation)

	// 缺字段同样带下标
	w = do(t, h, http.MethodPost, "/api/v1/risk/score/batch", `[{"heart_rate": 80}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[any](t, w).Message, "record 0")

	for _, body := range []string{"[]", "{}", "not json"} {
		w = do(t, h, http.MethodPost, "/api/v1/risk/score/batch", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	tooMany := make([]models.VitalRecord, maxBatchRecords+1)
	for i := range tooMany {
		tooMany[i] = simulator.NormalRecord()
	}
	w = do(t, h, http.MethodPost, "/api/v1/risk/score/batch", batchBody(t, tooMany))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, newTestRouter(Deps{}), http.MethodPost, "/api/v1/risk/score/batch", batchBody(t, bad[:1]))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListModels(t *testing.T) {
	trained := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{records: []repository.ModelRecord{
		{ModelID: "rf-b", Algorithm: scorer.Algorithm, DatasetSize: 1000, CVMean: 0.91, TrainedAt: trained},
		{ModelID: "rf-a", Algorithm: scorer.Algorithm, DatasetSize: 500, CVMean: 0.88, TrainedAt: trained.Add(-time.Hour)},
	}}
	h := newTestRouter(Deps{Models: lister})

	w := do(t, h, http.MethodGet, "/api/v1/risk/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[[]repository.ModelRecord](t, w)
	require.Len(t, res.Result, 2)
	assert.Equal(t, "rf-b", res.Result[0].ModelID)
	assert.True(t, trained.Equal(res.Result[0].TrainedAt))
	assert.Equal(t, defaultModelsLimit, lister.limit)

	w = do(t, h, http.MethodGet, "/api/v1/risk/models?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, lister.limit)
}

func TestListModels_Errors(t *testing.T) {
	w := do(t, newTestRouter(Deps{Models: &fakeLister{}}), http.MethodGet, "/api/v1/risk/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(string(decodeRaw(t, w))))

	lister := &fakeLister{err: fmt.Errorf("failed to query models: %w", repository.ErrRegistryNotInitialized)}
	w = do(t, newTestRouter(Deps{Models: lister}), http.MethodGet, "/api/v1/risk/models", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	lister = &fakeLister{err: errors.New("connection reset")}
	w = do(t, newTestRouter(Deps{Models: lister}), http.MethodGet, "/api/v1/risk/models", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(t, newTestRouter(Deps{}), http.MethodGet, "/api/v1/risk/models", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// decodeRaw 取出 result 字段的原始 JSON
func decodeRaw(t *testing.T, w *httptest.ResponseRecorder) json.RawMessage {
	t.Helper()
	return decode[json.RawMessage](t, w).Result
}

func TestNotFoundAndCORS(t *testing.T) {
	h := newTestRouter(Deps{})

	w := do(t, h, http.MethodGet, "/api/v1/risk/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ResultError, decode[any](t, w).Code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dashboard.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&models.InvalidRecordError{Field: "x"}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(&models.ArtifactLoadError{Err: errors.New("x")}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(scorer.ErrNilModel))
	assert.Equal(t, http.StatusNotFound, statusFor(monitor.ErrSnapshotNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
