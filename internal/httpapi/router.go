package httpapi

import (
	"net/http"
	"time"

	"wisefido-risk/internal/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter 创建 API 路由
func NewRouter(cfg config.HTTPConfig, deps Deps, logger *zap.Logger) http.Handler {
	h := NewRiskHandler(deps, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1/risk", func(r chi.Router) {
		r.Get("/sample", h.Sample)
		r.Get("/sample/series", h.SampleSeries)
		r.Post("/score", h.Score)
		r.Post("/score/batch", h.ScoreBatch)
		r.Get("/model", h.Model)
		r.Get("/models", h.ListModels)
		r.Get("/monitor", h.ListBeds)
		r.Get("/monitor/{bedID}", h.BedMonitor)
		r.Get("/dataset/summary", h.DatasetSummary)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Fail("not found"))
	})
	return r
}

// requestLogger 访问日志（zap）
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
