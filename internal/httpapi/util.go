package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"wisefido-risk/internal/models"
	"wisefido-risk/internal/monitor"
	"wisefido-risk/internal/repository"
	"wisefido-risk/internal/scorer"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), Fail(err.Error()))
}

// statusFor 错误到 HTTP 状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRecord), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, monitor.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrArtifactLoad), errors.Is(err, scorer.ErrNilModel), errors.Is(err, errUnavailable),
		errors.Is(err, repository.ErrRegistryNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	return json.Unmarshal(body, out)
}
