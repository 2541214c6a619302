package tickstatshttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tickstats/tickstats-go"
)

// ErrServerBusy is returned when a request is rejected because the max number of in-flight requests are being handled.
var ErrServerBusy = errors.New("server busy")

// ErrInvalidRequest is returned for requests that are malformed or missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// The max size of a request body.
const maxBodyBytes = 8 << 20

// BatchRequest is the body of an add_batch request.
type BatchRequest struct {
	Symbol string    `json:"symbol"`
	Values []float64 `json:"values"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// NewHandler returns a new http.Handler that serves the engine:
//
//   - POST /add_batch ingests a BatchRequest
//   - GET /stats/{symbol}/{k} returns the tickstats.Stats for the symbol's trailing 10^k values
//   - GET /symbols returns the admitted symbols
//
// Failures are returned as an ErrorResponse with a status code from StatusCode. If logger is nil, nothing is logged.
func NewHandler(engine tickstats.Engine, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{engine: engine, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /add_batch", h.addBatch)
	mux.HandleFunc("GET /stats/{symbol}/{k}", h.stats)
	mux.HandleFunc("GET /symbols", h.symbols)
	return mux
}

// LimitInFlight returns a new http.Handler that rejects requests with http.StatusTooManyRequests while maxInFlight
// requests are already being handled by the innerHandler. Requests are never queued. If maxInFlight is <= 0, the
// innerHandler is returned unlimited.
func LimitInFlight(innerHandler http.Handler, maxInFlight int64) http.Handler {
	if maxInFlight <= 0 {
		return innerHandler
	}
	permits := semaphore.NewWeighted(maxInFlight)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !permits.TryAcquire(1) {
			writeError(w, ErrServerBusy)
			return
		}
		defer permits.Release(1)
		innerHandler.ServeHTTP(w, r)
	})
}

// StatusCode returns the HTTP status code for an error returned by the engine or handler.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tickstats.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrServerBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, tickstats.ErrBatchTooLarge),
		errors.Is(err, tickstats.ErrNonFiniteValue),
		errors.Is(err, tickstats.ErrInvalidWindowExponent),
		errors.Is(err, tickstats.ErrSymbolLimitReached):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type handler struct {
	engine tickstats.Engine
	logger *zap.Logger
}

func (h *handler) addBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.Ingest(req.Symbol, req.Values); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	k, err := strconv.Atoi(r.PathValue("k"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: k must be an integer, got %q", ErrInvalidRequest, r.PathValue("k")))
		return
	}

	result, err := h.engine.Query(symbol, k)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) symbols(w http.ResponseWriter, _ *http.Request) {
	symbols := h.engine.Symbols()
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, symbols)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if code := StatusCode(err); code >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.Int("status", code), zap.Error(err))
	}
	writeError(w, err)
}

// Validate returns ErrInvalidRequest if the symbol or values are missing.
func (r *BatchRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if r.Values == nil {
		return fmt.Errorf("%w: values is required", ErrInvalidRequest)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusCode(err), ErrorResponse{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
