package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/service"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/store"
	"github.com/quangdang46/shipment-tracker/shared/errors"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
	"github.com/quangdang46/shipment-tracker/shared/recovery"
)

// ErrRefreshConflict reports a refresh overtaken by a newer one
var ErrRefreshConflict = errors.New(errors.ErrorTypeSession, "REFRESH_SUPERSEDED", "A newer refresh replaced this one")

const maxBodyBytes = 1 << 16

// Tracker is the part of service.Tracker the API serves
type Tracker interface {
	Session() domain.WalletSession
	Connect(ctx context.Context) (domain.WalletSession, error)
	Disconnect(ctx context.Context) domain.WalletSession
	Refresh(ctx context.Context) ([]domain.Shipment, error)
	Shipments() []domain.Shipment
	Shipment(ctx context.Context, id domain.ShipmentID) (domain.Shipment, error)
	UpdateStatus(ctx context.Context, id domain.ShipmentID, status domain.ShipmentStatus) (*domain.WriteReceipt, error)
	Dashboard() domain.DashboardStats
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

type Config struct {
	RateLimit    RateLimiterConfig
	HealthChecks map[string]HealthCheck
}

// Server exposes the tracker over JSON and websockets
type Server struct {
	tracker Tracker
	ws      http.Handler
	config  Config
	limiter *RateLimiter
	panics  *recovery.PanicHandler
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func NewServer(tracker Tracker, ws http.Handler, config Config, logger *logging.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithField("component", "http_api")
	return &Server{
		tracker: tracker,
		ws:      ws,
		config:  config,
		limiter: NewRateLimiter(config.RateLimit),
		panics:  recovery.NewPanicHandler(logger),
		logger:  logger,
		metrics: m,
	}
}

// Handler returns the full middleware-wrapped route tree
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/session", s.getSession)
	api.HandleFunc("POST /api/session/connect", s.connect)
	api.HandleFunc("POST /api/session/disconnect", s.disconnect)
	api.HandleFunc("GET /api/shipments", s.listShipments)
	api.HandleFunc("POST /api/shipments/refresh", s.refresh)
	api.HandleFunc("GET /api/shipments/{id}", s.getShipment)
	api.HandleFunc("POST /api/shipments/{id}/status", s.updateStatus)
	api.HandleFunc("GET /api/dashboard", s.dashboard)

	root := http.NewServeMux()
	root.Handle("/api/", s.limiter.Middleware(api))
	root.HandleFunc("GET /healthz", s.health)
	if s.ws != nil {
		root.Handle("GET /ws", s.ws)
	}
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics.Handler())
	}

	var h http.Handler = root
	h = s.instrument(h)
	h = s.panics.HTTPMiddleware(h)
	h = logging.RequestMiddleware(s.logger)(h)
	return h
}

// RunPruner drops idle rate limiters until ctx is done
func (s *Server) RunPruner(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Prune(); n > 0 {
				s.logger.WithField("removed", n).Debug("Pruned idle rate limiters")
			}
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", r.ResponseWriter)
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.RecordHTTPRequest(r.Method, endpoint, rec.status)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error *errors.Error `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	if stderrors.Is(err, store.ErrRefreshSuperseded) {
		writeJSON(w, http.StatusConflict, errorBody{Error: ErrRefreshConflict})
		return
	}
	e := errors.From(err)
	// Internal failures carry raw upstream text; keep it out of responses.
	if errors.IsType(e, errors.ErrorTypeInternal) {
		e = errors.Internal("unexpected server error")
	}
	status := e.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Error: e})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.NewSessionView(s.tracker.Session()))
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	sess, err := s.tracker.Connect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewSessionView(sess))
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.NewSessionView(s.tracker.Disconnect(r.Context())))
}

func (s *Server) listShipments(w http.ResponseWriter, r *http.Request) {
	list := s.tracker.Shipments()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shipments": service.NewShipmentViews(list),
		"stats":     domain.ComputeStats(list),
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	list, err := s.tracker.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shipments": service.NewShipmentViews(list),
		"stats":     domain.ComputeStats(list),
	})
}

func (s *Server) getShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.tracker.Shipment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewShipmentView(sh))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("body", err.Error()))
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(w, domain.ErrInvalidStatus.WithCause(err))
		return
	}

	receipt, err := s.tracker.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Dashboard())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.config.HealthChecks))
	healthy := true
	for name, check := range s.config.HealthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  state,
		"session": s.tracker.Session().State.String(),
		"checks":  checks,
	})
}
