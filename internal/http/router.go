package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/internal/repository"
	"github.com/splax/sitepress/internal/service/pipeline"
	"github.com/splax/sitepress/internal/service/status"
	"github.com/splax/sitepress/internal/ws"
)

// SiteService is the pipeline surface exposed over HTTP.
type SiteService interface {
	Submit(ctx context.Context, raw map[string]any) (pipeline.Submission, error)
	Resubmit(ctx context.Context, businessID string, raw map[string]any) (pipeline.Submission, error)
	Status(ctx context.Context, businessID string) (status.View, error)
	StatusBySubdomain(ctx context.Context, subdomain string) (status.View, error)
	Artifact(ctx context.Context, businessID string) (domain.SiteArtifact, error)
	Modify(ctx context.Context, businessID, request string) (pipeline.Modification, error)
}

// StatusHub fans status views out to streaming clients.
type StatusHub interface {
	Register(businessID string, client ws.Subscriber)
	Unregister(businessID string, client ws.Subscriber)
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	sites       SiteService
	tokens      TokenVerifier
	hub         StatusHub
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	storeHealth func(context.Context) error
	heartbeat   time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSubmit    = 10
	rateLimitSiteRead  = 240
	rateLimitModify    = 20
	rateLimitStatus    = 120
	rateLimitRealtime  = 30
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
	maxBodyBytes       = 1 << 20
	sitesPrefix        = "/sites/"
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, sites SiteService, tokens TokenVerifier, hub StatusHub, limiter RateLimiter, storeHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger.With("component", "http"),
		sites:  sites,
		tokens: tokens,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:     limiter,
		storeHealth: storeHealth,
		heartbeat:   sseHeartbeat,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/sites", r.audit(r.withRateLimit("/sites", rateLimitSubmit, rateWindowDefault, rateLimitKeyIP, r.handleSites)))
	r.mux.HandleFunc(sitesPrefix, r.audit(r.withRateLimit("/sites/{id}", rateLimitSiteRead, rateWindowDefault, rateLimitKeyBusiness, r.handleSiteSubroutes)))
	r.mux.HandleFunc("/status", r.audit(r.withRateLimit("/status", rateLimitStatus, rateWindowDefault, rateLimitKeyIP, r.handleStatusLookup)))
	r.mux.HandleFunc("/ws/status", r.audit(r.withRateLimit("/ws/status", rateLimitRealtime, rateWindowRealtime, rateLimitKeyIP, r.handleStatusWS)))
}

func (r *Router) handleSites(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	raw, err := decodeSubmission(w, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := r.sites.Submit(req.Context(), raw)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

func (r *Router) handleSiteSubroutes(w http.ResponseWriter, req *http.Request) {
	businessID, rest := splitSitePath(req.URL.Path)
	if businessID == "" {
		r.notFound(w)
		return
	}
	switch rest {
	case "":
		switch req.Method {
		case http.MethodGet:
			r.handleStatus(w, req, businessID)
		case http.MethodPut:
			r.requireEditToken(r.handleResubmit)(w, req, businessID)
		default:
			r.methodNotAllowed(w)
		}
	case "status":
		r.onlyGet(r.handleStatus)(w, req, businessID)
	case "artifact":
		r.onlyGet(r.handleArtifact)(w, req, businessID)
	case "events":
		r.onlyGet(r.handleEvents)(w, req, businessID)
	case "modify":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		r.withRateLimit("/sites/{id}/modify", rateLimitModify, rateWindowDefault, rateLimitKeyBusiness, func(w http.ResponseWriter, req *http.Request) {
			r.requireEditToken(r.handleModify)(w, req, businessID)
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleResubmit(w http.ResponseWriter, req *http.Request, businessID string) {
	raw, err := decodeSubmission(w, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := r.sites.Resubmit(req.Context(), businessID, raw)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request, businessID string) {
	view, err := r.sites.Status(req.Context(), businessID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleStatusLookup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	query := req.URL.Query()
	if id := strings.TrimSpace(query.Get("business_id")); id != "" {
		r.handleStatus(w, req, id)
		return
	}
	subdomain := strings.ToLower(strings.TrimSpace(query.Get("subdomain")))
	if subdomain == "" {
		writeError(w, http.StatusBadRequest, "subdomain or business_id query parameter required")
		return
	}
	view, err := r.sites.StatusBySubdomain(req.Context(), subdomain)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleArtifact(w http.ResponseWriter, req *http.Request, businessID string) {
	artifact, err := r.sites.Artifact(req.Context(), businessID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if req.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]any{
			"businessId":  artifact.BusinessID,
			"version":     artifact.Version,
			"source":      artifact.Source,
			"category":    artifact.Category,
			"theme":       artifact.Theme,
			"generatedAt": artifact.GeneratedAt,
			"html":        artifact.HTML,
		})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Artifact-Version", strconv.Itoa(artifact.Version))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, artifact.HTML)
}

func (r *Router) handleModify(w http.ResponseWriter, req *http.Request, businessID string) {
	var payload struct {
		Request string `json:"request"`
	}
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Request) == "" {
		writeFieldErrors(w, map[string]string{"request": "Describe the change you want"})
		return
	}
	mod, err := r.sites.Modify(req.Context(), businessID, payload.Request)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request, businessID string) {
	flusher, ok := w.(http.Flusher)
	if !ok || r.hub == nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	view, err := r.sites.Status(req.Context(), businessID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := ws.NewSSEClient(w, flusher, "status", r.logger)
	defer r.hub.Unregister(businessID, client)
	defer client.Close()

	if payload, err := json.Marshal(view); err == nil {
		if err := client.Send(payload); err != nil {
			return
		}
	}
	r.hub.Register(businessID, client)

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleStatusWS(w http.ResponseWriter, req *http.Request) {
	businessID := strings.TrimSpace(req.URL.Query().Get("business_id"))
	if businessID == "" {
		writeError(w, http.StatusBadRequest, "business_id query parameter required")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "status streaming disabled")
		return
	}
	view, err := r.sites.Status(req.Context(), businessID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if payload, err := json.Marshal(view); err == nil {
		_ = client.Send(payload)
	}
	r.hub.Register(businessID, client)
	go func() {
		defer func() {
			r.hub.Unregister(businessID, client)
			client.Close()
		}()
		client.Wait()
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	overall := "ok"
	if r.storeHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.storeHealth(ctx); err != nil {
			overall = "degraded"
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if overall != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// writeServiceError maps pipeline errors to responses. Unexpected errors are
// logged and reported without detail.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFieldErrors(w, verr.FieldErrors)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "site not found")
	case errors.Is(err, domain.ErrUnrecognizedRequest):
		writeError(w, http.StatusUnprocessableEntity, domain.ErrUnrecognizedRequest.Error())
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeError(w, http.StatusConflict, pipeline.ErrRunInProgress.Error())
	default:
		r.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeSubmission(w http.ResponseWriter, req *http.Request) (map[string]any, error) {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	decoder := json.NewDecoder(req.Body)
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil || raw == nil {
		return nil, errors.New("invalid JSON body")
	}
	return raw, nil
}

// splitSitePath returns the business id and remaining path of /sites/{id}/...
func splitSitePath(path string) (string, string) {
	if !strings.HasPrefix(path, sitesPrefix) {
		return "", ""
	}
	trimmed := strings.Trim(strings.TrimPrefix(path, sitesPrefix), "/")
	id, rest, _ := strings.Cut(trimmed, "/")
	return id, rest
}

func (r *Router) onlyGet(next businessHandler) businessHandler {
	return func(w http.ResponseWriter, req *http.Request, businessID string) {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		next(w, req, businessID)
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		code := recorder.status
		if code == 0 {
			code = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := routeLabel(req.URL.Path)
		r.recordRequestMetrics(req.Method, route, code, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", code,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "editor"
			fields = append(fields, "business_id", info.BusinessID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case code >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case code >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
