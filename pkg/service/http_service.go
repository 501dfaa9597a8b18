package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/auth"
	"github.com/squidstack/squidflags/pkg/flagsync"
	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/session"
)

// ReasonManual is the refresh reason of a client-requested refresh.
const ReasonManual = "manual"

// ConfigFailedNotice is served in place of the application when flag setup failed.
const ConfigFailedNotice = "Feature flags config failed to load."

const streamBuffer = 8

type HTTPServiceConfiguration struct {
	Port        int32
	CORSOrigins []string
}

type HTTPService struct {
	HTTPServiceConfiguration *HTTPServiceConfiguration

	Snapshots Snapshots
	Refresher Refresher
	Sessions  Sessions
	// Config backs /flags/config when set.
	Config ConfigSource
	// Gatherer backs /metrics when set.
	Gatherer prometheus.Gatherer
}

func (h *HTTPService) Serve(ctx context.Context) error {
	if h.HTTPServiceConfiguration == nil {
		return errors.New("http service configuration has not been initialised")
	}
	return serve(ctx, h.HTTPServiceConfiguration, h.Handler())
}

// Handler returns the routed, CORS-wrapped API.
func (h *HTTPService) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler)
	r.Route("/flags", func(r chi.Router) {
		r.Get("/", h.getFlags)
		r.Get("/stream", h.streamFlags)
		r.Post("/refresh", h.refreshFlags)
		if h.Config != nil {
			r.Get("/config", h.getConfig)
		}
	})
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
	})
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}
	return withCORS(h.HTTPServiceConfiguration, r)
}

func (h *HTTPService) getFlags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshots.Current())
}

func (h *HTTPService) getConfig(w http.ResponseWriter, _ *http.Request) {
	doc, err := h.Config.Configuration()
	switch {
	case errors.Is(err, flagsync.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, doc)
	}
}

func (h *HTTPService) refreshFlags(w http.ResponseWriter, r *http.Request) {
	err := h.Refresher.Refresh(r.Context(), ReasonManual)
	switch {
	case errors.Is(err, flagsync.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		// the last snapshot is still served
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, h.Snapshots.Current())
	}
}

type streamEvent struct {
	reason string
	snap   model.Snapshot
}

// streamFlags pushes every published snapshot as a server-sent event. The
// first event carries the current snapshot. A slow client skips intermediate
// snapshots but always receives the latest.
func (h *HTTPService) streamFlags(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events := make(chan streamEvent, streamBuffer)
	unsubscribe := h.Snapshots.Subscribe(func(reason string, snap model.Snapshot) {
		ev := streamEvent{reason: reason, snap: snap}
		for {
			select {
			case events <- ev:
				return
			default:
			}
			select {
			case <-events:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			b, err := json.Marshal(ev.snap)
			if err != nil {
				log.Errorf("unable to encode snapshot: %v", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.reason, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type sessionResponse struct {
	Authenticated bool               `json:"authenticated"`
	Token         string             `json:"token,omitempty"`
	User          *model.UserProfile `json:"user"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
}

func (h *HTTPService) sessionResponse(sess model.Session, withToken bool) sessionResponse {
	resp := sessionResponse{Authenticated: sess.Active(), User: sess.User}
	if withToken {
		resp.Token = sess.Token
	}
	if exp, ok := h.Sessions.ExpiresAt(); ok {
		resp.ExpiresAt = &exp
	}
	return resp
}

func (h *HTTPService) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionResponse(h.Sessions.Session(), false))
}

func (h *HTTPService) login(w http.ResponseWriter, r *http.Request) {
	var creds session.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, auth.BadRequestMessage)
		return
	}

	sess, err := h.Sessions.Login(r.Context(), creds)
	if err != nil {
		var lerr *auth.LoginError
		if errors.As(err, &lerr) {
			writeError(w, loginStatus(lerr.Kind), lerr.Message)
			return
		}
		writeError(w, http.StatusBadGateway, auth.UnknownMessage)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(sess, true))
}

func (h *HTTPService) logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func loginStatus(kind auth.FailureKind) int {
	switch kind {
	case auth.InvalidCredentials:
		return http.StatusUnauthorized
	case auth.BadRequest:
		return http.StatusBadRequest
	case auth.Unavailable:
		return http.StatusServiceUnavailable
	case auth.Connectivity:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// FailureHandler answers every request except the health check with the
// static configuration failure notice.
func FailureHandler(cfg *HTTPServiceConfiguration) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Get("/healthz", healthHandler)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusServiceUnavailable, ConfigFailedNotice)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusServiceUnavailable, ConfigFailedNotice)
	})
	return withCORS(cfg, r)
}

// ServeFailure serves FailureHandler until ctx is done.
func ServeFailure(ctx context.Context, cfg *HTTPServiceConfiguration) error {
	return serve(ctx, cfg, FailureHandler(cfg))
}

func serve(ctx context.Context, cfg *HTTPServiceConfiguration, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("http service listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http service stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http service shutdown: %w", err)
	}
	return nil
}

func withCORS(cfg *HTTPServiceConfiguration, next http.Handler) http.Handler {
	var origins []string
	if cfg != nil {
		origins = cfg.CORSOrigins
	}
	if len(origins) == 0 {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(next)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
			"request":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
