package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sedorikku1949/MioEngine/internal/metrics"
	"github.com/Sedorikku1949/MioEngine/internal/shard"
	"github.com/Sedorikku1949/MioEngine/internal/state"
	"github.com/Sedorikku1949/MioEngine/internal/storage"
)

// DefaultStreamInterval spaces the snapshots pushed on /ws/state.
const DefaultStreamInterval = 2 * time.Second

// maxValueSize bounds archive values accepted over HTTP.
const maxValueSize = 1 << 20

// Describer lists the registered shards.
type Describer interface {
	Describe() []shard.Info
}

// Options configures New.
type Options struct {
	Addr           string
	State          *state.State
	Shards         Describer
	Archive        storage.Store // optional; /archive routes return 404 without it
	Metrics        *metrics.Metrics
	Version        string
	StreamInterval time.Duration
	Logger         zerolog.Logger
}

// Server is the local admin HTTP surface. It is the only writer of the
// override flags.
type Server struct {
	opts   Options
	router chi.Router
	logger zerolog.Logger

	httpSrv  *http.Server
	listener net.Listener
}

// New builds the router. Nothing listens until Start.
func New(opts Options) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = DefaultStreamInterval
	}
	s := &Server{opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/flags", s.handleGetFlags)
	r.Post("/flags", s.handleSetFlags)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	r.Get("/ws/state", s.handleStream)

	if opts.Archive != nil {
		r.Route("/archive", func(r chi.Router) {
			r.Get("/", s.handleSections)
			r.Get("/{section}", s.handleKeys)
			r.Get("/{section}/{key}", s.handleGetValue)
			r.Put("/{section}/{key}", s.handlePutValue)
			r.Delete("/{section}/{key}", s.handleDeleteValue)
		})
	}

	s.router = r
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin listening")
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("admin server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("admin request")
	})
}

func (s *Server) status() StatusResponse {
	snap := s.opts.State.Snapshot()
	resp := StatusResponse{
		Version: s.opts.Version,
		Uptime:  time.Since(snap.ProcessStart).Round(time.Second).String(),
		State:   snap,
	}
	if s.opts.Shards != nil {
		resp.Shards = s.opts.Shards.Describe()
	}
	if s.opts.Archive != nil {
		stats := s.opts.Archive.Stats()
		resp.Archive = &stats
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleGetFlags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.State.Flags())
}

func (s *Server) handleSetFlags(w http.ResponseWriter, r *http.Request) {
	var req FlagsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxValueSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Maintenance == nil && req.Dev == nil && req.Debug == nil {
		writeError(w, http.StatusBadRequest, "no flag given")
		return
	}

	if req.Maintenance != nil {
		s.opts.State.SetMaintenance(*req.Maintenance)
	}
	if req.Dev != nil {
		s.opts.State.SetDev(*req.Dev)
	}
	if req.Debug != nil {
		s.opts.State.SetDebug(*req.Debug)
	}

	flags := s.opts.State.Flags()
	s.logger.Info().
		Bool("maintenance", flags.Maintenance).
		Bool("dev", flags.Dev).
		Bool("debug", flags.Debug).
		Msg("flags updated")
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to accept websocket")
		return
	}
	defer conn.CloseNow()

	// Client messages are ignored; the returned context ends when it leaves.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(s.opts.StreamInterval)
	defer ticker.Stop()

	for {
		if err := wsjson.Write(ctx, conn, s.status()); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SectionsResponse{Sections: s.opts.Archive.Sections()})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	writeJSON(w, http.StatusOK, KeysResponse{Section: section, Keys: s.opts.Archive.Keys(section)})
}

func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	section, key := chi.URLParam(r, "section"), chi.URLParam(r, "key")
	value, err := s.opts.Archive.Get(section, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Section: section, Key: key, Value: value})
}

func (s *Server) handlePutValue(w http.ResponseWriter, r *http.Request) {
	section, key := chi.URLParam(r, "section"), chi.URLParam(r, "key")
	value, err := io.ReadAll(io.LimitReader(r.Body, maxValueSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(value) > maxValueSize {
		writeError(w, http.StatusRequestEntityTooLarge, "value too large")
		return
	}
	if err := s.opts.Archive.Put(section, key, value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteValue(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Archive.Delete(chi.URLParam(r, "section"), chi.URLParam(r, "key")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
