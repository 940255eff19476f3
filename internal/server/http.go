// Package server exposes a Logger over HTTP: ingest, search, raw entries,
// histogram and store statistics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spf13/cast"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/logpile"
	"github.com/coffersTech/logpile/internal/engine"
	"github.com/coffersTech/logpile/internal/model"
	"github.com/coffersTech/logpile/internal/registry"
	"github.com/coffersTech/logpile/internal/search"
)

const maxBodySize = 32 << 20

// StatsFunc reports storage statistics for GET /api/stats.
type StatsFunc func(ctx context.Context) engine.Stats

// Options configure a Server.
type Options struct {
	Logger *logpile.Logger
	// Stats is optional; without it /api/stats answers 404.
	Stats StatsFunc
	// Sync is called once per ingest request after every entry was persisted.
	Sync func() error
	// TokenHash is a bcrypt hash; when set every request needs the matching bearer token.
	TokenHash string
	// Registry, when set, records shippers by X-Instance-ID and serves GET /api/instances.
	Registry *registry.Store

	Diagnostics *slog.Logger
	Now         func() time.Time
}

type Server struct {
	opts   Options
	diag   *slog.Logger
	parser fastjson.ParserPool

	// bearer tokens already checked against TokenHash
	verified sync.Map

	ingestCounter int64
	srv           *http.Server
}

func New(opts Options) *Server {
	if opts.Diagnostics == nil {
		opts.Diagnostics = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		opts: opts,
		diag: opts.Diagnostics.With("component", "http"),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID, s.AuthMiddleware)

	r.HandleFunc("/api/ingest", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/api/entries", s.handleEntries).Methods(http.MethodGet)
	r.HandleFunc("/api/histogram", s.handleHistogram).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	if s.opts.Registry != nil {
		r.HandleFunc("/api/instances", s.handleInstances).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.diag.Info("listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// Ingested returns the number of ingest requests served.
func (s *Server) Ingested() int64 {
	return atomic.LoadInt64(&s.ingestCounter)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.diag.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

// AuthMiddleware checks for a valid token in the Authorization header.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.TokenHash == "" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logpile"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		if _, ok := s.verified.Load(token); !ok {
			if err := bcrypt.CompareHashAndPassword([]byte(s.opts.TokenHash), []byte(token)); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="logpile"`)
				http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
				return
			}
			s.verified.Store(token, struct{}{})
		}
		next.ServeHTTP(w, r)
	})
}

// ingestResult answers POST /api/ingest. Failed counts valid entries that
// could not be persisted.
type ingestResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed,omitempty"`
}

// handleIngest accepts one JSON object or an array of them.
// Entries are persisted one by one, so a failure does not undo the ones
// before it: the request answers 200 with the failed count as long as at
// least one entry was stored, and 500 when none was or Sync failed.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.ingestCounter, 1)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusRequestEntityTooLarge)
		return
	}

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	var items []*fastjson.Value
	switch v.Type() {
	case fastjson.TypeArray:
		items, _ = v.Array()
	case fastjson.TypeObject:
		items = []*fastjson.Value{v}
	default:
		http.Error(w, "Invalid JSON: expected object or array", http.StatusBadRequest)
		return
	}

	var res ingestResult
	var errs []error
	for _, item := range items {
		e, err := model.EntryFromJSON(item)
		if err != nil {
			res.Rejected++
			continue
		}
		s.fillDefaults(e)
		if err := s.opts.Logger.PersistEntry(r.Context(), e); err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		res.Accepted++
	}
	if err := errors.Join(errs...); err != nil {
		s.diag.Error("ingest persist failed", "failed", res.Failed, "accepted", res.Accepted, "error", err)
	}

	if s.opts.Sync != nil {
		if err := s.opts.Sync(); err != nil {
			s.diag.Error("ingest sync failed", "error", err)
			http.Error(w, "Sync failed", http.StatusInternalServerError)
			return
		}
	}
	if res.Failed > 0 && res.Accepted == 0 {
		http.Error(w, "Persist failed", http.StatusInternalServerError)
		return
	}

	if id := r.Header.Get("X-Instance-ID"); id != "" && s.opts.Registry != nil {
		s.opts.Registry.Record(id, clientIP(r), r.UserAgent(), res.Accepted)
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Registry.ListInstances())
}

// clientIP is the request's remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) fillDefaults(e model.Entry) {
	if _, ok := e["timestamp"]; !ok {
		e["timestamp"] = model.FormatTimestamp(s.opts.Now())
	}
	if lvl, _ := e["level"].(string); lvl == "" {
		e["level"] = string(model.LevelInfo)
	}
}

// handleSearch processes GET /api/search requests.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	res, ok := s.search(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	got, err := s.opts.Logger.Retrieve(r.Context())
	if err != nil {
		s.diag.Error("retrieve failed", "error", err)
		http.Error(w, "Retrieve failed", http.StatusInternalServerError)
		return
	}
	if got.Entries == nil {
		got.Entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, logpile.Result{Entries: got.Entries, Skipped: got.Skipped})
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	interval := time.Minute
	if raw := r.URL.Query().Get("interval"); raw != "" {
		d, err := search.ParseWindow(raw)
		if err != nil || d <= 0 {
			http.Error(w, "Invalid interval", http.StatusBadRequest)
			return
		}
		interval = d
	}

	var entries []model.Entry
	if r.URL.Query().Get("q") == "" && r.URL.Query().Get("shape") == "" && r.URL.Query().Get("time") == "" {
		// no filter: every stored entry counts
		got, err := s.opts.Logger.Retrieve(r.Context())
		if err != nil {
			s.diag.Error("retrieve failed", "error", err)
			http.Error(w, "Retrieve failed", http.StatusInternalServerError)
			return
		}
		entries = got.Entries
	} else {
		res, ok := s.search(w, r)
		if !ok {
			return
		}
		entries = res.Entries
	}
	writeJSON(w, http.StatusOK, search.Histogram(entries, interval))
}

// handleStats calculates system statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Stats == nil {
		http.Error(w, "No segment store configured", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Stats(r.Context()))
}

// search runs the query described by the request parameters, writing
// the error response itself when it fails.
func (s *Server) search(w http.ResponseWriter, r *http.Request) (logpile.Result, bool) {
	query, opts, err := s.parseSearch(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return logpile.Result{}, false
	}

	res, err := s.opts.Logger.Search(r.Context(), query, opts)
	switch {
	case errors.Is(err, search.ErrInvalidWindow):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return logpile.Result{}, false
	case err != nil:
		s.diag.Error("search failed", "error", err)
		http.Error(w, "Query failed", http.StatusInternalServerError)
		return logpile.Result{}, false
	}
	return res, true
}

func (s *Server) parseSearch(r *http.Request) (any, search.Options, error) {
	q := r.URL.Query()
	var opts search.Options

	var err error
	if raw := q.Get("shallow"); raw != "" {
		if opts.Shallow, err = cast.ToBoolE(raw); err != nil {
			return nil, opts, fmt.Errorf("invalid shallow: %q", raw)
		}
	}
	if raw := q.Get("intersect"); raw != "" {
		if opts.Intersect, err = cast.ToBoolE(raw); err != nil {
			return nil, opts, fmt.Errorf("invalid intersect: %q", raw)
		}
	}
	opts.Time = q.Get("time")

	value, shape := q.Get("q"), q.Get("shape")
	if value != "" && shape != "" {
		return nil, opts, errors.New("q and shape are mutually exclusive")
	}
	if shape == "" {
		if value == "" {
			return nil, opts, nil
		}
		return value, opts, nil
	}

	p := s.parser.Get()
	defer s.parser.Put(p)
	v, err := p.Parse(shape)
	if err != nil || v.Type() != fastjson.TypeObject {
		return nil, opts, fmt.Errorf("invalid shape: must be a JSON object")
	}
	fields, _ := model.FromJSON(v).(map[string]any)
	return search.PartialShape{Fields: fields}, opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("JSON encode error", "error", err)
	}
}
