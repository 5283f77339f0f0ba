package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"runtimeviewer/internal/aggregate"
	"runtimeviewer/internal/dataset"
	"runtimeviewer/internal/history"
	"runtimeviewer/internal/metrics"
	"runtimeviewer/internal/models"
	"runtimeviewer/internal/runtimes"
)

//go:embed static/*
var embeddedStatic embed.FS

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Options wire the server to its collaborators.
type Options struct {
	Address  string
	Loader   *dataset.Loader
	Servers  []models.Server
	Colors   map[string]string
	Links    aggregate.Links
	MemoSize int
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Server wraps HTTP serving of API + static assets.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	staticFS   fs.FS

	loader   *dataset.Loader
	servers  []models.Server
	colors   map[string]string
	links    aggregate.Links
	memoSize int
	metrics  *metrics.Metrics
	logger   *zap.Logger

	memoOnce sync.Once
	memo     atomic.Pointer[aggregate.Memo]
}

// New creates a configured HTTP server for the viewer.
func New(opts Options) *Server {
	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic("static assets missing: " + err.Error())
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	links := opts.Links
	if links == (aggregate.Links{}) {
		links = aggregate.DefaultLinks()
	}

	s := &Server{
		staticFS: staticFS,
		loader:   opts.Loader,
		servers:  opts.Servers,
		colors:   opts.Colors,
		links:    links,
		memoSize: opts.MemoSize,
		metrics:  opts.Metrics,
		logger:   logger,
	}
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              opts.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(escapedRoutePath)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/", s.handleIndex)
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/data.json", s.handleData)
	r.Get("/ws", s.handleViewWS)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/servers", s.handleServers)
		r.Get("/runtimes", s.handleRuntimes)
		r.Get("/runtimes/{key}", s.handleDetail)
		r.Get("/chart", s.handleChart)
	})
	return r
}

// escapedRoutePath routes on the escaped request path so that URL parameters
// reach handlers still escaped, whether or not the client encoding left
// RawPath empty. Handlers unescape their own parameters exactly once.
func escapedRoutePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath == "" {
			rctx.RoutePath = r.URL.EscapedPath()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data, err := fs.ReadFile(s.staticFS, "index.html")
	if err != nil {
		http.Error(w, "index missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

type statusResponse struct {
	State    string    `json:"state"`
	Error    string    `json:"error,omitempty"`
	Rounds   int       `json:"rounds"`
	Source   string    `json:"source,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Cached   int       `json:"cached_views"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state, message := s.loader.State()
	resp := statusResponse{State: state.String(), Error: message}
	if snap, err := s.loader.Snapshot(); err == nil {
		resp.Rounds = snap.Len()
		resp.Source = snap.Source()
		resp.LoadedAt = snap.LoadedAt()
	}
	if memo := s.memo.Load(); memo != nil {
		resp.Cached = memo.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

type serverEntry struct {
	models.Server
	Present bool `json:"present"`
}

func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	present := make(map[string]struct{})
	if snap, err := s.loader.Snapshot(); err == nil {
		for _, name := range snap.Servers() {
			present[name] = struct{}{}
		}
	}
	entries := make([]serverEntry, 0, len(s.servers))
	for _, server := range s.servers {
		_, ok := present[server.Name]
		entries = append(entries, serverEntry{Server: server, Present: ok})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleData(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.loader.Snapshot()
	if err != nil {
		s.writeUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Original())
}

type runtimesResponse struct {
	Params aggregate.Params `json:"params"`
	Total  int              `json:"total"`
	Rounds int              `json:"rounds"`
	Offset int              `json:"offset"`
	Rows   []aggregate.Row  `json:"rows"`
}

func (s *Server) handleRuntimes(w http.ResponseWriter, r *http.Request) {
	params, err := parseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.view(params)
	if err != nil {
		s.writeUnavailable(w, err)
		return
	}
	offset := parseOffset(r)
	writeJSON(w, http.StatusOK, runtimesResponse{
		Params: view.Params,
		Total:  view.Table.Len(),
		Rounds: view.Table.RoundsSupplied(),
		Offset: offset,
		Rows:   view.Table.Window(offset, parseLimit(r, defaultPageSize)),
	})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	key, err := runtimes.UnescapeKey(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := parseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.view(params)
	if err != nil {
		s.writeUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Detail(key, s.links))
}

type chartResponse struct {
	Params    aggregate.Params       `json:"params"`
	Points    []models.ChartPoint    `json:"points"`
	Summaries []models.ServerSummary `json:"summaries"`
	Overall   models.ServerSummary   `json:"overall"`
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	params, err := parseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.view(params)
	if err != nil {
		s.writeUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildChart(view))
}

func buildChart(view *aggregate.View) chartResponse {
	summaries := history.BuildServerSummaries(view.Chart)
	return chartResponse{
		Params:    view.Params,
		Points:    view.Chart,
		Summaries: summaries,
		Overall:   history.Overall(summaries),
	}
}

// view runs the pipeline for params against the loaded snapshot, reusing
// memoised results.
func (s *Server) view(params aggregate.Params) (*aggregate.View, error) {
	snap, err := s.loader.Snapshot()
	if err != nil {
		return nil, err
	}
	s.memoOnce.Do(func() {
		rounds := snap.Rounds()
		s.memo.Store(aggregate.NewMemo(s.memoSize, func(p aggregate.Params) *aggregate.View {
			return aggregate.Run(rounds, p, s.colors)
		}))
	})

	started := time.Now()
	view, hit := s.memo.Load().Get(params)
	s.metrics.ObservePipeline(hit, time.Since(started))
	if !hit {
		s.logger.Debug("computed view",
			zap.String("server", view.Params.Server),
			zap.Stringer("timeframe", view.Params.Timeframe),
			zap.String("search", view.Params.Search),
			zap.Bool("collate", view.Params.Collate),
			zap.Int("rows", view.Table.Len()),
			zap.Duration("elapsed", time.Since(started)))
	}
	return view, nil
}

func (s *Server) writeUnavailable(w http.ResponseWriter, err error) {
	if errors.Is(err, dataset.ErrNotLoaded) {
		writeError(w, http.StatusServiceUnavailable, "loading")
		return
	}
	writeError(w, http.StatusServiceUnavailable, err.Error())
}

func parseParams(r *http.Request) (aggregate.Params, error) {
	query := r.URL.Query()
	params := aggregate.DefaultParams()
	if server := strings.TrimSpace(query.Get("server")); server != "" {
		params.Server = server
	}
	if query.Has("timeframe") {
		tf, err := aggregate.ParseTimeframe(query.Get("timeframe"))
		if err != nil {
			return aggregate.Params{}, err
		}
		params.Timeframe = tf
	}
	params.Search = query.Get("search")
	if raw := query.Get("collate"); raw != "" {
		collate, err := strconv.ParseBool(raw)
		if err != nil {
			return aggregate.Params{}, errors.New("collate must be a boolean")
		}
		params.Collate = collate
	}
	return params.Normalize(), nil
}

func parseOffset(r *http.Request) int {
	value, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func parseLimit(r *http.Request, fallback int) int {
	if fallback <= 0 {
		return fallback
	}
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > maxPageSize {
		return maxPageSize
	}
	return value
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
