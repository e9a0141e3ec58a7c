package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzhttp"

	"github.com/tinytelemetry/tailview/internal/model"
	"github.com/tinytelemetry/tailview/internal/query"
	"github.com/tinytelemetry/tailview/internal/tracker"
)

// Tracker is the narrow tracker contract required by the HTTP API.
type Tracker interface {
	model.ReadAPI
	Subscribe() *tracker.Subscription
}

// ServerConfig holds optional server settings.
type ServerConfig struct {
	// IndexPath is the single page served for every unknown route.
	IndexPath string
	// CaseInsensitive is the default when a request does not pass case=.
	CaseInsensitive bool
	// FilterCacheSize bounds the number of compiled filters kept around.
	FilterCacheSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
}

const (
	defaultFilterCacheSize = 128
	defaultPingInterval    = 30 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultWriteWait       = 10 * time.Second
)

func (c ServerConfig) withDefaults() ServerConfig {
	if c.IndexPath == "" {
		c.IndexPath = model.DefaultIndex
	}
	if c.FilterCacheSize <= 0 {
		c.FilterCacheSize = defaultFilterCacheSize
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	return c
}

type filterKey struct {
	text            string
	caseInsensitive bool
	advanced        bool
}

// Server serves the browser page, the event stream and a small REST API
// over the tracker.
type Server struct {
	addr       string
	tracker    Tracker
	conf       ServerConfig
	server     *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	startTime  time.Time
	instanceID string
	filters    *lru.Cache[filterKey, *query.Filter]

	stopOnce sync.Once
	conns    sync.WaitGroup
}

// NewServer creates a new HTTP server.
func NewServer(addr string, t Tracker, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = ":" + strconv.Itoa(model.DefaultPort)
	}
	var cfg ServerConfig
	if len(conf) > 0 {
		cfg = conf[0]
	}
	cfg = cfg.withDefaults()

	// lru.New only fails for a non-positive size.
	filters, _ := lru.New[filterKey, *query.Filter](cfg.FilterCacheSize)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:       addr,
		tracker:    t,
		conf:       cfg,
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
		instanceID: uuid.NewString(),
		filters:    filters,
	}
}

// Handler builds the router. Start serves it; tests use it directly.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/files", s.handleFiles)
	r.GET("/api/events", s.handleEvents)
	r.GET("/ws", s.handleStream)

	// The stream endpoint hijacks the connection, so only the page is
	// compressed.
	r.NoRoute(gin.WrapH(gzhttp.GzipHandler(http.HandlerFunc(s.serveIndex))))
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the listen address, resolved once Start has bound it.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server and closes open streams.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		if s.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
		s.conns.Wait()
	})
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.startTime).String(),
		"files":    len(s.tracker.Files()),
		"instance": s.instanceID,
	})
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	f, err := os.Open(s.conf.IndexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "failed to open index", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "failed to read index", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	http.ServeContent(w, r, "", time.Time{}, f)
}

// filter returns the compiled filter for the request's filter, case and
// advanced parameters.
func (s *Server) filter(c *gin.Context) *query.Filter {
	key := filterKey{
		text:            c.Query("filter"),
		caseInsensitive: queryBool(c, "case", s.conf.CaseInsensitive),
		advanced:        queryBool(c, "advanced", false),
	}
	if f, ok := s.filters.Get(key); ok {
		return f
	}
	f := query.NewFilter(key.text, query.FilterOptions{
		CaseInsensitive: key.caseInsensitive,
		Advanced:        key.advanced,
	})
	s.filters.Add(key, f)
	return f
}

func queryBool(c *gin.Context, name string, def bool) bool {
	raw, ok := c.GetQuery(name)
	if !ok {
		return def
	}
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
