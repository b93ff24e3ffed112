// Package httpapi implements the HTTP surface (spec component G): the
// JSON endpoint contract the core daemon binds, plus the plugin-namespaced
// routes any resolver contributes.
//
// Grounded on jroosing-HydraDNS's internal/api (gin engine setup, route
// groups, JSON handler shape) — the one gin-based JSON daemon in the
// retrieval pack.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/playdar/playdar/internal/query"
	"github.com/playdar/playdar/internal/registry"
	"github.com/playdar/playdar/resolver"
)

// LongPollTimeout is the wall-clock bound on get_results_long (spec §5).
const LongPollTimeout = 30 * time.Second

// Dispatching is the subset of platform.Handle the HTTP surface needs:
// registering and scheduling a resolve request across the pipeline.
type Dispatching interface {
	Dispatch(q query.Query, originCallback func(qid string, ri query.ResultItem)) string
}

// Streaming serves GET /sid/<sid>.
type Streaming interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request, sid string)
}

// Server wires the registry, dispatcher, stream locator, and any
// HTTP-capable resolvers into a gin engine.
type Server struct {
	reg        *registry.Registry
	dispatcher Dispatching
	stream     Streaming
	resolvers  []resolver.HTTPHandler
	log        zerolog.Logger

	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the gin engine and registers every route. addr is the listen
// address (host:port).
func New(addr string, reg *registry.Registry, dispatcher Dispatching, stream Streaming, resolvers []resolver.HTTPHandler, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		reg:        reg,
		dispatcher: dispatcher,
		stream:     stream,
		resolvers:  resolvers,
		log:        log.With().Str("component", "httpapi").Logger(),
	}

	engine.Any("/api", s.handleAPI)
	engine.GET("/sid/:sid", s.handleStream)
	engine.NoRoute(s.handlePluginRoutes)

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Engine exposes the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// ListenAndServe runs the HTTP server until it is closed or errors.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAPI(c *gin.Context) {
	switch c.Query("method") {
	case "resolve":
		s.resolve(c)
	case "get_results":
		s.getResults(c)
	case "get_results_long":
		s.getResultsLong(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or missing method"})
	}
}

// resolveRequest is the JSON body for POST /api?method=resolve. A single
// top-level triple is the common case; Triples lets a caller submit
// several candidate triples for one logical query (spec §3).
type resolveRequest struct {
	Artist  string         `json:"artist"`
	Album   string         `json:"album"`
	Track   string         `json:"track"`
	Triples []query.Triple `json:"triples"`
	Mode    query.Mode     `json:"mode"`
	Source  string         `json:"source"`
	QID     string         `json:"qid"`
}

func (s *Server) resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed query body"})
		return
	}

	triples := req.Triples
	if len(triples) == 0 {
		if req.Artist == "" && req.Track == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query needs at least one triple"})
			return
		}
		triples = []query.Triple{{Artist: req.Artist, Album: req.Album, Track: req.Track}}
	}

	q := query.New(triples, req.Mode, req.Source, req.QID)
	qid := s.dispatcher.Dispatch(q, nil)
	c.JSON(http.StatusOK, gin.H{"qid": qid})
}

func (s *Server) getResults(c *gin.Context) {
	qid := c.Query("qid")
	results, ok := s.reg.Results(qid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown qid"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"qid":           qid,
		"results":       results,
		"poll_interval": 1000,
	})
}

func (s *Server) getResultsLong(c *gin.Context) {
	qid := c.Query("qid")
	afterCount := 0
	if v := c.Query("lastpoll"); v != "" {
		// lastpoll is an opaque client-side marker in the real API; here it
		// doubles as "how many results the caller has already seen" so the
		// long-poll can detect genuinely new arrivals.
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			afterCount = n
		}
	}

	results, ok := s.reg.WaitForResults(c.Request.Context(), qid, afterCount, LongPollTimeout)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown qid"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"qid":           qid,
		"results":       results,
		"poll_interval": 1000,
	})
}

func (s *Server) handleStream(c *gin.Context) {
	sid := c.Param("sid")
	s.stream.ServeHTTP(c.Writer, c.Request, sid)
}

// handlePluginRoutes dispatches unmatched requests to any resolver
// offering an HTTP handler under its own "/<plugin-name>/..." namespace
// (spec §4.C), e.g. the LAN resolver's /lan/roster and /lan/.
func (s *Server) handlePluginRoutes(c *gin.Context) {
	for _, h := range s.resolvers {
		if h.ServeResolverHTTP(c.Writer, c.Request) {
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}
