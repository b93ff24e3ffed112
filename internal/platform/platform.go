// Package platform provides the handle passed to every resolver plugin and
// the HTTP surface, replacing the original daemon's process-wide global
// application object (spec §9's "Global application object" redesign
// note) with an explicit value threaded through construction.
package platform

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/playdar/playdar/internal/config"
	"github.com/playdar/playdar/internal/pipeline"
	"github.com/playdar/playdar/internal/query"
	"github.com/playdar/playdar/internal/registry"
)

// Handle implements resolver.PlatformAccess. It owns nothing itself — it
// delegates to the registry and dispatcher constructed by cmd/playdard —
// but is the single value resolvers and the HTTP surface hold, so shutdown
// state and config lookups have one source of truth.
type Handle struct {
	cfg        *config.Config
	reg        *registry.Registry
	dispatcher *pipeline.Dispatcher
	log        zerolog.Logger
	shutdown   atomic.Bool
}

// New builds a Handle bound to cfg, reg, and dispatcher.
func New(cfg *config.Config, reg *registry.Registry, dispatcher *pipeline.Dispatcher, log zerolog.Logger) *Handle {
	return &Handle{cfg: cfg, reg: reg, dispatcher: dispatcher, log: log}
}

func (h *Handle) Hostname() string { return h.cfg.Name }
func (h *Handle) HTTPPort() int    { return h.cfg.HTTPPort }

func (h *Handle) ConfigString(key, fallback string) string {
	switch key {
	case "listenip":
		return h.cfg.ListenIP
	case "name":
		return h.cfg.Name
	default:
		return fallback
	}
}

func (h *Handle) ConfigInt(key string, fallback int) int {
	switch key {
	case "http_port":
		return h.cfg.HTTPPort
	case "http_threads":
		return h.cfg.HTTPThreads
	case "listenport":
		return h.cfg.ListenPort
	case "numcopies":
		return h.cfg.NumCopies
	default:
		return fallback
	}
}

func (h *Handle) QueryExists(qid string) bool { return h.reg.QueryExists(qid) }

func (h *Handle) Dispatch(q query.Query, originCallback func(qid string, ri query.ResultItem)) string {
	return h.dispatcher.Dispatch(context.Background(), q, originCallback)
}

func (h *Handle) ReportResults(qid string, results []query.ResultItem) bool {
	return h.reg.ReportResults(qid, results)
}

func (h *Handle) ShuttingDown() bool { return h.shutdown.Load() }

// BeginShutdown sets the atomic shutdown flag that ShuttingDown reports
// (spec §9's signal-driven shutdown redesign). The registry reaper and the
// LAN receive loop do not read this flag; they stop when their context is
// cancelled.
func (h *Handle) BeginShutdown() { h.shutdown.Store(true) }

// Registry exposes the underlying registry for cmd/playdard's HTTP and
// stream wiring, which need operations beyond PlatformAccess's surface
// (Results, Subscribe, WaitForResults, LocateSID).
func (h *Handle) Registry() *registry.Registry { return h.reg }

// Dispatcher exposes the underlying dispatcher for cmd/playdard's resolver
// registration step.
func (h *Handle) Dispatcher() *pipeline.Dispatcher { return h.dispatcher }

// Config exposes the loaded configuration.
func (h *Handle) Config() *config.Config { return h.cfg }

// Logger returns the daemon's base logger, for components constructed
// outside the resolver capability set (e.g. cmd/playdard's own startup
// banner).
func (h *Handle) Logger() zerolog.Logger { return h.log }
