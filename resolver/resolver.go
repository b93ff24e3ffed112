// Package resolver defines the capability set every Playdar resolver
// plugin must satisfy, and the platform handle plugins use to talk back to
// the daemon. It is the one public-facing contract of the core — concrete
// resolvers (internal/lan, and in principle a darknet overlay resolver)
// live behind it, never behind a shared base type.
package resolver

import (
	"context"
	"net/http"

	"github.com/playdar/playdar/internal/query"
)

// Descriptor is the static, human-facing description of a resolver plugin.
type Descriptor struct {
	// Name identifies the plugin, used for logging and for its HTTP
	// namespace ("/<name>/...").
	Name string

	// Weight orders plugins in the dispatch fan-out: higher runs earlier.
	Weight uint16

	// TargetTimeMS is a soft, advisory per-plugin deadline in milliseconds.
	// It is never enforced by the dispatcher — it exists only so callers
	// can estimate which results to expect first.
	TargetTimeMS uint32
}

// QueryHandle is the live-query handle a resolver receives from
// StartResolving. It is the resolver's only way to report results back —
// resolvers never touch the registry directly.
type QueryHandle interface {
	// QID is the query identifier this handle was dispatched for.
	QID() string

	// Query is the query itself.
	Query() query.Query

	// ReportResults appends newly found results for this QID. It is safe
	// to call zero or more times, from any goroutine, at any point after
	// StartResolving returns — including after the resolver's own
	// StartResolving call has already returned, since resolving is
	// fire-and-forget.
	ReportResults(results []query.ResultItem)
}

// Resolver is the capability set every plugin implements. There is no base
// type — a plugin is anything satisfying this interface, held by the
// pipeline behind the interface, never by concrete type.
type Resolver interface {
	Descriptor() Descriptor

	// Init is called once at startup and may start background tasks, open
	// sockets, etc. Returning false excludes the plugin from the pipeline
	// without being fatal to the daemon.
	Init(ctx context.Context, platform PlatformAccess) bool

	// StartResolving is fire-and-forget: it must not block. The resolver
	// reports results asynchronously via handle.ReportResults as they
	// become available, from its own goroutines.
	StartResolving(handle QueryHandle)

	// CancelQuery is a best-effort hint that a QID is no longer of
	// interest. Resolvers are free to ignore it entirely — see the
	// pipeline package's Dispatcher.CancelQuery for why cancellation is
	// advisory rather than guaranteed.
	CancelQuery(qid string)
}

// HTTPHandler is an optional capability: a resolver that wants to
// contribute endpoints under /<plugin-name>/... implements this in
// addition to Resolver. cmd/playdard probes for it with a type assertion
// and hands the matches to the httpapi package, rather than requiring every
// resolver to implement a no-op.
type HTTPHandler interface {
	// ServeResolverHTTP handles one request under the plugin's namespace.
	// Returning false tells the caller this resolver did not recognize the
	// request (e.g. unknown sub-path), so a 404 can be produced.
	ServeResolverHTTP(w http.ResponseWriter, r *http.Request) bool
}

// PlatformAccess is the handle passed to every resolver at Init, replacing
// the process-wide global application object of the original daemon (see
// the internal/platform section of DESIGN.md). It exposes exactly the
// registry operations and daemon metadata a resolver needs.
type PlatformAccess interface {
	// Hostname is this node's name, used to tag outbound results and LAN
	// presence messages.
	Hostname() string

	// HTTPPort is the daemon's configured HTTP port, advertised in LAN
	// presence messages so peers can build a stream base URL.
	HTTPPort() int

	// ConfigString/ConfigInt return the loaded value of a recognised
	// playdar.conf key ("name", "listenip"; "http_port", "http_threads",
	// "listenport", "numcopies"), with load-time defaults applied. Any
	// other key returns the supplied fallback: unrecognised keys in the
	// file are not kept and cannot be read here.
	ConfigString(key, fallback string) string
	ConfigInt(key string, fallback int) int

	// QueryExists reports whether qid currently names a live query.
	QueryExists(qid string) bool

	// Dispatch registers (if needed) and schedules a query across the
	// pipeline, invoking originCallback once per newly accepted result.
	// A nil originCallback is valid when the caller only wants dispatch
	// side effects, not a per-result echo.
	Dispatch(q query.Query, originCallback func(qid string, ri query.ResultItem)) string

	// ReportResults appends results to a live query by QID, as a resolver
	// would via its QueryHandle, but callable directly — used by the LAN
	// resolver's "result" message handler, which reports against a QID
	// dispatched by a remote node rather than one it holds a handle for.
	ReportResults(qid string, results []query.ResultItem) bool

	// ShuttingDown reports whether the daemon has begun graceful shutdown.
	// The bundled LAN resolver and the registry reaper do not poll it; they
	// stop when the context they were started with is cancelled.
	ShuttingDown() bool
}
