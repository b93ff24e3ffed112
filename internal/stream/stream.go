// Package stream implements the stream locator (spec component F): given a
// SID, it either opens local bytes or proxies from a remote node's URL,
// streaming rather than buffering either way.
//
// Grounded on the teacher's responder/response_builder.go for the idiom of
// turning internal registry state into an outward-facing HTTP artifact.
package stream

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/playdar/playdar/internal/query"
)

// LocalSource opens bytes for a result that originated on this node. A
// library scanner or other local content provider implements this — it is
// an external collaborator per spec §1's scope note, so Locator only needs
// its capability surface, never its internals.
type LocalSource interface {
	// Open returns a readable stream for sid, its Content-Type, and its
	// size in bytes (0 if unknown). ok is false if this provider has
	// nothing for sid.
	Open(sid string) (rc io.ReadCloser, contentType string, size int64, ok bool)
}

// Locating is the subset of the registry a Locator needs: looking up a
// result item by SID (spec §4.B's second index).
type Locating interface {
	LocateSID(sid string) (query.ResultItem, bool)
}

// Locator implements GET /sid/<sid> (spec §4.F): local results stream
// directly from a LocalSource; remote results (those with a URL) are
// proxied without buffering the whole body in memory.
type Locator struct {
	registry Locating
	local    LocalSource
	client   *http.Client
	log      zerolog.Logger
}

// New builds a Locator. local may be nil if no local content provider is
// registered — in that case every SID minted locally, lacking a resolver
// willing to open it, produces a 404 rather than a panic.
func New(registry Locating, local LocalSource, log zerolog.Logger) *Locator {
	return &Locator{
		registry: registry,
		local:    local,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log.With().Str("component", "stream").Logger(),
	}
}

// ServeHTTP handles GET /sid/<sid>. 404 if the SID is unknown or no source
// can produce bytes for it.
func (l *Locator) ServeHTTP(w http.ResponseWriter, r *http.Request, sid string) {
	ri, ok := l.registry.LocateSID(sid)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if ri.URL != "" {
		l.proxyRemote(w, r, ri)
		return
	}
	l.streamLocal(w, r, ri)
}

func (l *Locator) streamLocal(w http.ResponseWriter, r *http.Request, ri query.ResultItem) {
	if l.local == nil {
		http.NotFound(w, r)
		return
	}
	rc, contentType, size, ok := l.local.Open(ri.SID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = ri.Mimetype
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if size <= 0 {
		size = ri.SizeBytes
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		l.log.Warn().Err(err).Str("sid", ri.SID).Msg("local stream copy interrupted")
	}
}

// proxyRemote forwards bytes from a remote node's URL without buffering
// the whole body (spec §4.F's "streaming, not buffered").
func (l *Locator) proxyRemote(w http.ResponseWriter, r *http.Request, ri query.ResultItem) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, ri.URL, nil)
	if err != nil {
		l.log.Warn().Err(err).Str("url", ri.URL).Msg("failed to build proxy request")
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}

	resp, err := l.client.Do(req)
	if err != nil {
		l.log.Warn().Err(err).Str("url", ri.URL).Msg("remote stream fetch failed")
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	} else if ri.Mimetype != "" {
		w.Header().Set("Content-Type", ri.Mimetype)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		l.log.Warn().Err(err).Str("url", ri.URL).Msg("remote stream proxy interrupted")
	}
}
