package lan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/playdar/playdar/internal/query"
	"github.com/playdar/playdar/resolver"
)

// DefaultNodeTTL is how long a node entry survives without a refreshing
// ping/pong before it ages out of the roster (spec §4.E, §5).
const DefaultNodeTTL = 3 * time.Minute

// rateLimitThreshold and rateLimitCooldown bound inbound datagrams per
// source address/second, a supplemented hardening feature (DESIGN.md) not
// present in the original daemon but grounded on the teacher's
// internal/security/rate_limiter.go.
const (
	rateLimitThreshold  = 50
	rateLimitCooldown   = 10 * time.Second
	rateLimitMaxEntries = 4096
)

// Options configures a Resolver. Zero values take the spec's defaults.
type Options struct {
	ListenPort     int
	MulticastGroup string
	Endpoints      []Endpoint
	NumCopies      int
	NodeTTL        time.Duration
}

// Resolver is the bundled LAN resolver plugin (spec component E): it joins
// a UDP multicast group, gossips presence (ping/pong/pang), and answers or
// relays per-query rq/result traffic. It implements resolver.Resolver and
// resolver.HTTPHandler.
type Resolver struct {
	opts Options
	log  zerolog.Logger

	platform resolver.PlatformAccess
	xport    *transport
	nodes    *nodeTable
	limiter  *rateLimiter
	locals   localAddressSet

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	shutdown bool
}

// New constructs an unstarted LAN resolver. Init does the actual socket
// work, per the resolver capability contract (spec §4.C).
func New(opts Options, log zerolog.Logger) *Resolver {
	if opts.NodeTTL <= 0 {
		opts.NodeTTL = DefaultNodeTTL
	}
	return &Resolver{
		opts: opts,
		log:  log.With().Str("component", "lan").Logger(),
	}
}

// Descriptor identifies this plugin in the pipeline, with weight 100 and a
// 3000ms advisory target time.
func (r *Resolver) Descriptor() resolver.Descriptor {
	return resolver.Descriptor{Name: "lan", Weight: 100, TargetTimeMS: 3000}
}

// Init binds the UDP socket, joins the multicast group, announces presence
// with a ping, and starts the receive loop. Returning false excludes this
// plugin from the pipeline without being fatal to the daemon (spec §4.C).
func (r *Resolver) Init(ctx context.Context, platform resolver.PlatformAccess) bool {
	xport, err := newTransport(r.opts.ListenPort, r.opts.MulticastGroup, r.opts.Endpoints, r.opts.NumCopies)
	if err != nil {
		r.log.Error().Err(err).Msg("LAN init failed, excluding plugin")
		return false
	}

	r.platform = platform
	r.xport = xport
	r.nodes = newNodeTable()
	r.limiter = newRateLimiter(rateLimitThreshold, rateLimitCooldown, rateLimitMaxEntries)
	r.locals = newLocalAddressSet()

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(2)
	go r.receiveLoop(loopCtx)
	go r.reapLoop(loopCtx)

	r.sendPing()
	r.log.Info().Int("port", r.opts.ListenPort).Str("group", r.opts.MulticastGroup).Msg("LAN resolver online")
	return true
}

// StartResolving multicasts an "rq" message so peers can attempt to
// resolve it (spec §4.C). Fire-and-forget: results arrive later via the
// receive loop's "result" handling.
func (r *Resolver) StartResolving(handle resolver.QueryHandle) {
	data, err := EncodeRQ(handle.Query())
	if err != nil {
		r.log.Warn().Err(err).Str("qid", handle.QID()).Msg("failed to encode rq, dropping")
		return
	}
	r.xport.sendToAll(data)
}

// CancelQuery is advisory only — the LAN protocol has no cancel message
// (spec §4.C, §9): remote reapers clean up stale queries on their own TTL.
func (r *Resolver) CancelQuery(qid string) {}

// Shutdown sends a best-effort farewell pang and stops the background
// loops. Per spec §9's open question, the pang is sent with a 500ms write
// deadline; failure to send is logged, never fatal.
func (r *Resolver) Shutdown() {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	r.mu.Unlock()

	if r.xport != nil {
		if data, err := EncodePang(r.platform.Hostname()); err == nil {
			_ = r.xport.conn.SetWriteDeadline(time.Now().Add(500 * time.Millisecond))
			for _, addr := range r.xport.endpoints {
				for i := 0; i < r.xport.numCopies; i++ {
					if _, err := r.xport.conn.WriteToUDP(data, addr); err != nil {
						r.log.Warn().Err(err).Str("to", addr.String()).Msg("failed to send farewell pang")
					}
				}
			}
		} else {
			r.log.Warn().Err(err).Msg("failed to encode farewell pang")
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.xport != nil {
		_ = r.xport.close()
	}
}

func (r *Resolver) sendPing() {
	data, err := EncodePing(r.platform.Hostname(), r.platform.HTTPPort())
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to encode ping")
		return
	}
	r.xport.sendToAll(data)
}

func (r *Resolver) reapLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.NodeTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.nodes.ExpireOlderThan(r.opts.NodeTTL, time.Now())
		}
	}
}

func (r *Resolver) receiveLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, addr, err := r.xport.receive(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// Periodic poll deadline expired with nothing to read; loop
				// back around to re-check ctx.Done().
				continue
			}
			r.log.Warn().Err(err).Msg("UDP receive error, re-arming")
			continue
		}
		r.handleDatagram(data, addr)
	}
}

// handleDatagram is the single serialized entry point for every inbound
// message, matching spec §5's "only one handle_receive at a time" — the
// node table therefore needs no internal locking beyond its own map guard
// for concurrent HTTP reads of the roster.
func (r *Resolver) handleDatagram(data []byte, addr *net.UDPAddr) {
	// 127.0.0.1 is dropped unconditionally as a cheap pre-parse
	// optimization (spec §4.E); traffic from any other local interface
	// address is dropped after the same check via r.locals.
	if addr.IP.IsLoopback() || r.locals.Contains(addr.IP.String()) {
		return
	}
	if !r.limiter.Allow(addr.IP.String()) {
		return
	}

	msgType, err := Sniff(data)
	if err != nil {
		r.log.Warn().Err(err).Str("from", addr.String()).Msg("dropping malformed LAN datagram")
		return
	}

	switch msgType {
	case MsgPing:
		r.handlePing(data, addr)
	case MsgPong:
		r.handlePong(data, addr)
	case MsgPang:
		r.handlePang(data)
	case MsgRQ:
		r.handleRQ(data, addr)
	case MsgResult:
		r.handleResult(data, addr)
	default:
		r.log.Warn().Str("msgtype", string(msgType)).Msg("dropping unknown _msgtype")
	}
}

func (r *Resolver) handlePing(data []byte, addr *net.UDPAddr) {
	m, err := decodePing(data)
	if err != nil || m.FromName == "" {
		r.log.Warn().Msg("malformed ping, dropping")
		return
	}
	if m.FromName == r.platform.Hostname() {
		return
	}
	r.nodes.Refresh(m.FromName, addr.IP.String(), m.HTTPPort, time.Now())
	r.log.Info().Str("from", m.FromName).Str("addr", addr.IP.String()).Msg("received ping")

	reply, err := EncodePong(r.platform.Hostname(), r.platform.HTTPPort())
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to encode pong reply")
		return
	}
	r.xport.sendTo(reply, addr)
}

func (r *Resolver) handlePong(data []byte, addr *net.UDPAddr) {
	m, err := decodePong(data)
	if err != nil || m.FromName == "" {
		r.log.Warn().Msg("malformed pong, dropping")
		return
	}
	if m.FromName == r.platform.Hostname() {
		return
	}
	r.nodes.Refresh(m.FromName, addr.IP.String(), m.HTTPPort, time.Now())
	r.log.Info().Str("from", m.FromName).Str("addr", addr.IP.String()).Msg("received pong")
}

func (r *Resolver) handlePang(data []byte) {
	m, err := decodePang(data)
	if err != nil || m.FromName == "" {
		r.log.Warn().Msg("malformed pang, dropping")
		return
	}
	r.nodes.Remove(m.FromName)
	r.log.Info().Str("from", m.FromName).Msg("received pang")
}

// handleRQ implements the duplicate-QID drop that is the authoritative
// loop-prevention mechanism (spec §4.E, §7): a known QID is dropped
// silently, with no callback registered for the sender.
func (r *Resolver) handleRQ(data []byte, addr *net.UDPAddr) {
	m, err := decodeRQ(data)
	if err != nil || m.QID == "" {
		r.log.Warn().Msg("malformed rq, dropping")
		return
	}
	if r.platform.QueryExists(m.QID) {
		return
	}
	sender := *addr
	r.platform.Dispatch(m.Query, func(qid string, ri query.ResultItem) {
		r.sendResult(qid, ri, &sender)
	})
}

func (r *Resolver) sendResult(qid string, ri query.ResultItem, dest *net.UDPAddr) {
	data, err := EncodeResult(qid, ri)
	if err != nil {
		r.log.Warn().Err(err).Str("qid", qid).Msg("failed to encode result, dropping")
		return
	}
	r.xport.sendTo(data, dest)
}

// handleResult rewrites the inbound RI's URL to point at the sender's own
// stream endpoint (spec §4.E, scenario 3) before reporting it — the
// requester never needs to trust a URL the remote node claims for itself.
func (r *Resolver) handleResult(data []byte, addr *net.UDPAddr) {
	m, err := decodeResult(data)
	if err != nil || m.QID == "" {
		r.log.Warn().Msg("malformed result, dropping")
		return
	}
	if !r.platform.QueryExists(m.QID) {
		return
	}
	if m.Result.SID != "" {
		m.Result.URL = fmt.Sprintf("http://%s:%d/sid/%s", addr.IP.String(), resultSenderHTTPPort(r, addr), m.Result.SID)
	}
	r.platform.ReportResults(m.QID, []query.ResultItem{m.Result})
}

// resultSenderHTTPPort looks up the HTTP port the sender advertised via
// its last ping/pong; falls back to this node's own configured HTTP port if
// the sender is not (yet) Known, which can happen if a "result" races ahead of the
// "ping" that would have recorded it.
func resultSenderHTTPPort(r *Resolver, addr *net.UDPAddr) int {
	for _, n := range r.nodes.Snapshot() {
		if n.Addr == addr.IP.String() {
			return n.HTTPPort
		}
	}
	return r.platform.HTTPPort()
}

// rosterPageTemplate renders the human-readable /lan/ page, mirroring
// lan.cpp's anon_http_handler HTML table.
var rosterPageTemplate = template.Must(template.New("lan-roster").Parse(`<h2>LAN</h2>
<p>Detected nodes:
<table>
<tr style="font-weight:bold;"><td>Name</td><td>Address</td><td>Seconds since last ping</td></tr>
{{range .}}<tr><td>{{.Name}}</td><td><a href="http://{{.Addr}}:{{.HTTPPort}}/">http://{{.Addr}}:{{.HTTPPort}}/</a></td><td>{{.Age}}</td></tr>
{{end}}</table></p>
`))

type rosterRow struct {
	Name     string
	Addr     string
	HTTPPort int
	Age      int64
}

// ServeResolverHTTP answers GET /lan/roster (JSON) and GET /lan/ (HTML),
// the plugin-contributed endpoints under its own namespace (spec §4.C,
// §4.G; the supplemented HTML page from SPEC_FULL.md).
func (r *Resolver) ServeResolverHTTP(w http.ResponseWriter, req *http.Request) bool {
	if !strings.HasPrefix(req.URL.Path, "/lan") {
		return false
	}
	path := strings.TrimPrefix(req.URL.Path, "/lan")
	switch {
	case path == "/roster" || path == "/roster/":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.rosterJSON())
		return true
	case path == "" || path == "/":
		now := time.Now()
		rows := make([]rosterRow, 0)
		for _, n := range r.nodes.Snapshot() {
			rows = append(rows, rosterRow{Name: n.Name, Addr: n.Addr, HTTPPort: n.HTTPPort, Age: int64(n.AgeSeconds(now))})
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = rosterPageTemplate.Execute(w, rows)
		return true
	}
	return false
}

type rosterEntry struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	AgeSecond int    `json:"age"`
}

func (r *Resolver) rosterJSON() []rosterEntry {
	now := time.Now()
	nodes := r.nodes.Snapshot()
	out := make([]rosterEntry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, rosterEntry{
			Name:      n.Name,
			Address:   "http://" + net.JoinHostPort(n.Addr, strconv.Itoa(n.HTTPPort)),
			AgeSecond: int(n.AgeSeconds(now)),
		})
	}
	return out
}

var _ resolver.Resolver = (*Resolver)(nil)
var _ resolver.HTTPHandler = (*Resolver)(nil)
