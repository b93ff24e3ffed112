package lan

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/playdar/playdar/internal/errors"
)

// DefaultPort is the UDP port the LAN resolver binds, independent of the
// daemon's HTTP port (spec §4.E).
const DefaultPort = 60210

// DefaultMulticastGroup is the IPv4 multicast group joined when no group is
// configured (spec §4.E). The group is always joined; it is also the send
// target when no explicit endpoints are configured.
const DefaultMulticastGroup = "239.255.0.1"

// receiveBufferBytes sizes the per-receive buffer pulled from bufferPool.
// 1500 bytes (spec's MaxPayloadBytes) plus headroom for IP/UDP overhead.
const receiveBufferBytes = 2048

// Endpoint is one configured destination for outbound LAN messages: either
// the multicast group or an explicit unicast peer, per lan.cpp's
// setup_endpoints (bare host uses DefaultPort; host+port overrides it).
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) udpAddr() (*net.UDPAddr, error) {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(e.Host, strconv.Itoa(port)))
}

// transport owns the single UDP socket the LAN resolver sends and receives
// on, plus the multicast group membership and configured outbound
// endpoints. Grounded on the teacher's internal/transport.UDPv4Transport
// (context-aware Send/Receive over a pooled buffer), generalized from a
// single multicast destination to playdar's configurable endpoint list and
// numcopies redundancy.
type transport struct {
	conn      *net.UDPConn
	pconn     *ipv4.PacketConn
	group     *net.UDPAddr
	endpoints []*net.UDPAddr
	numCopies int
}

// newTransport binds 0.0.0.0:listenPort, joins groupAddr on every suitable
// interface, and resolves outbound endpoints. An empty endpoints list
// falls back to sending to the multicast group itself, matching lan.cpp's
// "nothing specified, just use the default multicast" behavior.
func newTransport(listenPort int, groupAddr string, endpoints []Endpoint, numCopies int) (*transport, error) {
	if listenPort == 0 {
		listenPort = DefaultPort
	}
	if groupAddr == "" {
		groupAddr = DefaultMulticastGroup
	}
	if numCopies < 1 {
		numCopies = 1
	}

	lc := net.ListenConfig{Control: platformControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(listenPort)))
	if err != nil {
		return nil, &errors.NetworkError{Op: "bind LAN UDP socket", Endpoint: fmt.Sprintf("0.0.0.0:%d", listenPort), Err: err}
	}
	conn := pc.(*net.UDPConn)

	group, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(groupAddr, strconv.Itoa(listenPort)))
	if err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Op: "resolve multicast group", Endpoint: groupAddr, Err: err}
	}

	pconn := ipv4.NewPacketConn(conn)
	ifaces, err := multicastCapableInterfaces()
	if err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Op: "enumerate interfaces", Err: err}
	}
	joined := 0
	for _, iface := range ifaces {
		if err := pconn.JoinGroup(&iface, &net.UDPAddr{IP: group.IP}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		if err := pconn.JoinGroup(nil, &net.UDPAddr{IP: group.IP}); err != nil {
			_ = conn.Close()
			return nil, &errors.NetworkError{Op: "join multicast group", Endpoint: groupAddr, Err: err}
		}
	}
	_ = pconn.SetMulticastTTL(2)
	_ = pconn.SetMulticastLoopback(true)

	resolved := make([]*net.UDPAddr, 0, len(endpoints))
	for _, ep := range endpoints {
		addr, err := ep.udpAddr()
		if err != nil {
			continue
		}
		resolved = append(resolved, addr)
	}
	if len(resolved) == 0 {
		resolved = append(resolved, group)
	}

	return &transport{
		conn:      conn,
		pconn:     pconn,
		group:     group,
		endpoints: resolved,
		numCopies: numCopies,
	}, nil
}

// multicastCapableInterfaces mirrors the teacher's DefaultInterfaces
// enumerate-then-filter idiom (internal/network/interfaces.go), trimmed to
// just the two flags multicast group membership actually needs.
func multicastCapableInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]net.Interface, 0, len(all))
	for _, iface := range all {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		out = append(out, iface)
	}
	return out, nil
}

// sendToAll transmits data to every configured endpoint, each numCopies
// times to combat UDP loss (spec §4.E's redundancy factor).
func (t *transport) sendToAll(data []byte) {
	for _, addr := range t.endpoints {
		t.sendTo(data, addr)
	}
}

// sendTo transmits data to a single address, numCopies times.
func (t *transport) sendTo(data []byte, addr *net.UDPAddr) {
	for i := 0; i < t.numCopies; i++ {
		_, _ = t.conn.WriteToUDP(data, addr)
	}
}

// pollInterval bounds how long a single ReadFromUDP call can block when ctx
// carries no deadline of its own, so a cancelled ctx is noticed promptly
// instead of leaving the receive loop parked in a blocking syscall until
// the next datagram happens to arrive.
const pollInterval = 1 * time.Second

// receive reads the next datagram, respecting ctx cancellation. The
// returned slice is owned by the caller — it is copied out of a pooled
// buffer before return (teacher: internal/transport/buffer_pool.go).
func (t *transport) receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	} else {
		_ = t.conn.SetReadDeadline(time.Now().Add(pollInterval))
	}

	bufPtr := getBuffer()
	defer putBuffer(bufPtr)

	n, addr, err := t.conn.ReadFromUDP(*bufPtr)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, &errors.NetworkError{Op: "receive LAN datagram", Err: context.DeadlineExceeded}
		}
		return nil, nil, &errors.NetworkError{Op: "receive LAN datagram", Err: err}
	}
	out := make([]byte, n)
	copy(out, (*bufPtr)[:n])
	return out, addr, nil
}

func (t *transport) close() error {
	return t.conn.Close()
}
