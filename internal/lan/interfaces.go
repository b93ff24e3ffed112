package lan

import "net"

// localAddressSet answers spec §9's open question: "should also drop from
// the host's own LAN IP", by set membership rather than string comparison.
// Adapted from the teacher's internal/network.DefaultInterfaces
// enumerate-then-filter idiom, narrowed to just collecting addresses.
type localAddressSet struct {
	addrs map[string]struct{}
}

func newLocalAddressSet() localAddressSet {
	set := localAddressSet{addrs: make(map[string]struct{})}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return set
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		set.addrs[ipnet.IP.String()] = struct{}{}
	}
	return set
}

// Contains reports whether ip names one of this host's own interfaces.
func (s localAddressSet) Contains(ip string) bool {
	_, ok := s.addrs[ip]
	return ok
}
