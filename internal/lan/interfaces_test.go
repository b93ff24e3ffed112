package lan

import "testing"

func TestLocalAddressSet_ContainsLocalInterfaceAddress(t *testing.T) {
	set := newLocalAddressSet()
	if len(set.addrs) == 0 {
		t.Skip("no local interface addresses available in this environment")
	}
	for addr := range set.addrs {
		if !set.Contains(addr) {
			t.Fatalf("expected set to contain its own member %q", addr)
		}
		break
	}
}

func TestLocalAddressSet_DoesNotContainArbitraryAddress(t *testing.T) {
	set := newLocalAddressSet()
	if set.Contains("203.0.113.42") {
		t.Fatalf("did not expect TEST-NET-3 address to be a local interface")
	}
}
