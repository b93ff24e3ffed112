package query

import (
	"strings"

	"github.com/google/uuid"
)

// playdarNamespace scopes every QID/SID derived by this daemon into its own
// UUID namespace, so a Playdar QID can never collide with a UUID produced by
// an unrelated system hashing the same bytes. Fixed and never changed —
// changing it would change every QID this daemon has ever derived.
var playdarNamespace = uuid.MustParse("6e4a9c3e-6e2a-4e9b-8f1a-2a6e4f9c3b7d")

const qidSeparator = "\x1f"

// DeriveQID computes the stable, content-addressed identifier for a set of
// query triples. Identical logical queries — same artist/album/track after
// lowercasing and trimming — yield identical QIDs on every node, which is
// what lets the LAN resolver's duplicate-QID check serve as the loop
// prevention mechanism described in spec §4.E.
//
// Implementation: normalize and concatenate every triple with a fixed
// separator, then hash with MD5 into a namespaced UUIDv3. MD5 is used here
// purely as a uniform 128-bit mixing function, not for any cryptographic
// property — collision resistance against an adversarial query is not a
// requirement.
func DeriveQID(triples []Triple) string {
	var b strings.Builder
	for i, t := range triples {
		if i > 0 {
			b.WriteString(qidSeparator)
		}
		n := t.normalized()
		b.WriteString(n.Artist)
		b.WriteString(qidSeparator)
		b.WriteString(n.Album)
		b.WriteString(qidSeparator)
		b.WriteString(n.Track)
	}
	return uuid.NewMD5(playdarNamespace, []byte(b.String())).String()
}

// NewSID generates a fresh locally-unique stream identifier. Unlike QIDs,
// SIDs need not be deterministic — they only need to be unique on the node
// that minted them, since they key the /sid/<sid> stream endpoint.
func NewSID() string {
	return uuid.New().String()
}
