package lse

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// Route is the result of a routing decision, returned by both the
// ForwardingTable lookup path and the static fallback.
type Route struct {
	DestIP    string
	Gateway   string
	Interface string
}

// StaticRouter is the fallback spec §4.5 leaves unspecified in detail: a
// longest-prefix-match table of operator-configured static routes,
// consulted only when the ForwardingTable has no entry for a destination.
type StaticRouter struct {
	table *bart.Table[Route]
}

// NewStaticRouter builds an empty static router.
func NewStaticRouter() *StaticRouter {
	return &StaticRouter{table: new(bart.Table[Route])}
}

// AddRoute installs one static route for prefix pfx.
func (r *StaticRouter) AddRoute(pfx netip.Prefix, route Route) {
	r.table.Insert(pfx, route)
}

// Lookup finds the longest-prefix-matching static route for dest, if any.
func (r *StaticRouter) Lookup(dest netip.Addr) (Route, bool) {
	return r.table.Lookup(dest)
}
