package bootstrap

import (
	"context"

	"overlaysearch/internal/domain"
)

// Bootstrap resolves the peer set a joining node contacts to reach the
// Chord ring, and optionally publishes/withdraws this node's own address.
type Bootstrap interface {
	// Discover returns a list of known peer addresses
	Discover(ctx context.Context) ([]string, error)
	// Register add the current node (only if needed, e.g. Route53)
	Register(ctx context.Context, node *domain.Node) error
	// Deregister remove the current node (only if needed, e.g. Route53)
	Deregister(ctx context.Context, node *domain.Node) error
}
