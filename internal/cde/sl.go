package cde

import (
	"overlaysearch/internal/domain"
	"overlaysearch/internal/wire"
)

// SL is the upcall interface the Search Layer implements. CDE talks to SL
// only through this interface and never reaches into its state directly.
type SL interface {
	// OnLookupResult dispatches a completed lookup/publish to the callback
	// selected by flag: FlagPublish stores the key at responsible,
	// FlagSearchInitial seeds a posting list, FlagSearchStep intersects one.
	OnLookupResult(flag wire.LookupFlag, responsible *domain.Node, key string)

	// OnNewPredecessor is the join-notification upcall: SL transfers to the
	// new predecessor the keys it now owns.
	OnNewPredecessor(predecessor *domain.Node)

	// OnLeaveHandoff is invoked during a voluntary leave so SL can bulk-dump
	// its local keys to the successor before this node detaches.
	OnLeaveHandoff(successor *domain.Node)
}
