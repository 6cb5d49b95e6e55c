package bootstrap

import (
	"context"
	"testing"

	"overlaysearch/internal/domain"
)

func TestStaticBootstrapDiscover(t *testing.T) {
	peers := []string{"10.0.0.1:7000", "10.0.0.2:7000"}
	s := NewStaticBootstrap(peers)

	got, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != len(peers) {
		t.Fatalf("Discover() = %v, want %v", got, peers)
	}
	for i, p := range peers {
		if got[i] != p {
			t.Fatalf("Discover()[%d] = %q, want %q", i, got[i], p)
		}
	}
}

func TestStaticBootstrapRegisterDeregisterAreNoops(t *testing.T) {
	s := NewStaticBootstrap(nil)
	n := &domain.Node{Addr: "10.0.0.1:7000"}

	if err := s.Register(context.Background(), n); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Deregister(context.Background(), n); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
}
