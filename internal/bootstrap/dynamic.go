package bootstrap

import (
	"context"
	"fmt"
	"net"

	"overlaysearch/internal/bootstrap/register"
	"overlaysearch/internal/config"
	"overlaysearch/internal/domain"
	"overlaysearch/internal/logger"
)

// DynamicBootstrap discovers peers via DNS (static A/AAAA or SRV records)
// and, when register.enabled, publishes this node's own address through a
// Registrar backend (Route53 is the only one) so other nodes can find it.
type DynamicBootstrap struct {
	cfg       config.BootstrapConfig
	lgr       logger.Logger
	registrar register.Registrar
}

// NewDynamicBootstrap builds a DynamicBootstrap for mode=dns. The registrar
// is constructed lazily on first Register call if cfg.Register.Enabled.
func NewDynamicBootstrap(cfg config.BootstrapConfig, lgr logger.Logger) *DynamicBootstrap {
	return &DynamicBootstrap{cfg: cfg, lgr: lgr}
}

func (d *DynamicBootstrap) Discover(ctx context.Context) ([]string, error) {
	return ResolveBootstrap(d.cfg, d.lgr)
}

func (d *DynamicBootstrap) Register(ctx context.Context, node *domain.Node) error {
	if !d.cfg.Register.Enabled {
		return nil
	}
	if d.registrar == nil {
		r, err := register.NewRegistrar(ctx, d.cfg.Register)
		if err != nil {
			return fmt.Errorf("build registrar: %w", err)
		}
		d.registrar = r
	}
	host, portStr, err := net.SplitHostPort(node.Addr)
	if err != nil {
		return err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return err
	}
	return d.registrar.RegisterNode(ctx, node.ID.ToHexString(true), host, port)
}

func (d *DynamicBootstrap) Deregister(ctx context.Context, node *domain.Node) error {
	if !d.cfg.Register.Enabled || d.registrar == nil {
		return nil
	}
	host, portStr, err := net.SplitHostPort(node.Addr)
	if err != nil {
		return err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return err
	}
	if err := d.registrar.DeregisterNode(ctx, node.ID.ToHexString(true), host, port); err != nil {
		return err
	}
	return d.registrar.Close()
}
