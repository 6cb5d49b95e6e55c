package register

import (
	"context"
	"fmt"

	"overlaysearch/internal/config"
)

// NewRegistrar builds the Registrar backend named by cfg.Type.
func NewRegistrar(ctx context.Context, cfg config.RegisterConfig) (Registrar, error) {
	switch cfg.Type {
	case "route53":
		return NewRoute53Registrar(ctx, cfg.HostedZoneID, cfg.DomainSuffix, cfg.TTL)

	default:
		return nil, fmt.Errorf("unsupported registrar type: %s", cfg.Type)
	}
}
