package cde

import "overlaysearch/internal/logger"

// Option configures a Table at construction time.
type Option func(*Table)

// WithLogger attaches a structured logger to the table.
func WithLogger(lgr logger.Logger) Option {
	return func(t *Table) {
		t.lgr = lgr
	}
}
