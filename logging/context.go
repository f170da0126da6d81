package logging

import "log/slog"

// WithTenant creates a logger with tenant context.
//
//	logging.WithTenant("t1").Debug("Tenant attached")
func WithTenant(tenant string) *slog.Logger {
	return GetLogger().With("tenant", tenant)
}

// WithUnit creates a logger with the context of one unit of work.
func WithUnit(tenant, unitID string) *slog.Logger {
	return GetLogger().With("tenant", tenant, "unit", unitID)
}

// WithComponent creates a logger with component context.
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}
