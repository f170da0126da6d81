// Package logging provides the process-wide structured logger of TenantDB.
//
// The package wraps log/slog. Init configures level, destination and format
// once at startup; GetLogger lazily falls back to an info-level text logger
// on stderr so library code can log before or without Init.
//
//	if err := logging.Init(logging.Config{Level: "debug", Format: "json"}); err != nil {
//	    log.Fatal(err)
//	}
//	logging.WithTenant("t1").Debug("Tenant attached")
package logging
