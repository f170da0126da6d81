// Package config defines the configuration of a TenantDB instance.
//
// Every option is a command-line flag. Load layers values from the command
// line, TENANTDB_* environment variables and a TOML file, in that order:
//
//	cfg := config.Default()
//	cfg.RegisterFlags(cmd.Flags())
//	if err := config.Load(viper.New(), cmd.Flags()); err != nil { ... }
//	if err := cfg.Validate(); err != nil { ... }
//
// Nested options use dotted flag names that map onto TOML tables:
//
//	engine = "duckdb"
//	[server.auth]
//	enabled = true
//	jwt-secret = "..."
package config
