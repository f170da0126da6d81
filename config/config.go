package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables overriding configuration, e.g.
// TENANTDB_CONNECTION_LIMIT or TENANTDB_S3_REGION.
const EnvPrefix = "TENANTDB"

// Config is the complete configuration of a TenantDB instance.
type Config struct {
	Engine          string
	DatabasesPath   string
	ConnectionLimit int
	AcquireTimeout  time.Duration
	StatementCache  int
	TestMode        bool

	Seed      SeedConfig
	S3        S3Config
	Datamodel DatamodelConfig
	Server    ServerConfig
	Log       LogConfig
}

// SeedConfig names where missing tenant databases are copied from.
type SeedConfig struct {
	URL string
}

// S3Config holds credentials for s3:// seed and export URLs.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// DatamodelConfig locates the datamodel, either a local file or a file in
// a git repository.
type DatamodelConfig struct {
	Path   string
	GitURL string
	Ref    string
	File   string
	// Token or SSHKey authenticate against the repository.
	Token  string
	SSHKey string
}

// ServerConfig configures the TCP server.
type ServerConfig struct {
	Bind string
	Auth AuthConfig
}

// AuthConfig configures JWT authentication of server clients.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
	Audience  string
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Engine:          "sqlite",
		DatabasesPath:   "./databases",
		ConnectionLimit: 1,
		AcquireTimeout:  30 * time.Second,
		StatementCache:  65536,
		Server:          ServerConfig{Bind: "127.0.0.1:3306"},
		Log:             LogConfig{Level: "info", Format: "text"},
	}
}

// RegisterFlags defines one flag per option, bound to the fields of c and
// defaulting to their current values.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Engine, "engine", c.Engine, "Storage engine: sqlite or duckdb")
	fs.StringVarP(&c.DatabasesPath, "databases-path", "d", c.DatabasesPath, "Directory holding one database file per tenant")
	fs.IntVar(&c.ConnectionLimit, "connection-limit", c.ConnectionLimit, "Number of pooled connections")
	fs.DurationVar(&c.AcquireTimeout, "acquire-timeout", c.AcquireTimeout, "Maximum wait for a pooled connection")
	fs.IntVar(&c.StatementCache, "statement-cache", c.StatementCache, "Prepared statements cached per connection")
	fs.BoolVar(&c.TestMode, "test-mode", c.TestMode, "Detach tenants when their connection is released")

	fs.StringVar(&c.Seed.URL, "seed.url", c.Seed.URL, "Source of missing tenant databases; {tenant} is replaced by the tenant name")

	fs.StringVar(&c.S3.Region, "s3.region", c.S3.Region, "S3 region")
	fs.StringVar(&c.S3.Endpoint, "s3.endpoint", c.S3.Endpoint, "S3 endpoint for compatible stores")
	fs.StringVar(&c.S3.AccessKey, "s3.access-key", c.S3.AccessKey, "S3 access key")
	fs.StringVar(&c.S3.SecretKey, "s3.secret-key", c.S3.SecretKey, "S3 secret key")

	fs.StringVar(&c.Datamodel.Path, "datamodel.path", c.Datamodel.Path, "Datamodel JSON file")
	fs.StringVar(&c.Datamodel.GitURL, "datamodel.git-url", c.Datamodel.GitURL, "Git repository holding the datamodel")
	fs.StringVar(&c.Datamodel.Ref, "datamodel.ref", c.Datamodel.Ref, "Branch or tag of the datamodel repository")
	fs.StringVar(&c.Datamodel.File, "datamodel.file", c.Datamodel.File, "Datamodel file inside the repository")
	fs.StringVar(&c.Datamodel.Token, "datamodel.token", c.Datamodel.Token, "Access token for the datamodel repository")
	fs.StringVar(&c.Datamodel.SSHKey, "datamodel.ssh-key", c.Datamodel.SSHKey, "SSH key for the datamodel repository")

	fs.StringVar(&c.Server.Bind, "server.bind", c.Server.Bind, "Server listen address")
	fs.BoolVar(&c.Server.Auth.Enabled, "server.auth.enabled", c.Server.Auth.Enabled, "Require JWT authentication")
	fs.StringVar(&c.Server.Auth.JWTSecret, "server.auth.jwt-secret", c.Server.Auth.JWTSecret, "HMAC secret for JWT validation")
	fs.StringVar(&c.Server.Auth.Issuer, "server.auth.issuer", c.Server.Auth.Issuer, "Expected JWT issuer")
	fs.StringVar(&c.Server.Auth.Audience, "server.auth.audience", c.Server.Auth.Audience, "Expected JWT audience")

	fs.StringVar(&c.Log.Level, "log.level", c.Log.Level, "Log level: debug, info, warn or error")
	fs.StringVar(&c.Log.Format, "log.format", c.Log.Format, "Log format: text or json")
	fs.StringVar(&c.Log.File, "log.file", c.Log.File, "Log file; empty logs to stderr")

	fs.StringP("config", "c", "", "Configuration file to read from")
}

// Load applies configuration from the command line, the environment and
// the TOML file named by the "config" flag, in that priority order, to the
// variables flags are bound to. Keys in the file must name known flags.
func Load(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	valid := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		valid[f.Name] = true
	})

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", file, err)
		}
		for _, key := range v.AllKeys() {
			if !valid[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		// Flags set on the command line already hold the winning value.
		if flagErr != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		var value string
		switch f.Value.Type() {
		case "stringSlice", "stringArray":
			// A list from the file is not a comma separated string.
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		default:
			value = v.GetString(f.Name)
		}
		if err := f.Value.Set(value); err != nil {
			flagErr = fmt.Errorf("invalid value for %s: %w", f.Name, err)
		}
	})
	return flagErr
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch c.Engine {
	case "sqlite", "duckdb":
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.DatabasesPath == "" {
		return fmt.Errorf("databases path is required")
	}
	if c.ConnectionLimit < 1 {
		return fmt.Errorf("connection limit must be at least 1, got %d", c.ConnectionLimit)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire timeout must be positive, got %s", c.AcquireTimeout)
	}
	if c.StatementCache < 0 {
		return fmt.Errorf("statement cache size must not be negative")
	}
	if c.Datamodel.Path != "" && c.Datamodel.GitURL != "" {
		return fmt.Errorf("datamodel path and git url are mutually exclusive")
	}
	if c.Datamodel.Token != "" && c.Datamodel.SSHKey != "" {
		return fmt.Errorf("datamodel token and ssh key are mutually exclusive")
	}
	if c.Server.Auth.Enabled && c.Server.Auth.JWTSecret == "" {
		return fmt.Errorf("server auth requires a jwt secret")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
