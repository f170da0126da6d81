package TenantDB

import (
	"context"
	"fmt"

	"github.com/nickyhof/TenantDB/config"
	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/db"
	"github.com/nickyhof/TenantDB/ps"
)

// Instance is an opened connector: the tenant pool, the datamodel and the
// resolver running on them.
type Instance struct {
	Config      config.Config
	Persistence *ps.Persistence
	Schema      *core.Schema
	Resolver    *db.Resolver
	Dispatcher  *db.Dispatcher
}

// Open validates cfg, loads the datamodel it names and opens the pool.
func Open(ctx context.Context, cfg config.Config) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schema, err := LoadDatamodel(ctx, cfg.Datamodel)
	if err != nil {
		return nil, err
	}
	return OpenWithSchema(ctx, cfg, schema)
}

// OpenWithSchema opens the pool for an already parsed datamodel.
func OpenWithSchema(ctx context.Context, cfg config.Config, schema *core.Schema) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := PersistenceOptions(cfg)
	if err != nil {
		return nil, err
	}
	persistence, err := ps.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	resolver := db.NewResolver(persistence)
	return &Instance{
		Config:      cfg,
		Persistence: persistence,
		Schema:      schema,
		Resolver:    resolver,
		Dispatcher:  db.NewDispatcher(resolver, schema),
	}, nil
}

// Close closes the pool.
func (i *Instance) Close() error {
	return i.Persistence.Close()
}

// Tenant returns the datamodel bound to tenant.
func (i *Instance) Tenant(tenant string) *core.Schema {
	return i.Dispatcher.SchemaFor(tenant)
}

// PersistenceOptions maps cfg onto pool options.
func PersistenceOptions(cfg config.Config) (ps.Options, error) {
	dialect, err := ps.DialectByName(cfg.Engine)
	if err != nil {
		return ps.Options{}, err
	}
	opts := ps.Options{
		Dialect:            dialect,
		DatabasesPath:      cfg.DatabasesPath,
		ConnectionLimit:    cfg.ConnectionLimit,
		AcquireTimeout:     cfg.AcquireTimeout,
		TestMode:           cfg.TestMode,
		StatementCacheSize: cfg.StatementCache,
	}
	if cfg.S3 != (config.S3Config{}) {
		opts.S3 = &ps.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}
	}
	if cfg.Seed.URL != "" {
		opts.Seeder = &ps.Seeder{URL: cfg.Seed.URL, S3: opts.S3}
	}
	return opts, nil
}

// LoadDatamodel reads the datamodel from a local file or a git repository.
func LoadDatamodel(ctx context.Context, cfg config.DatamodelConfig) (*core.Schema, error) {
	switch {
	case cfg.Path != "":
		return ps.LoadDatamodelFile(cfg.Path)
	case cfg.GitURL != "":
		auth := &ps.RemoteAuth{Type: ps.AuthTypeNone}
		switch {
		case cfg.Token != "":
			auth = &ps.RemoteAuth{Type: ps.AuthTypeToken, Token: cfg.Token}
		case cfg.SSHKey != "":
			auth = &ps.RemoteAuth{Type: ps.AuthTypeSSH, KeyPath: cfg.SSHKey}
		}
		return ps.LoadDatamodelGit(ctx, cfg.GitURL, cfg.Ref, cfg.File, auth)
	}
	return nil, fmt.Errorf("no datamodel configured: set datamodel.path or datamodel.git-url")
}
