package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nickyhof/TenantDB"
	"github.com/nickyhof/TenantDB/config"
	"github.com/nickyhof/TenantDB/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	cfg := config.Default()
	rc := &cobra.Command{
		Use:           "tenantdb-server",
		Short:         "Serve TenantDB requests over TCP",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(viper.New(), cmd.Flags()); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, stdout)
		},
	}
	cfg.RegisterFlags(rc.Flags())
	rc.SetOut(stdout)
	return rc
}

func serve(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: cfg.Log.File}); err != nil {
		return err
	}
	defer logging.Close()

	inst, err := TenantDB.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open instance: %w", err)
	}
	defer inst.Close()

	server := NewServer(inst.Dispatcher, &cfg.Server.Auth)
	if err := server.Start(cfg.Server.Bind); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "TenantDB server %s\n", Version)
	fmt.Fprintf(stdout, "Engine %s, datamodel %s, listening on %s\n", cfg.Engine, inst.Schema.DBName, server.Addr())
	fmt.Fprintln(stdout, "Send JSON requests (one per line), 'quit' to disconnect")

	<-ctx.Done()
	logging.GetLogger().Info("Shutting down", slog.String("addr", server.Addr()))
	return server.Stop()
}
