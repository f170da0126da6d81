package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nickyhof/TenantDB"
	"github.com/nickyhof/TenantDB/config"
	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/db"
	"github.com/nickyhof/TenantDB/logging"
	"github.com/nickyhof/TenantDB/ps"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	ErrorColor = "\033[31m" // Red
	ResetColor = "\033[0m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// CLI holds the state shared by the subcommands.
type CLI struct {
	cfg  config.Config
	inst *TenantDB.Instance
	out  io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%sError: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}
}

// run executes one command line. The instance opened for it is closed
// before run returns, whether or not the command failed.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cli := &CLI{cfg: config.Default(), out: stdout}
	defer cli.close()

	cmd := cli.newRootCommand(stdin)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

func (cli *CLI) newRootCommand(stdin io.Reader) *cobra.Command {
	rc := &cobra.Command{
		Use:           "tenantdb",
		Short:         "Inspect and maintain TenantDB tenant databases",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(viper.New(), cmd.Flags()); err != nil {
				return err
			}
			return cli.open(cmd.Context())
		},
	}
	cli.cfg.RegisterFlags(rc.PersistentFlags())

	rc.AddCommand(cli.newCountCommand())
	rc.AddCommand(cli.newCountTableCommand())
	rc.AddCommand(cli.newListCommand())
	rc.AddCommand(cli.newGetCommand())
	rc.AddCommand(cli.newExecCommand(stdin))
	rc.AddCommand(cli.newSeedCommand())
	rc.AddCommand(cli.newExportCommand())
	return rc
}

func (cli *CLI) open(ctx context.Context) error {
	if err := cli.cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Init(logging.Config{Level: cli.cfg.Log.Level, Format: cli.cfg.Log.Format, OutputPath: cli.cfg.Log.File}); err != nil {
		return err
	}
	inst, err := TenantDB.Open(ctx, cli.cfg)
	if err != nil {
		logging.Close()
		return err
	}
	cli.inst = inst
	return nil
}

func (cli *CLI) close() error {
	if cli.inst == nil {
		return nil
	}
	err := cli.inst.Close()
	cli.inst = nil
	if lerr := logging.Close(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}

// queryFlags are the listing options shared by count and list.
type queryFlags struct {
	tenant  string
	filters []string
	skip    int
	first   int
	orderBy string
	fields  []string
}

func (q *queryFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringVarP(&q.tenant, "tenant", "t", "", "Tenant to query; defaults to the datamodel's database")
	cmd.Flags().StringArrayVarP(&q.filters, "filter", "f", nil, "Filter as field:op:value, e.g. age:gte:21 (repeatable)")
	cmd.Flags().IntVar(&q.skip, "skip", 0, "Rows to skip")
	cmd.Flags().IntVar(&q.first, "first", -1, "Maximum rows to return; negative for all")
	if paging {
		cmd.Flags().StringVar(&q.orderBy, "order-by", "", "Order field, optionally suffixed with :desc")
		cmd.Flags().StringSliceVar(&q.fields, "select", nil, "Fields to return; all scalar fields when empty")
	}
}

// request builds a dispatcher request; filter values are decoded as JSON
// when possible and taken as strings otherwise.
func (q *queryFlags) request(action, model string) (db.Request, error) {
	req := db.Request{Action: action, Tenant: q.tenant, Model: model, Skip: q.skip, Select: q.fields}
	if q.first >= 0 {
		first := q.first
		req.First = &first
	}
	for _, f := range q.filters {
		parts := strings.SplitN(f, ":", 3)
		if len(parts) != 3 {
			return db.Request{}, fmt.Errorf("invalid filter %q: expected field:op:value", f)
		}
		req.Filter = append(req.Filter, db.Condition{Field: parts[0], Op: parts[1], Value: parseLiteral(parts[2])})
	}
	if q.orderBy != "" {
		field, dir, _ := strings.Cut(q.orderBy, ":")
		req.OrderBy = &db.Order{Field: field, Desc: strings.EqualFold(dir, "desc")}
	}
	return req, nil
}

// parseLiteral reads a command-line value the way a JSON request would
// carry it.
func parseLiteral(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func (cli *CLI) model(tenant, name string) (*core.Model, error) {
	m := cli.inst.Tenant(tenant).Model(name)
	if m == nil {
		return nil, fmt.Errorf("unknown model %q", name)
	}
	return m, nil
}

func (cli *CLI) newCountCommand() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "count <model>",
		Short: "Count the nodes of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			req, err := q.request(db.ActionCount, args[0])
			if err != nil {
				return err
			}
			model, err := cli.model(q.tenant, args[0])
			if err != nil {
				return err
			}
			qa, err := db.ParseArgs(model, req)
			if err != nil {
				return err
			}
			n, err := cli.inst.Resolver.CountByModel(cmd.Context(), model, qa)
			if err != nil {
				return err
			}
			return db.CountResult{Count: n, Elapsed: time.Since(start)}.Display(cli.out)
		},
	}
	q.register(cmd, false)
	return cmd
}

func (cli *CLI) newCountTableCommand() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "count-table <table>",
		Short: "Count the rows of any table of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			schema := cli.inst.Tenant(tenant)
			n, err := cli.inst.Resolver.CountByTable(cmd.Context(), schema.DBName, args[0])
			if err != nil {
				return err
			}
			return db.CountResult{Count: n, Elapsed: time.Since(start)}.Display(cli.out)
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant to query; defaults to the datamodel's database")
	return cmd
}

func (cli *CLI) newListCommand() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "list <model>",
		Short: "List the nodes of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			req, err := q.request(db.ActionFindMany, args[0])
			if err != nil {
				return err
			}
			model, err := cli.model(q.tenant, args[0])
			if err != nil {
				return err
			}
			qa, err := db.ParseArgs(model, req)
			if err != nil {
				return err
			}
			fields, err := core.Select(model, q.fields...)
			if err != nil {
				return err
			}
			nodes, err := cli.inst.Resolver.GetNodes(cmd.Context(), model, qa, fields)
			if err != nil {
				return err
			}
			return db.QueryResult{Nodes: nodes, Elapsed: time.Since(start)}.Display(cli.out)
		},
	}
	q.register(cmd, true)
	return cmd
}

func (cli *CLI) newGetCommand() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "get <model> <field> <value>",
		Short: "Look up one node by a unique field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			model, err := cli.model(tenant, args[0])
			if err != nil {
				return err
			}
			selector, err := db.ParseSelector(model, &db.Selector{Field: args[1], Value: selectorValue(model, args[1], args[2])})
			if err != nil {
				return err
			}
			fields := model.ScalarFields()
			node, err := cli.inst.Resolver.GetNodeByWhere(cmd.Context(), selector, fields)
			if err != nil {
				return err
			}
			nodes := core.ManyNodes{FieldNames: fields.Names()}
			if node != nil {
				nodes.Nodes = []core.Node{node.Node}
			}
			return db.QueryResult{Nodes: nodes, Elapsed: time.Since(start)}.Display(cli.out)
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant to query; defaults to the datamodel's database")
	return cmd
}

// selectorValue keeps text fields verbatim so "007" stays a string.
func selectorValue(model *core.Model, field, raw string) any {
	if f := model.Field(field); f != nil {
		switch f.Type {
		case core.StringType, core.EnumType, core.GraphQLIDType, core.UUIDType, core.DateTimeType:
			return raw
		}
	}
	return parseLiteral(raw)
}

func (cli *CLI) newExecCommand(stdin io.Reader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Run JSON requests, one per line, from a file or standard input",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open file: %w", err)
				}
				defer f.Close()
				in = f
			}
			return cli.execRequests(cmd.Context(), in)
		},
	}
	return cmd
}

// execRequests answers every request line with one JSON response line.
// Blank lines and lines starting with '#' are skipped. It stops at the
// first malformed line.
func (cli *CLI) execRequests(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	enc := json.NewEncoder(cli.out)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var req db.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := enc.Encode(cli.inst.Dispatcher.Execute(ctx, req)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (cli *CLI) newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <tenant>...",
		Short: "Create the database files of tenants, copying the seed when configured",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, tenant := range args {
				start := time.Now()
				err := cli.inst.Persistence.WithTransaction(cmd.Context(), tenant, func(ps.Transaction) error { return nil })
				if err != nil {
					return err
				}
				res := db.WriteResult{Action: "seeded", ID: tenant, Elapsed: time.Since(start)}
				if err := res.Display(cli.out); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (cli *CLI) newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <tenant> <destination>",
		Short: "Copy a tenant's database to a path, file:// or s3:// URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := cli.inst.Persistence.Export(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return db.WriteResult{Action: "exported", ID: args[0] + " to " + args[1], Elapsed: time.Since(start)}.Display(cli.out)
		},
	}
}
