package TenantDB

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nickyhof/TenantDB/config"
	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/db"
	"github.com/nickyhof/TenantDB/ps"
	"github.com/nickyhof/TenantDB/sql"
)

const datamodel = `{
  "dbName": "t1",
  "models": [
    {
      "name": "Account",
      "fields": [
        {"name": "id", "type": "GraphQLID", "isId": true},
        {"name": "name", "type": "String", "isUnique": true},
        {"name": "balance", "type": "Int"}
      ]
    },
    {
      "name": "Owner",
      "fields": [
        {"name": "id", "type": "GraphQLID", "isId": true},
        {"name": "tags", "type": "String", "isList": true}
      ],
      "relationFields": [
        {"name": "pets", "relation": "OwnerPets", "relatedModel": "Pet"}
      ]
    },
    {
      "name": "Pet",
      "fields": [
        {"name": "id", "type": "GraphQLID", "isId": true},
        {"name": "name", "type": "String"}
      ],
      "relationFields": [
        {"name": "owner", "relation": "OwnerPets", "relatedModel": "Owner"}
      ]
    }
  ],
  "relations": [
    {"name": "OwnerPets", "modelA": "Owner", "modelB": "Pet"}
  ]
}`

var accountDDL = `CREATE TABLE "%s"."Account" ("id" VARCHAR PRIMARY KEY, "name" VARCHAR UNIQUE, "balance" INTEGER)`

var ownerDDL = []string{
	`CREATE TABLE "%s"."Owner" ("id" VARCHAR PRIMARY KEY)`,
	`CREATE TABLE "%s"."Pet" ("id" VARCHAR PRIMARY KEY, "name" VARCHAR)`,
	`CREATE TABLE "%s"."_OwnerPets" ("A" VARCHAR NOT NULL, "B" VARCHAR NOT NULL, UNIQUE ("A", "B"))`,
	`CREATE TABLE "%s"."Owner_tags" ("nodeId" VARCHAR NOT NULL, "position" INTEGER NOT NULL, "value" VARCHAR, PRIMARY KEY ("nodeId", "position"))`,
}

// TestFunc is the signature for test functions that work with any engine
type TestFunc func(t *testing.T, inst *Instance)

// runWithBothEngines runs a test function against SQLite and DuckDB
func runWithBothEngines(t *testing.T, testFunc TestFunc) {
	for _, engine := range []string{"sqlite", "duckdb"} {
		t.Run(engine, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "datamodel.json")
			if err := os.WriteFile(path, []byte(datamodel), 0o600); err != nil {
				t.Fatalf("Failed to write datamodel: %v", err)
			}
			cfg := config.Default()
			cfg.Engine = engine
			cfg.DatabasesPath = filepath.Join(dir, "databases")
			cfg.Datamodel.Path = path

			inst, err := Open(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Failed to open instance: %v", err)
			}
			defer inst.Close()
			testFunc(t, inst)
		})
	}
}

func createTables(t *testing.T, inst *Instance, tenant string) {
	t.Helper()
	err := inst.Persistence.WithTransaction(context.Background(), tenant, func(tx ps.Transaction) error {
		_, err := tx.Write(context.Background(), sql.Raw{SQL: fmt.Sprintf(accountDDL, tenant)})
		return err
	})
	if err != nil {
		t.Fatalf("Failed to create tables in %s: %v", tenant, err)
	}
}

func accountInput(model *core.Model, id, name string, balance int64) db.NodeInput {
	return db.NodeInput{Args: sql.Args{
		{Field: model.ID(), Value: core.IDValue(core.StringID(id))},
		{Field: model.Field("name"), Value: core.StringValue(name)},
		{Field: model.Field("balance"), Value: core.IntValue(balance)},
	}}
}

// TestLookupWriteRollback covers a pool of one connection serving tenant t1:
// a missing lookup yields nothing, a committed write becomes visible and a
// failed write leaves no trace.
func TestLookupWriteRollback(t *testing.T) {
	runWithBothEngines(t, func(t *testing.T, inst *Instance) {
		ctx := context.Background()
		createTables(t, inst, "t1")
		account := inst.Schema.Model("Account")
		byID := func(id string) sql.NodeSelector {
			return sql.NodeSelector{Field: account.ID(), Value: core.IDValue(core.StringID(id))}
		}

		node, err := inst.Resolver.GetNodeByWhere(ctx, byID("a1"), account.ScalarFields())
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if node != nil {
			t.Fatalf("Expected no account, got %+v", node)
		}

		if _, err := inst.Resolver.CreateNode(ctx, account, accountInput(account, "a1", "alice", 100)); err != nil {
			t.Fatalf("Failed to create account: %v", err)
		}
		node, err = inst.Resolver.GetNodeByWhere(ctx, byID("a1"), account.ScalarFields())
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if node == nil {
			t.Fatal("Expected account after commit")
		}
		if v, _ := node.Get("balance"); v != core.IntValue(100) {
			t.Errorf("Expected balance 100, got %v", v)
		}

		_, err = inst.Resolver.CreateNode(ctx, account, accountInput(account, "a2", "alice", 5))
		if err == nil {
			t.Fatal("Expected duplicate name to fail")
		}
		node, err = inst.Resolver.GetNodeByWhere(ctx, byID("a2"), account.ScalarFields())
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if node != nil {
			t.Errorf("Failed write is visible: %+v", node)
		}

		// The connection is still usable after the rollback.
		n, err := inst.Resolver.CountByModel(ctx, account, sql.QueryArguments{})
		if err != nil || n != 1 {
			t.Errorf("CountByModel = %d, %v; want 1", n, err)
		}
	})
}

// petsByOwner maps each parent id to the ids of the nodes reached from it.
func petsByOwner(t *testing.T, nodes core.ManyNodes) map[string][]string {
	t.Helper()
	got := make(map[string][]string)
	for _, n := range nodes.Nodes {
		if n.ParentID == nil {
			t.Fatalf("Related node without parent id: %+v", n)
		}
		id, err := core.ToGraphqlID(n.Values[0])
		if err != nil {
			t.Fatalf("Bad node id: %v", err)
		}
		got[n.ParentID.Str] = append(got[n.ParentID.Str], id.Str)
	}
	return got
}

func TestRelatedNodesAndScalarLists(t *testing.T) {
	runWithBothEngines(t, func(t *testing.T, inst *Instance) {
		ctx := context.Background()
		err := inst.Persistence.WithTransaction(ctx, "t1", func(tx ps.Transaction) error {
			for _, stmt := range ownerDDL {
				if _, err := tx.Write(ctx, sql.Raw{SQL: fmt.Sprintf(stmt, "t1")}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Failed to create tables: %v", err)
		}

		owner := inst.Schema.Model("Owner")
		pet := inst.Schema.Model("Pet")
		tags := owner.Field("tags")
		owners := map[string][]string{"o1": {"x", "y"}, "o2": {"z"}, "o3": nil}
		for id, values := range owners {
			in := db.NodeInput{Args: sql.Args{{Field: owner.ID(), Value: core.IDValue(core.StringID(id))}}}
			if len(values) > 0 {
				list := make([]core.Value, len(values))
				for i, v := range values {
					list[i] = core.StringValue(v)
				}
				in.Lists = []db.ListArg{{Field: tags, Values: list}}
			}
			if _, err := inst.Resolver.CreateNode(ctx, owner, in); err != nil {
				t.Fatalf("Failed to create owner %s: %v", id, err)
			}
		}
		for _, id := range []string{"p1", "p2", "p3"} {
			in := db.NodeInput{Args: sql.Args{
				{Field: pet.ID(), Value: core.IDValue(core.StringID(id))},
				{Field: pet.Field("name"), Value: core.StringValue("pet " + id)},
			}}
			if _, err := inst.Resolver.CreateNode(ctx, pet, in); err != nil {
				t.Fatalf("Failed to create pet %s: %v", id, err)
			}
		}
		pets := owner.RelationField("pets")
		for _, link := range [][2]string{{"o1", "p2"}, {"o1", "p1"}, {"o2", "p3"}} {
			child := sql.NodeSelector{Field: pet.ID(), Value: core.IDValue(core.StringID(link[1]))}
			if err := inst.Resolver.Connect(ctx, pets, core.StringID(link[0]), child); err != nil {
				t.Fatalf("Failed to connect %v: %v", link, err)
			}
		}

		parents := []core.GraphqlID{core.StringID("o1"), core.StringID("o2"), core.StringID("o3")}
		nodes, err := inst.Resolver.GetRelatedNodes(ctx, pets, parents, sql.QueryArguments{}, pet.ScalarFields())
		if err != nil {
			t.Fatalf("GetRelatedNodes failed: %v", err)
		}
		want := map[string][]string{"o1": {"p1", "p2"}, "o2": {"p3"}}
		if diff := cmp.Diff(want, petsByOwner(t, nodes)); diff != "" {
			t.Errorf("Related nodes mismatch (-want +got):\n%s", diff)
		}

		first := 1
		nodes, err = inst.Resolver.GetRelatedNodes(ctx, pets, parents, sql.QueryArguments{First: &first}, pet.ScalarFields())
		if err != nil {
			t.Fatalf("Paged GetRelatedNodes failed: %v", err)
		}
		want = map[string][]string{"o1": {"p1"}, "o2": {"p3"}}
		if diff := cmp.Diff(want, petsByOwner(t, nodes)); diff != "" {
			t.Errorf("Paged related nodes mismatch (-want +got):\n%s", diff)
		}

		nodes, err = inst.Resolver.GetRelatedNodes(ctx, pets, parents, sql.QueryArguments{Skip: 1}, pet.ScalarFields())
		if err != nil {
			t.Fatalf("Skipped GetRelatedNodes failed: %v", err)
		}
		want = map[string][]string{"o1": {"p2"}}
		if diff := cmp.Diff(want, petsByOwner(t, nodes)); diff != "" {
			t.Errorf("Skipped related nodes mismatch (-want +got):\n%s", diff)
		}

		lists, err := inst.Resolver.GetScalarListValuesByNodeIDs(ctx, tags, parents)
		if err != nil {
			t.Fatalf("GetScalarListValuesByNodeIDs failed: %v", err)
		}
		wantLists := []core.ScalarListValues{
			{NodeID: core.StringID("o1"), Values: []core.Value{core.StringValue("x"), core.StringValue("y")}},
			{NodeID: core.StringID("o2"), Values: []core.Value{core.StringValue("z")}},
		}
		if diff := cmp.Diff(wantLists, lists); diff != "" {
			t.Errorf("Scalar lists mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestTenantIsolation(t *testing.T) {
	runWithBothEngines(t, func(t *testing.T, inst *Instance) {
		ctx := context.Background()
		for _, tenant := range []string{"t1", "acme", "globex"} {
			createTables(t, inst, tenant)
		}
		for i, tenant := range []string{"acme", "globex"} {
			account := inst.Tenant(tenant).Model("Account")
			for j := 0; j <= i; j++ {
				id := fmt.Sprintf("%s-%d", tenant, j)
				if _, err := inst.Resolver.CreateNode(ctx, account, accountInput(account, id, id, 1)); err != nil {
					t.Fatalf("Failed to create %s: %v", id, err)
				}
			}
		}
		for tenant, want := range map[string]int64{"t1": 0, "acme": 1, "globex": 2} {
			n, err := inst.Resolver.CountByModel(ctx, inst.Tenant(tenant).Model("Account"), sql.QueryArguments{})
			if err != nil {
				t.Fatalf("Count in %s failed: %v", tenant, err)
			}
			if n != want {
				t.Errorf("Tenant %s has %d accounts, want %d", tenant, n, want)
			}
		}
		for _, tenant := range []string{"t1", "acme", "globex"} {
			if _, err := os.Stat(inst.Persistence.TenantPath(tenant)); err != nil {
				t.Errorf("Expected database file for %s: %v", tenant, err)
			}
		}
	})
}

func TestConcurrentUnitsOfWork(t *testing.T) {
	dir := t.TempDir()
	schema, err := core.ParseDatamodel([]byte(datamodel))
	if err != nil {
		t.Fatalf("Failed to parse datamodel: %v", err)
	}
	cfg := config.Default()
	cfg.DatabasesPath = dir
	cfg.ConnectionLimit = 4
	inst, err := OpenWithSchema(context.Background(), cfg, schema)
	if err != nil {
		t.Fatalf("Failed to open instance: %v", err)
	}
	defer inst.Close()

	tenants := []string{"t1", "t2", "t3"}
	for _, tenant := range tenants {
		createTables(t, inst, tenant)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tenant := tenants[i%len(tenants)]
			account := inst.Tenant(tenant).Model("Account")
			id := fmt.Sprintf("a%d", i)
			if _, err := inst.Resolver.CreateNode(ctx, account, accountInput(account, id, id, int64(i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent write failed: %v", err)
	}

	for _, tenant := range tenants {
		n, err := inst.Resolver.CountByTable(ctx, tenant, "Account")
		if err != nil || n != 10 {
			t.Errorf("Tenant %s: CountByTable = %d, %v; want 10", tenant, n, err)
		}
	}
}

func TestDispatcherAcrossTenants(t *testing.T) {
	runWithBothEngines(t, func(t *testing.T, inst *Instance) {
		ctx := context.Background()
		createTables(t, inst, "t1")
		createTables(t, inst, "acme")

		resp := inst.Dispatcher.Execute(ctx, db.Request{
			Action: db.ActionCreate, Tenant: "acme", Model: "Account",
			Data: map[string]any{"id": "x", "name": "x", "balance": float64(3)},
		})
		if !resp.Success {
			t.Fatalf("Create failed: %+v", resp)
		}
		resp = inst.Dispatcher.Execute(ctx, db.Request{Action: db.ActionCountTable, Tenant: "acme", Table: "Account"})
		if got := resp.Result.(map[string]any)["count"]; got != int64(1) {
			t.Errorf("Expected 1 account in acme, got %v", got)
		}
		resp = inst.Dispatcher.Execute(ctx, db.Request{Action: db.ActionCountTable, Table: "Account"})
		if got := resp.Result.(map[string]any)["count"]; got != int64(0) {
			t.Errorf("Expected no accounts in t1, got %v", got)
		}
	})
}

func TestOpenRequiresDatamodel(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasesPath = t.TempDir()
	_, err := Open(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error without datamodel")
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ConnectionLimit = 0
	_, err := OpenWithSchema(context.Background(), cfg, &core.Schema{DBName: "t1"})
	if err == nil {
		t.Fatal("Expected validation error")
	}
}

func TestPersistenceOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Seed.URL = "s3://bucket/{tenant}.db"
	cfg.S3.Region = "eu-west-1"
	opts, err := PersistenceOptions(cfg)
	if err != nil {
		t.Fatalf("PersistenceOptions failed: %v", err)
	}
	if opts.Seeder == nil || opts.Seeder.S3 == nil || opts.Seeder.S3.Region != "eu-west-1" {
		t.Errorf("Seeder not wired to S3 settings: %+v", opts.Seeder)
	}
	if opts.Dialect.Name() != "sqlite" {
		t.Errorf("Expected sqlite dialect, got %s", opts.Dialect.Name())
	}

	cfg.Engine = "oracle"
	if _, err := PersistenceOptions(cfg); err == nil {
		t.Error("Expected unknown engine error")
	}
}

func TestSeededTenant(t *testing.T) {
	dir := t.TempDir()
	schema, _ := core.ParseDatamodel([]byte(datamodel))

	// Build a template tenant, then export it as the seed.
	cfg := config.Default()
	cfg.DatabasesPath = filepath.Join(dir, "template")
	tmpl, err := OpenWithSchema(context.Background(), cfg, schema)
	if err != nil {
		t.Fatalf("Failed to open template: %v", err)
	}
	createTables(t, tmpl, "t1")
	account := schema.Model("Account")
	if _, err := tmpl.Resolver.CreateNode(context.Background(), account, accountInput(account, "seed", "seed", 1)); err != nil {
		t.Fatalf("Failed to create seed row: %v", err)
	}
	seed := filepath.Join(dir, "seed.db")
	if err := tmpl.Persistence.Export(context.Background(), "t1", seed); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	tmpl.Close()

	cfg = config.Default()
	cfg.DatabasesPath = filepath.Join(dir, "live")
	cfg.Seed.URL = seed
	inst, err := OpenWithSchema(context.Background(), cfg, schema)
	if err != nil {
		t.Fatalf("Failed to open instance: %v", err)
	}
	defer inst.Close()

	n, err := inst.Resolver.CountByModel(context.Background(), inst.Tenant("fresh").Model("Account"), sql.QueryArguments{})
	if err != nil {
		t.Fatalf("Count on seeded tenant failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected seeded row, got %d", n)
	}
}

func TestInvalidTenant(t *testing.T) {
	schema, _ := core.ParseDatamodel([]byte(datamodel))
	cfg := config.Default()
	cfg.DatabasesPath = t.TempDir()
	inst, err := OpenWithSchema(context.Background(), cfg, schema)
	if err != nil {
		t.Fatalf("Failed to open instance: %v", err)
	}
	defer inst.Close()

	_, err = inst.Resolver.CountByModel(context.Background(), inst.Tenant("../escape").Model("Account"), sql.QueryArguments{})
	if !errors.Is(err, ps.ErrInvalidTenant) {
		t.Errorf("Expected ErrInvalidTenant, got %v", err)
	}
}
