package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nickyhof/TenantDB"
	"github.com/nickyhof/TenantDB/config"
	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/db"
	"github.com/nickyhof/TenantDB/ps"
	"github.com/nickyhof/TenantDB/sql"
)

const testDatamodel = `{
  "dbName": "t1",
  "models": [
    {
      "name": "User",
      "fields": [
        {"name": "id", "type": "GraphQLID", "isId": true},
        {"name": "email", "type": "String", "isUnique": true},
        {"name": "age", "type": "Int"}
      ]
    }
  ]
}`

// setupTestCLI writes a datamodel and a populated tenant t1, and returns
// the flags that point a command at them.
func setupTestCLI(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "datamodel.json")
	if err := os.WriteFile(modelPath, []byte(testDatamodel), 0o600); err != nil {
		t.Fatalf("Failed to write datamodel: %v", err)
	}
	schema, err := core.ParseDatamodel([]byte(testDatamodel))
	if err != nil {
		t.Fatalf("Failed to parse datamodel: %v", err)
	}

	cfg := config.Default()
	cfg.DatabasesPath = filepath.Join(dir, "databases")
	inst, err := TenantDB.OpenWithSchema(context.Background(), cfg, schema)
	if err != nil {
		t.Fatalf("Failed to open instance: %v", err)
	}
	defer inst.Close()

	ctx := context.Background()
	err = inst.Persistence.WithTransaction(ctx, "t1", func(tx ps.Transaction) error {
		_, err := tx.Write(ctx, sql.Raw{SQL: `CREATE TABLE "t1"."User" ("id" TEXT PRIMARY KEY, "email" TEXT UNIQUE, "age" INTEGER)`})
		return err
	})
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	users := []map[string]any{
		{"id": "u1", "email": "alice@example.com", "age": 30.0},
		{"id": "u2", "email": "bob@example.com", "age": 17.0},
		{"id": "u3", "email": "carol@example.com", "age": 45.0},
	}
	for _, data := range users {
		resp := inst.Dispatcher.Execute(ctx, db.Request{Action: db.ActionCreate, Model: "User", Data: data})
		if !resp.Success {
			t.Fatalf("Failed to create user: %s", resp.Error)
		}
	}

	return []string{"--databases-path", cfg.DatabasesPath, "--datamodel.path", modelPath}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestCLICount(t *testing.T) {
	flags := setupTestCLI(t)

	tests := []struct {
		name   string
		args   []string
		prefix string
	}{
		{"all", []string{"count", "User"}, "3 ("},
		{"filtered", []string{"count", "User", "-f", "age:gte:18"}, "2 ("},
		{"paged", []string{"count", "User", "--skip", "1", "--first", "1"}, "1 ("},
		{"table", []string{"count-table", "User"}, "3 ("},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, "", append(flags, tt.args...)...)
			if err != nil {
				t.Fatalf("count failed: %v", err)
			}
			if !strings.HasPrefix(out, tt.prefix) {
				t.Errorf("Expected output starting with %q, got %q", tt.prefix, out)
			}
		})
	}
}

func TestCLIList(t *testing.T) {
	flags := setupTestCLI(t)

	out, err := runCLI(t, "", append(flags, "list", "User", "--order-by", "age:desc", "--select", "email,age")...)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	carol := strings.Index(out, "carol@example.com")
	bob := strings.Index(out, "bob@example.com")
	if carol < 0 || bob < 0 || carol > bob {
		t.Errorf("Expected carol before bob in descending age order:\n%s", out)
	}
	if strings.Contains(out, "u1") {
		t.Errorf("Expected id column to be left out:\n%s", out)
	}
	if !strings.Contains(out, "3 rows") {
		t.Errorf("Expected row count in output:\n%s", out)
	}
}

func TestCLIListEmpty(t *testing.T) {
	flags := setupTestCLI(t)

	out, err := runCLI(t, "", append(flags, "list", "User", "-f", "age:gt:100")...)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.HasPrefix(out, "0 rows") {
		t.Errorf("Expected empty result, got %q", out)
	}
}

func TestCLIGet(t *testing.T) {
	flags := setupTestCLI(t)

	out, err := runCLI(t, "", append(flags, "get", "User", "email", "bob@example.com")...)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out, "u2") || !strings.Contains(out, "1 rows") {
		t.Errorf("Expected bob's row, got:\n%s", out)
	}

	out, err = runCLI(t, "", append(flags, "get", "User", "id", "nobody")...)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.HasPrefix(out, "0 rows") {
		t.Errorf("Expected no rows, got %q", out)
	}
}

func TestCLIErrors(t *testing.T) {
	flags := setupTestCLI(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown model", append(flags, "count", "Nope"), "unknown model"},
		{"bad filter", append(flags, "list", "User", "-f", "age"), "invalid filter"},
		{"bad operator", append(flags, "list", "User", "-f", "age:near:1"), "unknown filter operator"},
		{"non-unique selector", append(flags, "get", "User", "age", "30"), "age"},
		{"missing datamodel", []string{"--databases-path", t.TempDir(), "count", "User"}, "datamodel"},
		{"invalid config", append(flags, "--connection-limit", "0", "count", "User"), "connection limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCLIExec(t *testing.T) {
	flags := setupTestCLI(t)

	input := `# comments and blank lines are skipped

{"action": "create", "model": "User", "data": {"id": "u4", "email": "dave@example.com", "age": 22}}
{"action": "findOne", "model": "User", "where": {"field": "email", "value": "dave@example.com"}}
{"action": "count", "model": "User"}
{"action": "delete", "model": "User", "where": {"field": "id", "value": "missing"}}
`
	out, err := runCLI(t, input, append(flags, "exec")...)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}

	dec := json.NewDecoder(strings.NewReader(out))
	var responses []db.Response
	for dec.More() {
		var resp db.Response
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != 4 {
		t.Fatalf("Expected 4 responses, got %d:\n%s", len(responses), out)
	}
	for i, resp := range responses[:3] {
		if !resp.Success {
			t.Errorf("Response %d failed: %s", i, resp.Error)
		}
	}
	if node, _ := responses[1].Result.(map[string]any); node["id"] != "u4" {
		t.Errorf("Expected u4, got %#v", responses[1].Result)
	}
	if count, _ := responses[2].Result.(map[string]any); count["count"] != float64(4) {
		t.Errorf("Expected count 4, got %#v", responses[2].Result)
	}
	if responses[3].Success || responses[3].Kind != db.KindNotFound {
		t.Errorf("Expected not found, got %+v", responses[3])
	}
}

func TestCLIExecFile(t *testing.T) {
	flags := setupTestCLI(t)
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	if err := os.WriteFile(path, []byte(`{"action": "countTable", "table": "User"}`+"\n"), 0o600); err != nil {
		t.Fatalf("Failed to write requests: %v", err)
	}

	out, err := runCLI(t, "", append(flags, "exec", path)...)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if !strings.Contains(out, `"count":3`) {
		t.Errorf("Expected table count 3, got %q", out)
	}

	_, err = runCLI(t, "not json\n", append(flags, "exec")...)
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("Expected malformed line error, got %v", err)
	}
}

func TestCLISeedAndExport(t *testing.T) {
	flags := setupTestCLI(t)
	dir := t.TempDir()
	dest := filepath.Join(dir, "t1-copy.db")

	out, err := runCLI(t, "", append(flags, "export", "t1", dest)...)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.HasPrefix(out, "exported t1 to "+dest) {
		t.Errorf("Unexpected export output %q", out)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		t.Fatalf("Expected non-empty export at %s: %v", dest, err)
	}

	// A tenant seeded from the export starts with t1's rows.
	out, err = runCLI(t, "", append(flags, "--seed.url", "file://"+dest, "seed", "t2", "t3")...)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if !strings.Contains(out, "seeded t2") || !strings.Contains(out, "seeded t3") {
		t.Errorf("Unexpected seed output %q", out)
	}

	out, err = runCLI(t, "", append(flags, "count", "User", "--tenant", "t3")...)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if !strings.HasPrefix(out, "3 (") {
		t.Errorf("Expected seeded tenant to hold 3 users, got %q", out)
	}
}

func TestQueryFlagsRequest(t *testing.T) {
	q := queryFlags{
		tenant:  "t2",
		filters: []string{"age:gte:21", "email:ends_with:@example.com", "id:in:[\"a\",\"b\"]"},
		skip:    2,
		first:   5,
		orderBy: "email:DESC",
		fields:  []string{"email"},
	}
	req, err := q.request(db.ActionFindMany, "User")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	first := 5
	want := db.Request{
		Action: db.ActionFindMany,
		Tenant: "t2",
		Model:  "User",
		Select: []string{"email"},
		Skip:   2,
		First:  &first,
		Filter: []db.Condition{
			{Field: "age", Op: "gte", Value: float64(21)},
			{Field: "email", Op: "ends_with", Value: "@example.com"},
			{Field: "id", Op: "in", Value: []any{"a", "b"}},
		},
		OrderBy: &db.Order{Field: "email", Desc: true},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	q = queryFlags{first: -1}
	req, err = q.request(db.ActionCount, "User")
	if err != nil || req.First != nil {
		t.Errorf("Expected no limit for negative first, got %+v, %v", req.First, err)
	}
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", float64(42)},
		{"true", true},
		{"null", nil},
		{`"quoted"`, "quoted"},
		{"plain text", "plain text"},
		{"007x", "007x"},
	}
	for _, tt := range tests {
		if got := parseLiteral(tt.in); !cmp.Equal(got, tt.want) {
			t.Errorf("parseLiteral(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
