package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
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
        {"name": "email", "type": "String", "isUnique": true}
      ]
    }
  ]
}`

const testSecret = "test-secret"

func setupServer(t *testing.T, auth *config.AuthConfig) *Server {
	t.Helper()
	schema, err := core.ParseDatamodel([]byte(testDatamodel))
	if err != nil {
		t.Fatalf("Failed to parse datamodel: %v", err)
	}
	cfg := config.Default()
	cfg.DatabasesPath = t.TempDir()
	cfg.ConnectionLimit = 2
	inst, err := TenantDB.OpenWithSchema(context.Background(), cfg, schema)
	if err != nil {
		t.Fatalf("Failed to open instance: %v", err)
	}
	t.Cleanup(func() { inst.Close() })

	for _, tenant := range []string{"t1", "t2"} {
		err := inst.Persistence.WithTransaction(context.Background(), tenant, func(tx ps.Transaction) error {
			_, err := tx.Write(context.Background(), sql.Raw{SQL: `CREATE TABLE "` + tenant + `"."User" ("id" TEXT PRIMARY KEY, "email" TEXT UNIQUE)`})
			return err
		})
		if err != nil {
			t.Fatalf("Failed to create tables: %v", err)
		}
	}

	server := NewServer(inst.Dispatcher, auth)
	if err := server.Start("127.0.0.1:0"); err != nil { // :0 picks a free port
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) send(line string) Response {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("Failed to send: %v", err)
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("Failed to read response: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		c.t.Fatalf("Failed to parse response %q: %v", reply, err)
	}
	return resp
}

func createTestJWT(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestServerStartStop(t *testing.T) {
	server := setupServer(t, nil)
	if server.Addr() == "" {
		t.Error("Expected non-empty address")
	}
}

func TestServerRequests(t *testing.T) {
	server := setupServer(t, nil)
	c := dial(t, server.Addr())

	resp := c.send(`{"action": "findOne", "model": "User", "where": {"field": "id", "value": "u1"}}`)
	if !resp.Success || resp.Result != nil {
		t.Fatalf("Expected empty lookup, got %+v", resp)
	}

	resp = c.send(`{"action": "create", "model": "User", "data": {"id": "u1", "email": "a@b"}}`)
	if !resp.Success {
		t.Fatalf("Create failed: %s", resp.Error)
	}
	if resp.Type != TypeResult {
		t.Errorf("Expected result type, got %s", resp.Type)
	}

	resp = c.send(`{"action": "findMany", "model": "User"}`)
	if !resp.Success {
		t.Fatalf("findMany failed: %s", resp.Error)
	}
	nodes, ok := resp.Result.([]any)
	if !ok || len(nodes) != 1 {
		t.Fatalf("Expected one node, got %#v", resp.Result)
	}
	if email := nodes[0].(map[string]any)["email"]; email != "a@b" {
		t.Errorf("Expected email a@b, got %v", email)
	}

	resp = c.send(`{"action": "create", "model": "User", "data": {"id": "u2", "email": "a@b"}}`)
	if resp.Success || resp.Kind != db.KindEngine {
		t.Errorf("Expected engine error for duplicate email, got %+v", resp)
	}
}

func TestServerBadRequests(t *testing.T) {
	server := setupServer(t, nil)
	c := dial(t, server.Addr())

	tests := []struct {
		line string
		kind string
	}{
		{`not json`, db.KindBadRequest},
		{`{"action": "findMany", "model": "Nope"}`, db.KindBadRequest},
		{`{"action": "update", "model": "User", "where": {"field": "id", "value": "x"}, "data": {"email": "e"}}`, db.KindNotFound},
	}
	for _, tt := range tests {
		resp := c.send(tt.line)
		if resp.Success || resp.Kind != tt.kind {
			t.Errorf("%s: expected %s failure, got %+v", tt.line, tt.kind, resp)
		}
	}
}

func TestServerQuit(t *testing.T) {
	server := setupServer(t, nil)
	c := dial(t, server.Addr())
	if _, err := c.conn.Write([]byte("quit\n")); err != nil {
		t.Fatalf("Failed to send quit: %v", err)
	}
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.reader.ReadString('\n'); err == nil {
		t.Error("Expected connection to close after quit")
	}
}

func TestAuthRequired(t *testing.T) {
	server := setupServer(t, &config.AuthConfig{Enabled: true, JWTSecret: testSecret})
	c := dial(t, server.Addr())

	resp := c.send(`{"action": "count", "model": "User"}`)
	if resp.Success || resp.Kind != KindUnauthorized {
		t.Errorf("Expected unauthorized, got %+v", resp)
	}
}

func TestAuthWithValidJWT(t *testing.T) {
	server := setupServer(t, &config.AuthConfig{Enabled: true, JWTSecret: testSecret, Issuer: "tests"})
	c := dial(t, server.Addr())

	token := createTestJWT(t, testSecret, jwt.MapClaims{
		"sub":     "alice",
		"iss":     "tests",
		"tenants": []string{"t1"},
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	resp := c.send("AUTH JWT " + token)
	if !resp.Success || resp.Type != TypeAuth {
		t.Fatalf("Expected auth success, got %+v", resp)
	}
	result := resp.Result.(map[string]any)
	if result["identity"] != "alice" {
		t.Errorf("Expected identity alice, got %v", result["identity"])
	}
	if exp, _ := result["expires_in"].(float64); exp <= 0 {
		t.Errorf("Expected positive expiry, got %v", result["expires_in"])
	}

	resp = c.send(`{"action": "count", "model": "User"}`)
	if !resp.Success {
		t.Errorf("Expected granted tenant to succeed, got %+v", resp)
	}

	resp = c.send(`{"action": "count", "tenant": "t2", "model": "User"}`)
	if resp.Success || resp.Kind != KindUnauthorized {
		t.Errorf("Expected t2 to be refused, got %+v", resp)
	}
}

func TestAuthWithInvalidJWT(t *testing.T) {
	server := setupServer(t, &config.AuthConfig{Enabled: true, JWTSecret: testSecret, Audience: "tenantdb"})

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", createTestJWT(t, "other", jwt.MapClaims{"sub": "a", "aud": "tenantdb"})},
		{"expired", createTestJWT(t, testSecret, jwt.MapClaims{"sub": "a", "aud": "tenantdb", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"wrong audience", createTestJWT(t, testSecret, jwt.MapClaims{"sub": "a", "aud": "other"})},
		{"no subject", createTestJWT(t, testSecret, jwt.MapClaims{"aud": "tenantdb"})},
		{"bad tenants claim", createTestJWT(t, testSecret, jwt.MapClaims{"sub": "a", "aud": "tenantdb", "tenants": "t1"})},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, server.Addr())
			resp := c.send("AUTH JWT " + tt.token)
			if resp.Success {
				t.Fatalf("Expected auth failure, got %+v", resp)
			}
			if resp.Kind != KindUnauthorized {
				t.Errorf("Expected unauthorized kind, got %s", resp.Kind)
			}
			resp = c.send(`{"action": "count", "model": "User"}`)
			if resp.Success {
				t.Error("Request succeeded after failed auth")
			}
		})
	}
}

func TestParseAuthCommand(t *testing.T) {
	tests := []struct {
		line    string
		token   string
		wantErr string
	}{
		{"AUTH JWT abc", "abc", ""},
		{"auth jwt abc", "abc", ""},
		{"AUTH JWT", "", "expected AUTH"},
		{"AUTH BASIC abc", "", "unsupported auth type"},
		{`{"action": "count"}`, "", "not an AUTH command"},
	}
	for _, tt := range tests {
		_, token, err := parseAuthCommand(tt.line)
		if tt.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("%q: expected error containing %q, got %v", tt.line, tt.wantErr, err)
			}
			continue
		}
		if err != nil || token != tt.token {
			t.Errorf("%q: got (%q, %v), want %q", tt.line, token, err, tt.token)
		}
	}
}

func TestIdentityAllows(t *testing.T) {
	if !(Identity{Subject: "a"}).Allows("any") {
		t.Error("Identity without tenants must allow every tenant")
	}
	id := Identity{Subject: "a", Tenants: []string{"t1"}}
	if !id.Allows("t1") || id.Allows("t2") {
		t.Errorf("Unexpected grants for %+v", id)
	}
}

func TestRootCommandRejectsInvalidConfig(t *testing.T) {
	var out strings.Builder
	cmd := newRootCommand(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--connection-limit", "0", "--databases-path", t.TempDir()})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "connection limit") {
		t.Errorf("Expected connection limit error, got %v", err)
	}
}
