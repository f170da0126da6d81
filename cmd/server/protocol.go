// Package main provides a TCP server exposing the TenantDB resolver.
//
// Clients send one JSON request per line and receive one JSON response per
// line. When authentication is enabled a connection must first send
// "AUTH JWT <token>".
package main

import (
	"encoding/json"

	"github.com/nickyhof/TenantDB/db"
)

// Response types.
const (
	TypeResult = "result"
	TypeAuth   = "auth"
)

// KindUnauthorized reports a missing, expired or insufficient token.
const KindUnauthorized = "unauthorized"

// Response is one line sent to the client.
type Response struct {
	Success bool   `json:"success"`
	Type    string `json:"type"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// AuthResponse contains authentication result details.
type AuthResponse struct {
	Authenticated bool     `json:"authenticated"`
	Identity      string   `json:"identity"`
	Tenants       []string `json:"tenants,omitempty"`
	ExpiresIn     int      `json:"expires_in,omitempty"` // seconds until token expires
}

func fromResult(r db.Response) Response {
	return Response{Success: r.Success, Type: TypeResult, Kind: r.Kind, Error: r.Error, Result: r.Result}
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses a JSON request from a byte slice.
func DecodeRequest(data []byte) (db.Request, error) {
	var req db.Request
	err := json.Unmarshal(data, &req)
	return req, err
}
