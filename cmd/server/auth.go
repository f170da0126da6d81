package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nickyhof/TenantDB/config"
)

// TenantsClaim lists the tenants a token grants access to. A token without
// it may address every tenant.
const TenantsClaim = "tenants"

// Identity is an authenticated client.
type Identity struct {
	Subject string
	Tenants []string
}

// Allows reports whether the identity may address tenant.
func (id Identity) Allows(tenant string) bool {
	return len(id.Tenants) == 0 || slices.Contains(id.Tenants, tenant)
}

// ConnectionState tracks per-connection authentication state.
type ConnectionState struct {
	identity      *Identity
	authenticated bool
	tokenExpiry   time.Time
}

// IsAuthenticated returns true if the connection holds an unexpired token.
func (cs *ConnectionState) IsAuthenticated() bool {
	if !cs.authenticated {
		return false
	}
	return cs.tokenExpiry.IsZero() || time.Now().Before(cs.tokenExpiry)
}

// Identity returns the connection's identity, or nil if not authenticated.
func (cs *ConnectionState) Identity() *Identity {
	return cs.identity
}

// authResult represents the result of an authentication attempt.
type authResult struct {
	identity  Identity
	expiresAt time.Time
	err       error
}

// validateJWT validates an HMAC-signed token and extracts the identity.
func validateJWT(cfg *config.AuthConfig, tokenString string) authResult {
	if cfg == nil || cfg.JWTSecret == "" {
		return authResult{err: errors.New("authentication not configured")}
	}

	var opts []jwt.ParserOption
	opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return authResult{err: fmt.Errorf("invalid token: %w", err)}
	}
	if !token.Valid {
		return authResult{err: errors.New("invalid token")}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return authResult{err: errors.New("invalid token claims")}
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return authResult{err: errors.New("token missing subject claim")}
	}

	var tenants []string
	if raw, ok := claims[TenantsClaim]; ok {
		list, ok := raw.([]interface{})
		if !ok {
			return authResult{err: fmt.Errorf("claim %s must be a list", TenantsClaim)}
		}
		for _, t := range list {
			name, ok := t.(string)
			if !ok {
				return authResult{err: fmt.Errorf("claim %s must hold strings", TenantsClaim)}
			}
			tenants = append(tenants, name)
		}
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return authResult{
		identity:  Identity{Subject: subject, Tenants: tenants},
		expiresAt: expiresAt,
	}
}

// parseAuthCommand parses an AUTH command and returns the auth type and token.
// Supported formats:
//   - AUTH JWT <token>
func parseAuthCommand(line string) (authType, token string, err error) {
	line = strings.TrimSpace(line)

	if !isAuthCommand(line) {
		return "", "", errors.New("not an AUTH command")
	}

	parts := strings.Fields(line)
	if len(parts) < 3 {
		return "", "", errors.New("invalid AUTH command: expected AUTH <type> <credentials>")
	}

	authType = strings.ToUpper(parts[1])
	token = parts[2]

	switch authType {
	case "JWT":
		return authType, token, nil
	default:
		return "", "", fmt.Errorf("unsupported auth type: %s", authType)
	}
}

func isAuthCommand(line string) bool {
	return strings.HasPrefix(strings.ToUpper(line), "AUTH ")
}

// handleAuth processes an AUTH command and returns the response.
func (s *Server) handleAuth(line string, state *ConnectionState) Response {
	_, token, err := parseAuthCommand(line)
	if err != nil {
		return authFailure(err)
	}

	result := validateJWT(s.authConfig, token)
	if result.err != nil {
		return authFailure(result.err)
	}

	state.identity = &result.identity
	state.authenticated = true
	state.tokenExpiry = result.expiresAt

	ar := AuthResponse{
		Authenticated: true,
		Identity:      result.identity.Subject,
		Tenants:       result.identity.Tenants,
	}
	if !result.expiresAt.IsZero() {
		ar.ExpiresIn = int(time.Until(result.expiresAt).Seconds())
	}
	return Response{Success: true, Type: TypeAuth, Result: ar}
}

func authFailure(err error) Response {
	return Response{Success: false, Type: TypeAuth, Kind: KindUnauthorized, Error: err.Error()}
}
