// Package auth verifies HS256 bearer tokens for the local server, standing in
// for the API Gateway JWT authorizer that fronts the Lambda deployment.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means the request carried no bearer token at all.
	ErrNoToken = errors.New("auth: no bearer token")
	// ErrInvalidToken covers bad signatures, expiry, issuer and audience mismatches.
	ErrInvalidToken = errors.New("auth: invalid token")
)

type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

type Option func(*Verifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(iss string) Option {
	return func(v *Verifier) { v.issuer = strings.TrimSpace(iss) }
}

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) Option {
	return func(v *Verifier) { v.audience = strings.TrimSpace(aud) }
}

func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret must not be empty")
	}
	v := &Verifier{secret: []byte(secret)}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify validates token and returns its claims flattened to strings, the
// shape API Gateway hands to the Lambda in requestContext.authorizer.jwt.claims.
func (v *Verifier) Verify(token string) (map[string]string, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoToken
	}

	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, v.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return flattenClaims(claims), nil
}

// VerifyRequest reads the Authorization header of r.
func (v *Verifier) VerifyRequest(r *http.Request) (map[string]string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, ErrNoToken
	}
	return v.Verify(strings.TrimPrefix(header, "Bearer "))
}

func (v *Verifier) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.audience))
	}
	return opts
}

func flattenClaims(claims jwtlib.MapClaims) map[string]string {
	out := make(map[string]string, len(claims))
	for k, val := range claims {
		switch t := val.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		case []interface{}:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				}
			}
			// API Gateway renders list claims as "[a b]".
			out[k] = "[" + strings.Join(parts, " ") + "]"
		}
	}
	return out
}
