// internal/auth/session.go
package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingHeader means the request carried no bearer token at all.
	ErrMissingHeader = errors.New("missing bearer token")
	// ErrInvalidToken means the token failed signature, expiry or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnavailable means the verifier has no key to check tokens against.
	ErrUnavailable = errors.New("identity verification unavailable")
)

// Verifier resolves a bearer token to the user id it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWTVerifier checks EdDSA tokens issued by the identity provider. The user id is the "sub" claim.
type JWTVerifier struct {
	publicKey ed25519.PublicKey
	issuer    string
}

// NewJWTVerifier builds a verifier for publicKey. An empty issuer skips the "iss" check.
func NewJWTVerifier(publicKey ed25519.PublicKey, issuer string) *JWTVerifier {
	return &JWTVerifier{publicKey: publicKey, issuer: issuer}
}

// LoadPublicKey reads an ed25519 public key from path, either PEM encoded or as raw key bytes.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(data) == ed25519.PublicKeySize {
		return ed25519.PublicKey(data), nil
	}

	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ed25519")
	}
	return pub, nil
}

// Verify returns the "sub" claim of a valid token.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	if len(v.publicKey) != ed25519.PublicKeySize {
		return "", ErrUnavailable
	}
	if tokenString == "" {
		return "", ErrMissingHeader
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid jwt claims", ErrInvalidToken)
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: missing sub in jwt", ErrInvalidToken)
	}
	return userID, nil
}

// Signer mints tokens the way the identity provider does. It backs local development and tests.
type Signer struct {
	privateKey ed25519.PrivateKey
	issuer     string
	ttl        time.Duration
}

// NewSigner returns a signer. A zero ttl issues tokens without an "exp" claim.
func NewSigner(privateKey ed25519.PrivateKey, issuer string, ttl time.Duration) *Signer {
	return &Signer{privateKey: privateKey, issuer: issuer, ttl: ttl}
}

// CreateJWT creates a signed token with "sub" = userID.
func (s *Signer) CreateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	if s.ttl != 0 {
		claims["exp"] = time.Now().Add(s.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header, falling back to the
// access_token query value used by websocket clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

type ctxKey struct{}

// WithUserID stores an authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id stored on ctx, or "" if there is none.
func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(ctxKey{}).(string)
	return uid
}
