package supabase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

// audience carried by tokens of signed-in users
const authenticatedAudience = "authenticated"

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key (RSA or EC)
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// Claims represents the claims of a backend access token
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	AAL       string `json:"aal"`
}

// ParsedClaims represents parsed and validated claims
type ParsedClaims struct {
	SubjectID uuid.UUID
	Email     string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenValidator validates access tokens issued by the backend auth service.
// With a shared secret it checks HS256 signatures; otherwise it verifies
// asymmetric signatures against the backend JWKS.
type TokenValidator struct {
	issuer     string
	secret     []byte
	jwksURL    string
	httpClient *http.Client

	// Cache for JWKS
	jwksCache    *JWKS
	jwksCacheExp time.Time
	jwksCacheTTL time.Duration
	cacheMu      sync.RWMutex

	// Cache for parsed public keys
	keyCache   map[string]interface{}
	keyCacheMu sync.RWMutex
}

// ValidatorConfig holds configuration for TokenValidator
type ValidatorConfig struct {
	BaseURL     string
	JWTSecret   string
	JWKSURL     string
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
}

// NewTokenValidator creates a new access token validator
func NewTokenValidator(config ValidatorConfig) *TokenValidator {
	if config.CacheTTL == 0 {
		config.CacheTTL = 1 * time.Hour
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}

	v := &TokenValidator{
		issuer:       config.BaseURL + "/auth/v1",
		jwksURL:      config.JWKSURL,
		jwksCacheTTL: config.CacheTTL,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		keyCache: make(map[string]interface{}),
	}
	if config.JWTSecret != "" {
		v.secret = []byte(config.JWTSecret)
	}
	return v
}

// ValidateToken validates a JWT token and returns parsed claims
func (v *TokenValidator) ValidateToken(ctx context.Context, tokenString string) (*ParsedClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if v.secret == nil {
				return nil, errors.New("HMAC token but no shared secret configured")
			}
			return v.secret, nil
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			kid, ok := token.Header["kid"].(string)
			if !ok {
				return nil, errors.New("kid header not found")
			}
			key, err := v.getPublicKey(ctx, kid)
			if err != nil {
				return nil, fmt.Errorf("failed to get public key: %w", err)
			}
			return key, nil
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(authenticatedAudience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return parseClaims(claims)
}

// ExtractClaims parses claims without verifying the signature.
// Only use on tokens received directly from the backend over TLS.
func ExtractClaims(tokenString string) (*ParsedClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return parseClaims(claims)
}

func parseClaims(claims *Claims) (*ParsedClaims, error) {
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sub: %v", ErrInvalidToken, err)
	}

	parsed := &ParsedClaims{
		SubjectID: sub,
		Email:     claims.Email,
		SessionID: claims.SessionID,
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}
	return parsed, nil
}

// FetchJWKS fetches the JWKS from the backend
func (v *TokenValidator) FetchJWKS(ctx context.Context) (*JWKS, error) {
	// Check cache first
	v.cacheMu.RLock()
	if v.jwksCache != nil && time.Now().Before(v.jwksCacheExp) {
		defer v.cacheMu.RUnlock()
		return v.jwksCache, nil
	}
	v.cacheMu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	v.cacheMu.Lock()
	v.jwksCache = &jwks
	v.jwksCacheExp = time.Now().Add(v.jwksCacheTTL)
	v.cacheMu.Unlock()

	return &jwks, nil
}

// getPublicKey retrieves the public key for a given kid
func (v *TokenValidator) getPublicKey(ctx context.Context, kid string) (interface{}, error) {
	v.keyCacheMu.RLock()
	if key, exists := v.keyCache[kid]; exists {
		v.keyCacheMu.RUnlock()
		return key, nil
	}
	v.keyCacheMu.RUnlock()

	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	var jwk *JWK
	for i := range jwks.Keys {
		if jwks.Keys[i].Kid == kid {
			jwk = &jwks.Keys[i]
			break
		}
	}
	if jwk == nil {
		return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
	}

	publicKey, err := jwkToPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK %s: %w", kid, err)
	}

	v.keyCacheMu.Lock()
	v.keyCache[kid] = publicKey
	v.keyCacheMu.Unlock()

	return publicKey, nil
}

// jwkToPublicKey converts an RSA or P-256 EC JWK to a public key
func jwkToPublicKey(jwk *JWK) (interface{}, error) {
	switch jwk.Kty {
	case "RSA":
		nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
		if err != nil {
			return nil, fmt.Errorf("failed to decode modulus: %w", err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
		if err != nil {
			return nil, fmt.Errorf("failed to decode exponent: %w", err)
		}
		var e int
		for _, b := range eBytes {
			e = e*256 + int(b)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil

	case "EC":
		if jwk.Crv != "P-256" {
			return nil, fmt.Errorf("unsupported curve %q", jwk.Crv)
		}
		xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
		if err != nil {
			return nil, fmt.Errorf("failed to decode x: %w", err)
		}
		yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
		if err != nil {
			return nil, fmt.Errorf("failed to decode y: %w", err)
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(xBytes),
			Y:     new(big.Int).SetBytes(yBytes),
		}, nil
	}
	return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
}

// InvalidateCache drops cached keys, forcing a JWKS refetch
func (v *TokenValidator) InvalidateCache() {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	v.jwksCache = nil
	v.jwksCacheExp = time.Time{}

	v.keyCacheMu.Lock()
	defer v.keyCacheMu.Unlock()
	v.keyCache = make(map[string]interface{})
}
