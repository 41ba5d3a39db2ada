package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog"
)

const contextKey = "auth"

// Admin is the verified caller of an admin route.
type Admin struct {
	UserID string
	Roles  []string
	Email  *string
	Name   *string
}

func (a *Admin) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

type Config struct {
	JWKSUrl      string
	Issuer       string
	Audience     string
	JWKSCacheTTL int
	AdminRole    string
	// CookieName is the session cookie read when no Authorization header is sent.
	CookieName string
}

type cachedJWKS struct {
	set       jwk.Set
	expiresAt time.Time
}

// JWKSClient fetches the signing keys and caches them. A stale set is served when a
// refresh fails.
type JWKSClient struct {
	url        string
	cache      *cachedJWKS
	cacheTTL   time.Duration
	mu         sync.RWMutex
	httpClient *http.Client
}

func NewJWKSClient(url string, cacheTTLSeconds int) *JWKSClient {
	ttl := time.Duration(cacheTTLSeconds) * time.Second
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	return &JWKSClient{
		url:        url,
		cacheTTL:   ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *JWKSClient) GetKeySet(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	if c.cache != nil && time.Now().Before(c.cache.expiresAt) {
		set := c.cache.set
		c.mu.RUnlock()
		return set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil && time.Now().Before(c.cache.expiresAt) {
		return c.cache.set, nil
	}

	set, err := c.fetch(ctx)
	if err != nil {
		if c.cache != nil {
			return c.cache.set, nil
		}
		return nil, err
	}

	c.cache = &cachedJWKS{
		set:       set,
		expiresAt: time.Now().Add(c.cacheTTL),
	}
	return set, nil
}

func (c *JWKSClient) fetch(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	set, err := jwk.ParseReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return set, nil
}

var errMissingSubject = errors.New("token missing sub claim")

// VerifyToken checks the signature, issuer and audience of a bearer token.
func VerifyToken(ctx context.Context, tokenString string, jwksClient *JWKSClient, config Config) (*Admin, error) {
	keyFunc := func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token missing kid in header")
		}

		keySet, err := jwksClient.GetKeySet(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get JWKS: %w", err)
		}

		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key not found for kid: %s", kid)
		}

		var publicKey any
		if err := key.Raw(&publicKey); err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return publicKey, nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, keyFunc, opts...); err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errMissingSubject
	}

	admin := &Admin{
		UserID: sub,
		Roles:  stringList(claims["roles"]),
	}
	if email, ok := claims["email"].(string); ok && email != "" {
		admin.Email = &email
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		admin.Name = &name
	}
	return admin, nil
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}

	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// AuthMiddleware rejects requests without a valid token, taken from a bearer
// Authorization header or else from the session cookie.
func AuthMiddleware(jwksClient *JWKSClient, config Config, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := tokenFromRequest(c, config.CookieName)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "errors": "Missing or invalid authorization header"})
			return
		}

		admin, err := VerifyToken(c.Request.Context(), token, jwksClient, config)
		if err != nil {
			logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "errors": "Invalid token"})
			return
		}

		c.Set(contextKey, admin)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context, cookieName string) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		token, found := strings.CutPrefix(authHeader, "Bearer ")
		return token, found && token != ""
	}

	if cookieName == "" {
		return "", false
	}
	token, err := c.Cookie(cookieName)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// RequireRole only lets callers holding role through.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := GetAdmin(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "errors": "Not authenticated"})
			return
		}

		if !admin.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "errors": "Admin role required"})
			return
		}

		c.Next()
	}
}

// AdminsOnly chains AuthMiddleware and RequireRole for the configured admin role.
func AdminsOnly(config Config, logger zerolog.Logger) []gin.HandlerFunc {
	jwksClient := NewJWKSClient(config.JWKSUrl, config.JWKSCacheTTL)
	return []gin.HandlerFunc{
		AuthMiddleware(jwksClient, config, logger),
		RequireRole(config.AdminRole),
	}
}

func GetAdmin(c *gin.Context) (*Admin, bool) {
	v, exists := c.Get(contextKey)
	if !exists {
		return nil, false
	}

	admin, ok := v.(*Admin)
	return admin, ok
}
