package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/securecloud/api/internal/config"
)

// Client talks to the Keycloak identity provider: token verification via
// the realm JWKS, and the admin REST API for user listing and removal.
type Client struct {
	cfg        config.KeycloakConfig
	httpClient *http.Client
	keys       keyfunc.Keyfunc
	issuer     string
	logger     *zap.Logger
}

// NewClient builds a client whose signing keys refresh in the background
// from the realm's JWKS endpoint. The first fetch is allowed to fail so
// the API can start before Keycloak is reachable.
func NewClient(ctx context.Context, cfg config.KeycloakConfig, logger *zap.Logger) (*Client, error) {
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL(), jwkset.HTTPClientStorageOptions{
		Ctx:                       ctx,
		Client:                    &http.Client{Timeout: cfg.ClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.JWKSRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Warn("jwks refresh failed", zap.String("url", cfg.JWKSURL()), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks storage: %w", err)
	}

	keys, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.ClientTimeout},
		keys:       keys,
		issuer:     cfg.Issuer(),
		logger:     logger.With(zap.String("component", "identity")),
	}, nil
}

// NewClientWithKeyfunc builds a client around a caller-supplied keyfunc.
// Tests use it to verify tokens against a static key set.
func NewClientWithKeyfunc(cfg config.KeycloakConfig, keys keyfunc.Keyfunc, issuer string, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.ClientTimeout},
		keys:       keys,
		issuer:     issuer,
		logger:     logger.With(zap.String("component", "identity")),
	}
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	Email             string       `json:"email"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
}

// VerifyToken validates an RS256 bearer token against the realm keys and
// extracts the principal. Any failure maps to ErrUnauthorized.
func (c *Client) VerifyToken(ctx context.Context, token string) (Principal, error) {
	claims := &tokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, c.keys.KeyfuncCtx(ctx), opts...)
	if err != nil || !parsed.Valid {
		c.logger.Debug("token verification failed", zap.Error(err))
		return Principal{}, ErrUnauthorized
	}
	if claims.Subject == "" {
		return Principal{}, ErrUnauthorized
	}

	principal := Principal{
		ID:       claims.Subject,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
	}
	if claims.RealmAccess != nil {
		principal.Roles = claims.RealmAccess.Roles
	}
	return principal, nil
}

// adminToken obtains an access token for the admin REST API through the
// admin-cli password grant against the master realm.
func (c *Client) adminToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {"admin-cli"},
		"username":   {c.cfg.AdminUser},
		"password":   {c.cfg.AdminPassword},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AdminTokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request admin token: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: admin token endpoint returned %d", ErrUpstream, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode admin token: %v", ErrUpstream, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty admin token", ErrUpstream)
	}
	return body.AccessToken, nil
}

func (c *Client) adminGet(ctx context.Context, path string, out any) error {
	token, err := c.adminToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AdminRealmURL()+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("build admin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned %d", ErrUpstream, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

// ListUsers fetches all users of the realm from the admin API.
func (c *Client) ListUsers(ctx context.Context) ([]Record, error) {
	var users []Record
	if err := c.adminGet(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetRoles fetches a user's realm role names. Failures degrade to an
// empty set so a flaky provider cannot break user listings.
func (c *Client) GetRoles(ctx context.Context, userID string) []string {
	var mappings []struct {
		Name string `json:"name"`
	}
	if err := c.adminGet(ctx, "/users/"+userID+"/role-mappings/realm", &mappings); err != nil {
		c.logger.Warn("fetch role mappings failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	roles := make([]string, 0, len(mappings))
	for _, m := range mappings {
		roles = append(roles, m.Name)
	}
	return roles
}

// DeleteUser removes the user from the identity provider. A 404 from the
// provider means the user was already gone and is reported as false
// without an error.
func (c *Client) DeleteUser(ctx context.Context, userID string) (bool, error) {
	token, err := c.adminToken(ctx)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.AdminRealmURL()+"/users/"+userID, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, fmt.Errorf("%w: delete user returned %d", ErrUpstream, resp.StatusCode)
	}
}
