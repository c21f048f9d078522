package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/securecloud/api/internal/config"
)

const (
	testKeyID  = "test-key"
	testIssuer = "http://localhost:8080/realms/personal-cloud"
)

func newVerifyClient(t *testing.T) (*Client, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk, err := jwkset.NewJWKFromKey(priv.Public(), jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{KID: testKeyID},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(jwkset.JWKSMarshal{Keys: []jwkset.JWKMarshal{jwk.Marshal()}})
	require.NoError(t, err)

	keys, err := keyfunc.NewJWKSetJSON(raw)
	require.NoError(t, err)

	return NewClientWithKeyfunc(config.KeycloakConfig{}, keys, testIssuer, zap.NewNop()), priv
}

func signToken(t *testing.T, priv *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":                "f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
		"iss":                testIssuer,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"realm_access":       map[string]any{"roles": []string{"admin", "user"}},
	}
}

func TestVerifyTokenValid(t *testing.T) {
	client, priv := newVerifyClient(t)

	principal, err := client.VerifyToken(context.Background(), signToken(t, priv, validClaims()))
	require.NoError(t, err)

	assert.Equal(t, "f81d4fae-7dec-11d0-a765-00a0c91e6bf6", principal.ID)
	assert.Equal(t, "alice", principal.Username)
	assert.Equal(t, "alice@example.com", principal.Email)
	assert.True(t, principal.HasRole("admin"))
	assert.False(t, principal.HasRole("auditor"))
}

func TestVerifyTokenExpired(t *testing.T) {
	client, priv := newVerifyClient(t)

	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()

	_, err := client.VerifyToken(context.Background(), signToken(t, priv, claims))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyTokenMissingExpiry(t *testing.T) {
	client, priv := newVerifyClient(t)

	claims := validClaims()
	delete(claims, "exp")

	_, err := client.VerifyToken(context.Background(), signToken(t, priv, claims))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyTokenWrongIssuer(t *testing.T) {
	client, priv := newVerifyClient(t)

	claims := validClaims()
	claims["iss"] = "http://evil.example.com/realms/personal-cloud"

	_, err := client.VerifyToken(context.Background(), signToken(t, priv, claims))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyTokenMissingSubject(t *testing.T) {
	client, priv := newVerifyClient(t)

	claims := validClaims()
	delete(claims, "sub")

	_, err := client.VerifyToken(context.Background(), signToken(t, priv, claims))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyTokenRejectsHMAC(t *testing.T) {
	client, _ := newVerifyClient(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = client.VerifyToken(context.Background(), signed)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyTokenGarbage(t *testing.T) {
	client, _ := newVerifyClient(t)

	_, err := client.VerifyToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// adminTestServer mimics the Keycloak endpoints the client touches.
type adminTestServer struct {
	*httptest.Server
	deleteStatus int
	rolesStatus  int
}

func newAdminTestServer(t *testing.T) *adminTestServer {
	t.Helper()
	srv := &adminTestServer{deleteStatus: http.StatusNoContent, rolesStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostFormValue("grant_type"))
		assert.Equal(t, "admin-cli", r.PostFormValue("client_id"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "admin-token"})
	})
	mux.HandleFunc("GET /admin/realms/personal-cloud/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]Record{
			{ID: "id-1", Username: "alice", Email: "alice@example.com"},
			{ID: "id-2", Username: "bob", Email: "bob@example.com"},
		})
	})
	mux.HandleFunc("GET /admin/realms/personal-cloud/users/{id}/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		if srv.rolesStatus != http.StatusOK {
			w.WriteHeader(srv.rolesStatus)
			return
		}
		json.NewEncoder(w).Encode([]map[string]string{{"name": "admin"}, {"name": "user"}})
	})
	mux.HandleFunc("DELETE /admin/realms/personal-cloud/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(srv.deleteStatus)
	})

	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAdminClient(srv *adminTestServer) *Client {
	cfg := config.KeycloakConfig{
		BaseURL:       srv.URL,
		Realm:         "personal-cloud",
		AdminUser:     "admin",
		AdminPassword: "admin",
		ClientTimeout: 5 * time.Second,
	}
	return NewClientWithKeyfunc(cfg, nil, cfg.Issuer(), zap.NewNop())
}

func TestListUsers(t *testing.T) {
	client := newAdminClient(newAdminTestServer(t))

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)

	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
}

func TestGetRoles(t *testing.T) {
	client := newAdminClient(newAdminTestServer(t))

	roles := client.GetRoles(context.Background(), "id-1")
	assert.Equal(t, []string{"admin", "user"}, roles)
}

func TestGetRolesDegradesToEmpty(t *testing.T) {
	srv := newAdminTestServer(t)
	srv.rolesStatus = http.StatusInternalServerError
	client := newAdminClient(srv)

	assert.Empty(t, client.GetRoles(context.Background(), "id-1"))
}

func TestDeleteUser(t *testing.T) {
	srv := newAdminTestServer(t)
	client := newAdminClient(srv)

	deleted, err := client.DeleteUser(context.Background(), "id-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	// An already-removed user is not an error, just "nothing deleted".
	srv.deleteStatus = http.StatusNotFound
	deleted, err = client.DeleteUser(context.Background(), "id-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	srv.deleteStatus = http.StatusInternalServerError
	_, err = client.DeleteUser(context.Background(), "id-1")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestAdminTokenFailureSurfacesUpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.KeycloakConfig{BaseURL: srv.URL, Realm: "personal-cloud", ClientTimeout: time.Second}
	client := NewClientWithKeyfunc(cfg, nil, cfg.Issuer(), zap.NewNop())

	_, err := client.ListUsers(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
}
