package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, loginPath, r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestLogin_JSONResponse_Profile(t *testing.T) {
	c := serve(t, http.StatusOK, `{
		"token": "h.p.s",
		"user_id": 7,
		"username": "squid",
		"full_name": "Squid Ink",
		"email": "squid@example.com",
		"roles": ["admin"],
		"country": "NL",
		"address": "1 Sea Lane",
		"phone_number": "555"
	}`)

	res, err := c.Login(context.Background(), "squid", "pw")
	require.NoError(t, err)
	assert.Equal(t, "h.p.s", res.Token)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "7", res.Profile.UserID)
	assert.Equal(t, "Squid Ink", res.Profile.FullName)
	assert.Equal(t, []string{"admin"}, res.Profile.Roles)
	assert.True(t, res.Profile.HasRoles)
	assert.Equal(t, "555", res.Profile.Phone)
}

func TestLogin_RolesNotArray_NoRoles(t *testing.T) {
	c := serve(t, http.StatusOK, `{"token": "t", "username": "u", "roles": "admin"}`)

	res, err := c.Login(context.Background(), "u", "pw")
	require.NoError(t, err)
	require.NotNil(t, res.Profile)
	assert.False(t, res.Profile.HasRoles)
	assert.Nil(t, res.Profile.Roles)
}

func TestLogin_PlainTextResponse_NoProfile(t *testing.T) {
	c := serve(t, http.StatusOK, "ok")

	res, err := c.Login(context.Background(), "u", "pw")
	require.NoError(t, err)
	assert.Nil(t, res.Profile)
	assert.Equal(t, "", res.Token)
}

func TestLogin_StatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    FailureKind
		message string
	}{
		{"bad gateway", 502, "", Unavailable, UnavailableMessage},
		{"internal error", 500, "", Unavailable, UnavailableMessage},
		{"unauthorized", 401, `{"error":"nope"}`, InvalidCredentials, InvalidCredentialsMessage},
		{"forbidden", 403, "", InvalidCredentials, InvalidCredentialsMessage},
		{"bad request with error", 400, `{"error":"Username is required"}`, BadRequest, "Username is required"},
		{"bad request with message", 400, `{"message":"Password too short"}`, BadRequest, "Password too short"},
		{"bad request plain", 400, "garbage", BadRequest, BadRequestMessage},
		{"teapot", 418, "", Unknown, UnknownMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, tt.status, tt.body)

			_, err := c.Login(context.Background(), "u", "pw")
			var lerr *LoginError
			require.True(t, errors.As(err, &lerr))
			assert.Equal(t, tt.kind, lerr.Kind)
			assert.Equal(t, tt.message, err.Error())
			assert.Equal(t, tt.status, lerr.Status)
		})
	}
}

func TestLogin_Unreachable_Connectivity(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Login(context.Background(), "u", "pw")
	var lerr *LoginError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, Connectivity, lerr.Kind)
	assert.Equal(t, ConnectivityMessage, err.Error())
	assert.NotNil(t, errors.Unwrap(err))
}
