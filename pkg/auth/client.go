// Package auth talks to the authentication service.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const loginPath = "/api/kraken-auth/login"

// Profile is the user record returned by the authentication service. Field
// names follow the service; alternates are coalesced by the session manager.
type Profile struct {
	ID       string   `json:"-"`
	UserID   string   `json:"-"`
	Username string   `json:"username"`
	FullName string   `json:"full_name"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Roles    []string `json:"-"`
	HasRoles bool     `json:"-"`
	Country  string   `json:"country"`
	Address  string   `json:"address"`
	Phone    string   `json:"phone_number"`
}

// Result is a successful login. Profile is nil when the service answered
// with a plain-text acknowledgement instead of a JSON document.
type Result struct {
	Token   string
	Profile *Profile
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Login verifies credentials. Every failure is a *LoginError.
func (c *Client) Login(ctx context.Context, username, password string) (Result, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Result{}, &LoginError{Kind: Unknown, Message: UnknownMessage, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return Result{}, &LoginError{Kind: Unknown, Message: UnknownMessage, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json,text/plain,*/*")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, &LoginError{Kind: Connectivity, Message: ConnectivityMessage, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return Result{}, &LoginError{Kind: Connectivity, Status: res.StatusCode, Message: ConnectivityMessage, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var msg serverMessage
		_ = json.Unmarshal(raw, &msg)
		lerr := classify(res.StatusCode, msg)
		log.WithField("status", res.StatusCode).Debugf("login rejected: %s", lerr.Message)
		return Result{}, lerr
	}

	return parseResult(raw), nil
}

func parseResult(raw []byte) Result {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		// plain-text acknowledgement
		return Result{}
	}

	var body struct {
		Token string `json:"token"`
		Profile
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		log.Warnf("unable to parse login response: %v", err)
		return Result{}
	}
	p := body.Profile
	p.ID = stringField(doc["id"])
	p.UserID = stringField(doc["user_id"])
	if rolesRaw, ok := doc["roles"]; ok {
		var roles []string
		if json.Unmarshal(rolesRaw, &roles) == nil && roles != nil {
			p.Roles, p.HasRoles = roles, true
		}
	}
	return Result{Token: body.Token, Profile: &p}
}

// stringField reads a JSON string or number as a string.
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
