// Package token reads bearer token claims without verifying signatures.
package token

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/squidstack/squidflags/pkg/model"
)

// Source yields the raw bearer token of the current session.
type Source interface {
	Token() (string, bool)
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode returns the claims of the token's payload segment. Only the payload is
// inspected; the header and signature are ignored.
func Decode(raw string) (*model.DecodedToken, bool) {
	if raw == "" {
		return nil, false
	}
	parts := strings.Split(raw, ".")
	if len(parts) < 2 || parts[1] == "" {
		return nil, false
	}

	// accept both alphabets
	seg := strings.NewReplacer("+", "-", "/", "_").Replace(parts[1])
	payload, err := segmentParser.DecodeSegment(seg)
	if err != nil {
		return nil, false
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil || claims == nil {
		return nil, false
	}
	return &model.DecodedToken{Raw: raw, Claims: claims}, true
}

// Inspector computes expiry information for the token held by a Source.
type Inspector struct {
	tokens Source
	now    func() time.Time
}

func NewInspector(tokens Source) *Inspector {
	return &Inspector{tokens: tokens, now: time.Now}
}

// WithClock replaces the time source.
func (i *Inspector) WithClock(now func() time.Time) *Inspector {
	i.now = now
	return i
}

func (i *Inspector) Decode() (*model.DecodedToken, bool) {
	if i.tokens == nil {
		return nil, false
	}
	raw, ok := i.tokens.Token()
	if !ok {
		return nil, false
	}
	return Decode(raw)
}

// ExpiresAt is the instant given by the exp claim, kept to the millisecond.
// A missing, zero or non-numeric exp means the expiry is unknown.
func (i *Inspector) ExpiresAt() (time.Time, bool) {
	tok, ok := i.Decode()
	if !ok {
		return time.Time{}, false
	}
	var secs float64
	switch exp := tok.Claims["exp"].(type) {
	case float64:
		secs = exp
	case json.Number:
		f, err := exp.Float64()
		if err != nil {
			return time.Time{}, false
		}
		secs = f
	default:
		return time.Time{}, false
	}
	if secs == 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(math.Round(secs * 1000))), true
}

// UntilExpiry is the time left before expiry, negative once expired.
func (i *Inspector) UntilExpiry() (time.Duration, bool) {
	at, ok := i.ExpiresAt()
	if !ok {
		return 0, false
	}
	return at.Sub(i.now()).Truncate(time.Millisecond), true
}

// IsExpired is true only when an expiry is known and has been reached.
func (i *Inspector) IsExpired() bool {
	left, ok := i.UntilExpiry()
	return ok && left <= 0
}
