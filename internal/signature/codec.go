// Package signature implements the shared HMAC request signing used by the
// outbound upstream client and the inbound webhook receiver. Both sides must
// canonicalize identically or nothing verifies.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultDrift is the freshness window applied to signed timestamps.
const DefaultDrift = 5 * time.Minute

// Context carries the inputs of one signing or verification.
type Context struct {
	Method    string
	Path      string
	Timestamp string
	Body      []byte
}

// Codec signs and verifies request signatures with a shared secret.
type Codec struct {
	secret []byte
	drift  time.Duration

	now func() time.Time
}

func NewCodec(secret string, drift time.Duration) *Codec {
	if drift <= 0 {
		drift = DefaultDrift
	}
	return &Codec{
		secret: []byte(secret),
		drift:  drift,
		now:    time.Now,
	}
}

// canonicalBody normalizes the request body: an absent body canonicalizes to
// "{}", any JSON body to its compact form. Non-JSON bodies are used verbatim
// so a signed payload always verifies against the exact bytes sent.
func canonicalBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "{}"
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed)
	}
	return compact.String()
}

// Sign computes the hex HMAC-SHA256 digest over
// "METHOD:PATH:TIMESTAMP:BODY". Pure and deterministic.
func (c *Codec) Sign(ctx Context) string {
	payload := strings.ToUpper(ctx.Method) + ":" + ctx.Path + ":" + ctx.Timestamp + ":" + canonicalBody(ctx.Body)

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time.
func (c *Codec) Verify(received string, ctx Context) bool {
	if received == "" {
		return false
	}
	expected := c.Sign(ctx)
	return hmac.Equal([]byte(received), []byte(expected))
}

// IsExpired reports whether the unix-millisecond timestamp lies outside the
// freshness window in either direction. Missing or non-numeric timestamps
// count as expired, never as valid.
func (c *Codec) IsExpired(timestamp string) bool {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return true
	}

	diff := c.now().UnixMilli() - ts
	if diff < 0 {
		diff = -diff
	}
	return diff > c.drift.Milliseconds()
}

// Timestamp returns the current unix-millisecond timestamp as a header value.
func (c *Codec) Timestamp() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10)
}
