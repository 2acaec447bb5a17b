package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// NonceActionREST is the action every REST write nonce is bound to.
	NonceActionREST = "langsync_rest"

	nonceLifetime = 24 * time.Hour
	nonceLength   = 20
)

// NonceIssuer mints and verifies origin tokens bound to a session.
// A nonce is valid for the tick it was created in and the one after it,
// so its effective lifetime is between 12 and 24 hours.
type NonceIssuer struct {
	secret []byte
}

func NewNonceIssuer(secret string) (*NonceIssuer, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, fmt.Errorf("nonce secret is required")
	}
	return &NonceIssuer{secret: []byte(trimmed)}, nil
}

// Create returns the nonce for action and sessionID at now.
func (n *NonceIssuer) Create(action, sessionID string, now time.Time) string {
	return n.sign(action, sessionID, nonceTick(now))
}

// Verify reports whether nonce matches action and sessionID for the current
// or previous tick.
func (n *NonceIssuer) Verify(nonce, action, sessionID string, now time.Time) bool {
	if n == nil {
		return false
	}
	candidate := strings.TrimSpace(nonce)
	if len(candidate) != nonceLength || strings.TrimSpace(sessionID) == "" {
		return false
	}

	tick := nonceTick(now)
	for _, t := range []int64{tick, tick - 1} {
		expected := n.sign(action, sessionID, t)
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return true
		}
	}
	return false
}

func (n *NonceIssuer) sign(action, sessionID string, tick int64) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(action))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strings.TrimSpace(sessionID)))
	return hex.EncodeToString(mac.Sum(nil))[:nonceLength]
}

func nonceTick(now time.Time) int64 {
	half := int64(nonceLifetime / 2 / time.Second)
	return now.UTC().Unix() / half
}
