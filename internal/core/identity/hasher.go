package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

const (
	saltSize        = 32
	pseudonymLength = 32 // hex chars
	dayLayout       = "2006-01-02"

	// unknownOrigin is what unparsable origins collapse to.
	unknownOrigin = "0.0.0.0"
)

// Hasher derives visitor and session pseudonyms.
// Pseudonyms are keyed with a salt that rotates every UTC day; the same
// visitor maps to an unrelated pseudonym on the next day.
type Hasher struct {
	secret []byte

	mu      sync.Mutex
	saltDay string
	saltKey []byte
}

// NewHasher creates a Hasher from a master secret.
func NewHasher(secret string) (*Hasher, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("identity secret must be at least 16 bytes")
	}
	return &Hasher{secret: []byte(secret)}, nil
}

// TruncateOrigin zeroes the host part of a network origin.
// IPv4 keeps the first three octets; IPv6 keeps the first three 16-bit groups.
// The transform is deterministic and many-to-one.
func TruncateOrigin(origin string) string {
	host := strings.TrimSpace(origin)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	ip := net.ParseIP(host)
	if ip == nil {
		return unknownOrigin
	}

	if v4 := ip.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String()
	}

	masked := ip.Mask(net.CIDRMask(48, 128))
	return masked.String()
}

// DailySalt returns the salt for the UTC day containing t.
func (h *Hasher) DailySalt(t time.Time) []byte {
	day := t.UTC().Format(dayLayout)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.saltDay == day {
		return h.saltKey
	}

	salt := make([]byte, saltSize)
	r := hkdf.New(sha256.New, h.secret, []byte(day), []byte("pulse/pseudonym-salt"))
	if _, err := io.ReadFull(r, salt); err != nil {
		// hkdf only fails when asked for more than 255*hash-size bytes.
		panic(fmt.Sprintf("identity: derive salt: %v", err))
	}

	h.saltDay = day
	h.saltKey = salt
	return salt
}

// VisitorID derives the visitor pseudonym from origin fragment and user agent.
func (h *Hasher) VisitorID(origin, userAgent string, at time.Time) string {
	return h.keyedHash(at, TruncateOrigin(origin), userAgent)
}

// SessionID derives the session pseudonym from the client session token and site.
func (h *Hasher) SessionID(sessionToken, siteID string, at time.Time) string {
	return h.keyedHash(at, sessionToken, siteID)
}

func (h *Hasher) keyedHash(at time.Time, parts ...string) string {
	mac, err := blake2b.New256(h.DailySalt(at))
	if err != nil {
		panic(fmt.Sprintf("identity: blake2b: %v", err))
	}
	for _, p := range parts {
		mac.Write([]byte(p))
		// Separator keeps ("ab","c") and ("a","bc") apart.
		mac.Write([]byte{0})
	}
	sum := hex.EncodeToString(mac.Sum(nil))
	return sum[:pseudonymLength]
}
