package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Cookie is a 16-byte random token identifying one direction of a
// connection; the peer echoes it back to prove freshness.
type Cookie [CookieSize]byte

// ZeroCookie is the uninitialized cookie value.
var ZeroCookie = Cookie{}

// NewCookie draws a fresh, uniformly random cookie.
func NewCookie() (Cookie, error) {
	var c Cookie
	if _, err := rand.Read(c[:]); err != nil {
		return ZeroCookie, fmt.Errorf("generate cookie: %w", err)
	}
	return c, nil
}

// Equal reports whether two cookies are identical.
func (c Cookie) Equal(other Cookie) bool {
	return c == other
}

// IsZero reports whether the cookie is uninitialized.
func (c Cookie) IsZero() bool {
	return c == ZeroCookie
}

// String returns the hex representation of the cookie.
func (c Cookie) String() string {
	return hex.EncodeToString(c[:])
}

// CookiePair holds a connection's two directional cookies and enforces the
// invariant that they are never equal.
type CookiePair struct {
	Ours   Cookie
	Theirs Cookie
}

// NewCookiePair generates a fresh "ours" cookie guaranteed to differ from
// theirs, re-drawing on the (astronomically unlikely) collision per
// spec.md §3 ("Cookie").
func NewCookiePair(theirs Cookie) (CookiePair, error) {
	for {
		ours, err := NewCookie()
		if err != nil {
			return CookiePair{}, err
		}
		if !ours.Equal(theirs) {
			return CookiePair{Ours: ours, Theirs: theirs}, nil
		}
	}
}
