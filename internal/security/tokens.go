// Package security holds the token codec, the refresh-token id generator,
// and the password hasher. Nothing in this package touches storage.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any verification failure: bad signature,
// wrong signing method, malformed token, or expired claims. Callers get no
// further detail so that all rejects look the same.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the claim set carried by a stateless access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// RefreshClaims is the claim set carried by a refresh token. TokenID is the
// opaque revocation handle persisted in the ledger; the signed token itself is
// never stored.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	TokenID string `json:"token_id"`
}

// Codec signs and verifies access and refresh tokens with HS256. The two
// token kinds use independent secrets and lifetimes; leaking one secret must
// not compromise the other kind.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewCodec returns a Codec with the given secrets and lifetimes. Secrets must
// be at least 32 bytes and must differ; config validation enforces that before
// this is called.
func NewCodec(accessSecret, refreshSecret []byte, issuer, audience string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess issues a short-lived access token for the given user.
// Returns the token string and its expiration time.
func (c *Codec) SignAccess(userID, email string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(c.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        newJTI(),
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	return token, expiresAt, err
}

// SignRefresh issues a long-lived refresh token embedding tokenID, the ledger
// handle under which the token can later be revoked.
func (c *Codec) SignRefresh(userID, email, tokenID string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(c.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        newJTI(),
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:   email,
		TokenID: tokenID,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	return token, expiresAt, err
}

// VerifyAccess parses and validates an access token (signature, exp, iss, aud).
// Any failure yields ErrInvalidToken; it never panics on malformed input.
func (c *Codec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.accessSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if err := c.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token. Signature validity alone
// does not make the token usable; the service still requires an active ledger
// record for the embedded TokenID.
func (c *Codec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.refreshSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenID == "" {
		return nil, ErrInvalidToken
	}
	if err := c.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return nil, err
	}
	return claims, nil
}

// newJTI gives every signed token a distinct id so two tokens minted for the
// same user within one second still differ.
func newJTI() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

func (c *Codec) checkIssuerAudience(issuer string, audience jwt.ClaimStrings) error {
	if issuer != c.issuer {
		return ErrInvalidToken
	}
	for _, a := range audience {
		if a == c.audience {
			return nil
		}
	}
	return ErrInvalidToken
}
