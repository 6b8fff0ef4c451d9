package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Credential is the access/refresh pair issued by the game service.
type Credential struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Complete reports whether both tokens are present. A credential with only
// one token is never stored.
func (c Credential) Complete() bool {
	return strings.TrimSpace(c.Access) != "" && strings.TrimSpace(c.Refresh) != ""
}

// Claims is the subset of the token payload this client reads.
type Claims struct {
	Exp       int64  `json:"exp"`
	IssuedAt  int64  `json:"iat,omitempty"`
	Subject   string `json:"sub,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

var errMalformedToken = errors.New("malformed token")

// DecodeClaims reads the payload segment of a JWT-shaped token. The signature
// is not verified: the claims only decide when to ask for a new token.
func DecodeClaims(token string) (Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: expected 3 segments, got %d", errMalformedToken, len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		payload, err = base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return Claims{}, fmt.Errorf("%w: decode payload: %v", errMalformedToken, err)
		}
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: unmarshal claims: %v", errMalformedToken, err)
	}
	if claims.Exp <= 0 {
		return Claims{}, fmt.Errorf("%w: missing exp claim", errMalformedToken)
	}
	return claims, nil
}

// TokenExpiry returns the expiry embedded in token.
func TokenExpiry(token string) (time.Time, error) {
	claims, err := DecodeClaims(token)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(claims.Exp, 0), nil
}

// TokenValidAt reports whether token is decodable and expires strictly after now.
func TokenValidAt(token string, now time.Time) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return now.Before(exp)
}
