package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the fixed lifetime of an identity token. There is no refresh
// flow and no revocation list; a token stays valid until natural expiry even
// after logout.
const TokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, malformed payload, or expiry. Callers treat token resolution as
// a lookup that can miss, never as an assertion.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims represents the JWT payload. The embedded fields are a snapshot taken
// at issuance; callers wanting live identity data must re-read the user record.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issued holds a signed token together with its expiry.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Issue signs a 7-day HS256 token for the given identity.
func Issue(userID, username, role, issuer, key string) (Issued, error) {
	return IssueAt(userID, username, role, issuer, key, time.Now())
}

// IssueAt is Issue with an explicit issuance instant, used by expiry
// boundary tests.
func IssueAt(userID, username, role, issuer, key string, now time.Time) (Issued, error) {
	exp := now.Add(TokenTTL)
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, ExpiresAt: exp}, nil
}

// Parse validates a token and returns its claims. Any failure maps to
// ErrInvalidToken.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
