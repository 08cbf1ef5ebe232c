package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the access-token claims. Handle must be non-empty for the
// token to be accepted; a token without it is rejected as unauthenticated.
type Claims struct {
	Handle         string    `json:"handle"`
	AccountID      uuid.UUID `json:"account_id"`
	LinkID         uuid.UUID `json:"link_id"`
	InstallationID uuid.UUID `json:"installation_id"`
	jwt.RegisteredClaims
}

// JWTManager handles access-token operations
type JWTManager struct {
	secret []byte
	expiry time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// GenerateAccessToken creates a short-lived signed token for a session
func (j *JWTManager) GenerateAccessToken(handle string, accountID, linkID, installationID uuid.UUID) (string, error) {
	claims := &Claims{
		Handle:         handle,
		AccountID:      accountID,
		LinkID:         linkID,
		InstallationID: installationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "clipsync",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken parses and validates an access token. A token with an
// empty handle claim is invalid even when the signature checks out.
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Handle == "" {
		return nil, errors.New("token missing handle claim")
	}

	return claims, nil
}

// NewRefreshToken returns a long-lived opaque random credential. It is
// persisted server-side and carries no structure.
func NewRefreshToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable
		panic(err)
	}
	return hex.EncodeToString(buf)
}
