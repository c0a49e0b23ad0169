// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName carries the signed guest identity.
const CookieName = "auth_token"

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TokenTTL is how long issued tokens stay valid; zero means they never expire.
	TokenTTL time.Duration
)

// parseTokenExpireTime reads TOKEN_EXPIRE_TIME ("72h", "never", "0").
func parseTokenExpireTime() error {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "never" || raw == "0" {
		TokenTTL = 0
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("failed to parse token expire time: %w", err)
	}
	TokenTTL = d
	return nil
}

// Init generates a fresh ed25519 key pair. Tokens issued before a restart stop
// verifying, which only costs guests their seat identity.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return parseTokenExpireTime()
}

// InitFromPath loads a raw ed25519 key pair from disk so tokens survive restarts.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return fmt.Errorf("malformed ed25519 key files")
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	return parseTokenExpireTime()
}

// CreateJWT signs a token with "sub" = subject.
func CreateJWT(subject string) (string, error) {
	if privateKey == nil {
		return "", errors.New("auth keys not initialized")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if TokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(TokenTTL))
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(privateKey)
}

// AuthenticateJWT verifies a token and returns its subject. Only EdDSA
// tokens signed by the current key are accepted.
func AuthenticateJWT(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithIssuedAt())
	if err != nil {
		return "", fmt.Errorf("authenticate token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// IdentityFromRequest returns the subject of a valid auth cookie.
func IdentityFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	sub, err := AuthenticateJWT(c.Value)
	if err != nil {
		return "", false
	}
	return sub, true
}

// EnsureGuest returns the caller's identity, minting a guest identity and
// setting its cookie when the request carries none (or an invalid one).
func EnsureGuest(w http.ResponseWriter, r *http.Request) (string, error) {
	if sub, ok := IdentityFromRequest(r); ok {
		return sub, nil
	}

	guestID := uuid.NewString()
	token, err := CreateJWT(guestID)
	if err != nil {
		return "", fmt.Errorf("failed to create guest JWT: %w", err)
	}
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if TokenTTL > 0 {
		cookie.MaxAge = int(TokenTTL.Seconds())
	}
	http.SetCookie(w, cookie)
	return guestID, nil
}
