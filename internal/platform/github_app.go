package platform

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppAuth holds GitHub App credentials. The app JWT it signs is exchanged for
// an installation token by the client; the JWT itself is only valid against
// the /app endpoints.
type AppAuth struct {
	AppID          int64
	InstallationID int64
	key            *rsa.PrivateKey
}

// NewAppAuth loads the app's RSA private key from a PEM file.
func NewAppAuth(appID, installationID int64, privateKeyPath string) (*AppAuth, error) {
	pem, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading app private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing app private key: %w", err)
	}
	return &AppAuth{AppID: appID, InstallationID: installationID, key: key}, nil
}

// SignedJWT mints a short-lived RS256 app JWT. Issued-at is backdated a
// minute to absorb clock skew against GitHub's servers.
func (a *AppAuth) SignedJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", a.AppID),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
}
