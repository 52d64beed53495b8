package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	purposeSession = "session"
	purposeReset   = "reset"

	sessionTTL = 24 * time.Hour
	resetTTL   = time.Hour
)

type Claims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	// Fingerprint binds a reset token to the password hash it replaces, so
	// the token stops working once the password changes.
	Fingerprint string `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

func (p *Provider) issueToken(accountID, email, purpose, fingerprint string, ttl time.Duration) (string, error) {
	now := p.Clock.NowUtc()
	claims := Claims{
		Email:       email,
		Purpose:     purpose,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token failed")
	}
	return signed, nil
}

func (p *Provider) parseToken(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.Clock.NowUtc),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Purpose != purpose {
		return nil, errors.Errorf("token purpose was %q", claims.Purpose)
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject was empty")
	}
	return claims, nil
}

func (p *Provider) passwordFingerprint(passwordHash string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(passwordHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// TokenStore persists the session token between runs.
type TokenStore interface {
	// Load returns "" when no token is stored.
	Load() (string, error)
	Save(token string) error
	Clear() error
}

type MemoryTokenStore struct {
	token string
	lock  sync.Mutex
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load() (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.token, nil
}

func (m *MemoryTokenStore) Save(token string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	return m.Save("")
}

// FileTokenStore keeps the token in a single file readable only by the owner.
type FileTokenStore struct {
	Path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

func (f *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Wrapf(err, "reading session file failed, path=\"%s\"", f.Path)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return errors.Wrapf(err, "creating session dir failed, path=\"%s\"", f.Path)
	}
	if err := os.WriteFile(f.Path, []byte(token), 0o600); err != nil {
		return errors.Wrapf(err, "writing session file failed, path=\"%s\"", f.Path)
	}
	return nil
}

func (f *FileTokenStore) Clear() error {
	err := os.Remove(f.Path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing session file failed, path=\"%s\"", f.Path)
	}
	return nil
}
