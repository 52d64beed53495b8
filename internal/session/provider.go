// Package session manages accounts and the signed-in identity: sign up,
// sign in and out, password reset, and restoring a persisted session.
package session

import (
	"context"
	"crypto/hmac"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	s "github.com/jlym/minix/internal/server"
	"github.com/jlym/minix/internal/util"
)

const minPasswordLength = 6

type Provider struct {
	Server     s.Server
	Tokens     TokenStore
	Mailer     Mailer
	Clock      util.Clock
	Logger     *slog.Logger
	BcryptCost int

	secret  []byte
	lock    sync.RWMutex
	current string
}

func NewProvider(server s.Server, secret []byte, tokens TokenStore) *Provider {
	logger := slog.Default().With("component", "session")
	return &Provider{
		Server:     server,
		Tokens:     tokens,
		Mailer:     &LogMailer{Logger: logger},
		Clock:      util.NewRealClock(),
		Logger:     logger,
		BcryptCost: bcrypt.DefaultCost,
		secret:     secret,
	}
}

// CurrentIdentity returns the signed-in account id, or "" when signed out.
func (p *Provider) CurrentIdentity() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.current
}

func (p *Provider) setCurrent(accountID string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = accountID
}

func (p *Provider) CurrentAccount(ctx context.Context) (*s.Account, error) {
	identity := p.CurrentIdentity()
	if identity == "" {
		return nil, newError(ReasonNotSignedIn, nil)
	}

	resp, err := p.Server.GetAccount(ctx, &s.GetAccountRequest{AccountID: identity})
	if errors.Is(err, s.ErrNotFound) {
		return nil, newError(ReasonNotFound, err)
	} else if err != nil {
		return nil, newError(ReasonOther, err)
	}
	return resp.Account, nil
}

// SignUp creates an account. It does not sign the new account in.
func (p *Provider) SignUp(ctx context.Context, email, displayName, password string) (*s.Account, error) {
	email, err := validateSignUp(email, password)
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.BcryptCost)
	if err != nil {
		return nil, newError(ReasonOther, errors.Wrap(err, "hashing password failed"))
	}

	resp, err := p.Server.CreateAccount(ctx, &s.CreateAccountRequest{
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: string(hash),
	})
	if errors.Is(err, s.ErrAlreadyExists) {
		return nil, newError(ReasonAlreadyRegistered, err)
	} else if err != nil {
		p.Logger.ErrorContext(ctx, "sign up failed", "email", email, "error", err)
		return nil, newError(ReasonOther, err)
	}

	p.Logger.InfoContext(ctx, "account created", "accountID", resp.Account.AccountID)
	return resp.Account, nil
}

// SignIn checks the credentials, persists a session token and makes the
// account the current identity.
func (p *Provider) SignIn(ctx context.Context, email, password string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	resp, err := p.Server.GetCredentials(ctx, &s.GetCredentialsRequest{Email: email})
	if errors.Is(err, s.ErrNotFound) {
		return "", newError(ReasonNotFound, err)
	} else if err != nil {
		return "", newError(ReasonOther, err)
	}

	creds := resp.Credentials
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return "", newError(ReasonInvalidCredentials, nil)
	}

	token, err := p.issueToken(creds.AccountID, creds.Email, purposeSession, "", sessionTTL)
	if err != nil {
		return "", newError(ReasonOther, err)
	}
	if err := p.Tokens.Save(token); err != nil {
		return "", newError(ReasonOther, err)
	}

	p.setCurrent(creds.AccountID)
	p.Logger.InfoContext(ctx, "signed in", "accountID", creds.AccountID)
	return creds.AccountID, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.setCurrent("")
	if err := p.Tokens.Clear(); err != nil {
		return newError(ReasonOther, err)
	}
	p.Logger.InfoContext(ctx, "signed out")
	return nil
}

// Restore re-establishes the session from the persisted token. An expired or
// tampered token is cleared and reported as not signed in.
func (p *Provider) Restore(ctx context.Context) (string, error) {
	token, err := p.Tokens.Load()
	if err != nil {
		return "", newError(ReasonOther, err)
	}
	if token == "" {
		return "", newError(ReasonNotSignedIn, nil)
	}

	claims, err := p.parseToken(token, purposeSession)
	if err != nil {
		p.Logger.WarnContext(ctx, "discarding stored session", "error", err)
		if clearErr := p.Tokens.Clear(); clearErr != nil {
			p.Logger.WarnContext(ctx, "clearing stored session failed", "error", clearErr)
		}
		return "", newError(ReasonNotSignedIn, err)
	}

	p.setCurrent(claims.Subject)
	return claims.Subject, nil
}

// ResetPassword sends a one hour reset token to the account's mailbox.
func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	resp, err := p.Server.GetCredentials(ctx, &s.GetCredentialsRequest{Email: email})
	if errors.Is(err, s.ErrNotFound) {
		return newError(ReasonNotFound, err)
	} else if err != nil {
		return newError(ReasonOther, err)
	}

	creds := resp.Credentials
	token, err := p.issueToken(creds.AccountID, email, purposeReset, p.passwordFingerprint(creds.PasswordHash), resetTTL)
	if err != nil {
		return newError(ReasonOther, err)
	}
	if err := p.Mailer.SendPasswordReset(ctx, email, token); err != nil {
		return newError(ReasonOther, errors.Wrap(err, "sending reset mail failed"))
	}
	return nil
}

// ConfirmPasswordReset sets newPassword using a token from ResetPassword. A
// token stops working once the password it was issued for has changed.
func (p *Provider) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return newError(ReasonWeakPassword, nil)
	}

	claims, err := p.parseToken(token, purposeReset)
	if err != nil {
		return newError(ReasonInvalidCredentials, err)
	}

	resp, err := p.Server.GetCredentials(ctx, &s.GetCredentialsRequest{Email: claims.Email})
	if errors.Is(err, s.ErrNotFound) {
		return newError(ReasonNotFound, err)
	} else if err != nil {
		return newError(ReasonOther, err)
	}
	creds := resp.Credentials
	if creds.AccountID != claims.Subject ||
		!hmac.Equal([]byte(claims.Fingerprint), []byte(p.passwordFingerprint(creds.PasswordHash))) {
		return newError(ReasonInvalidCredentials, errors.New("reset token was already used"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.BcryptCost)
	if err != nil {
		return newError(ReasonOther, errors.Wrap(err, "hashing password failed"))
	}

	_, err = p.Server.UpdateAccount(ctx, &s.UpdateAccountRequest{
		AccountID:    claims.Subject,
		PasswordHash: string(hash),
	})
	if errors.Is(err, s.ErrNotFound) {
		return newError(ReasonNotFound, err)
	} else if err != nil {
		return newError(ReasonOther, err)
	}
	return nil
}

func (p *Provider) UpdateDisplayName(ctx context.Context, displayName string) (*s.Account, error) {
	identity := p.CurrentIdentity()
	if identity == "" {
		return nil, newError(ReasonNotSignedIn, nil)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, newError(ReasonOther, errors.New("display name was empty"))
	}

	resp, err := p.Server.UpdateAccount(ctx, &s.UpdateAccountRequest{
		AccountID:   identity,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, newError(ReasonOther, err)
	}
	return resp.Account, nil
}

// IsValidGmail reports whether email is a well formed gmail.com address.
func IsValidGmail(email string) bool {
	normalized, err := normalizeEmail(email)
	return err == nil && strings.HasSuffix(normalized, "@gmail.com")
}

func validateSignUp(email, password string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(email, "@gmail.com") {
		return "", newError(ReasonNotGmail, nil)
	}
	if len(password) < minPasswordLength {
		return "", newError(ReasonWeakPassword, nil)
	}
	return email, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", newError(ReasonInvalidEmail, nil)
	}
	return email, nil
}
