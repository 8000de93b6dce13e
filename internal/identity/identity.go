// Package identity handles the authenticated-user triple the sync
// engine consumes: user id, access token, signed-in flag. Token
// issuance itself is an external collaborator; ck only stores what a
// sign-in produced.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcus/ck/internal/config"
	"github.com/marcus/ck/internal/models"
)

const authFile = "auth.json"

// ErrSignInFailed is returned by providers when the external
// authenticator rejects or aborts the sign-in.
var ErrSignInFailed = errors.New("sign in failed")

// Credentials is the persisted authentication state.
type Credentials struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	AccessToken string `json:"access_token"`
}

// Identity returns the identity view of the credentials.
func (c *Credentials) Identity() models.Identity {
	return models.Identity{ID: c.UserID, Email: c.Email, Name: c.Name}
}

// Provider acquires credentials from an external authenticator.
type Provider interface {
	SignIn() (*Credentials, error)
}

// ProviderFunc adapts a func to Provider.
type ProviderFunc func() (*Credentials, error)

// SignIn implements Provider.
func (f ProviderFunc) SignIn() (*Credentials, error) { return f() }

// Load reads credentials. Returns nil when signed out.
// CK_AUTH_TOKEN + CK_AUTH_USER env vars override the file.
func Load() (*Credentials, error) {
	if tok := os.Getenv("CK_AUTH_TOKEN"); tok != "" {
		user := os.Getenv("CK_AUTH_USER")
		if user == "" {
			return nil, fmt.Errorf("CK_AUTH_TOKEN set without CK_AUTH_USER")
		}
		return &Credentials{
			UserID:      user,
			Email:       os.Getenv("CK_AUTH_EMAIL"),
			AccessToken: tok,
		}, nil
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, authFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", authFile, err)
	}
	if creds.UserID == "" || creds.AccessToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes credentials with 0600 perms.
func Save(creds *Credentials) error {
	if creds.UserID == "" {
		return fmt.Errorf("credentials missing user id")
	}
	if creds.AccessToken == "" {
		return fmt.Errorf("credentials missing access token")
	}
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, authFile), data, 0600)
}

// Clear removes stored credentials. Missing file is fine.
func Clear() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, authFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
