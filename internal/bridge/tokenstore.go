package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// TokenStore saves and loads the OAuth token between runs.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// FileTokenStore keeps the token as JSON in a 0600 file.
type FileTokenStore struct {
	Path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

// SaveToken writes only what is needed to resume the session: the refresh
// token and its type. Access tokens are short-lived and re-minted on start.
func (s *FileTokenStore) SaveToken(token *oauth2.Token) error {
	if token == nil {
		return errors.New("token is nil")
	}
	stored := &oauth2.Token{
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// LoadToken returns nil, nil when no token has been stored yet.
func (s *FileTokenStore) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, nil
	}
	return &token, nil
}

// savingTokenSource persists every token that differs from the last one it
// handed out, so refreshed tokens survive a restart.
type savingTokenSource struct {
	source oauth2.TokenSource
	store  TokenStore
	last   *oauth2.Token
	onNew  func(*oauth2.Token)
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}
	if s.last == nil || s.last.AccessToken != token.AccessToken {
		if err := s.store.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		s.last = token
		if s.onNew != nil {
			s.onNew(token)
		}
	}
	return token, nil
}
