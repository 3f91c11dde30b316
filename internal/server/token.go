package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// FileTokenStore is a JSON-file-backed token store.
// Tokens are kept in memory keyed by hash; mutations rewrite the file.
type FileTokenStore struct {
	path   string
	mu     sync.RWMutex
	tokens map[string]*TokenInfo // keyed by token_hash
	logger *slog.Logger
}

// NewFileTokenStore creates a token store persisted at path.
func NewFileTokenStore(path string, logger *slog.Logger) *FileTokenStore {
	return &FileTokenStore{
		path:   path,
		tokens: make(map[string]*TokenInfo),
		logger: logger,
	}
}

// Load reads the token file. A missing file is not an error for a fresh
// deployment; the caller decides how loudly to report it.
func (s *FileTokenStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var tokens []*TokenInfo
	if err := json.Unmarshal(data, &tokens); err != nil {
		return fmt.Errorf("parse token store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = make(map[string]*TokenInfo)
	for _, t := range tokens {
		s.tokens[t.TokenHash] = t
	}

	s.logger.Info("loaded tokens", "count", len(tokens))
	return nil
}

func (s *FileTokenStore) GetByHash(hash string) (*TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.tokens[hash]
	if !ok {
		return nil, nil
	}
	return info, nil
}

func (s *FileTokenStore) save() error {
	s.mu.RLock()
	tokens := make([]*TokenInfo, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, t)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// CreateToken mints a new bearer token and persists its hash.
// The raw token is returned once and never stored.
func (s *FileTokenStore) CreateToken(desc string, permission string) (string, *TokenInfo, error) {
	rawToken := fmt.Sprintf("rcv_%s", generateID())
	tokenHash := HashToken(rawToken)

	info := &TokenInfo{
		ID:         generateID(),
		TokenHash:  tokenHash,
		Desc:       desc,
		Permission: permission,
	}

	s.mu.Lock()
	s.tokens[tokenHash] = info
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return "", nil, fmt.Errorf("persist token: %w", err)
	}

	return rawToken, info, nil
}

func (s *FileTokenStore) ListTokens() ([]*TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]*TokenInfo, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (s *FileTokenStore) DeleteToken(id string) error {
	s.mu.Lock()
	found := false
	for hash, t := range s.tokens {
		if t.ID == id {
			delete(s.tokens, hash)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("token '%s' not found", id)
	}

	return s.save()
}

func generateID() string {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
