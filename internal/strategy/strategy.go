// Package strategy resolves a strategy ID to its raw JSON configuration
// document. Two sources exist: the database-backed strategies table and a
// directory of JSON files for teams that keep strategies in version control.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"quantlab/internal/store"
)

// ---------------------------------------------------------------------------
// Store-backed provider
// ---------------------------------------------------------------------------

// StoreProvider reads strategy configurations from a StrategyStore.
type StoreProvider struct {
	strategies store.StrategyStore
}

// NewStoreProvider wraps the given strategy store.
func NewStoreProvider(strategies store.StrategyStore) *StoreProvider {
	return &StoreProvider{strategies: strategies}
}

// GetStrategyConfig returns the raw configuration text for the strategy.
// Unknown IDs surface store.ErrNotFound.
func (p *StoreProvider) GetStrategyConfig(ctx context.Context, strategyID string) (string, error) {
	st, err := p.strategies.GetStrategy(ctx, strategyID)
	if err != nil {
		return "", err
	}
	return st.ConfigText, nil
}

// ---------------------------------------------------------------------------
// Directory-backed provider
// ---------------------------------------------------------------------------

// DirProvider reads strategy configurations from a directory of JSON files,
// one strategy per file, named <id>.json.
type DirProvider struct {
	dir string
}

// NewDirProvider creates a DirProvider rooted at dir.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

// GetStrategyConfig loads <dir>/<id>.json. Missing files surface
// store.ErrNotFound so callers treat both providers the same way.
func (p *DirProvider) GetStrategyConfig(_ context.Context, strategyID string) (string, error) {
	if !validStrategyID(strategyID) {
		return "", fmt.Errorf("invalid strategy id %q", strategyID)
	}

	data, err := os.ReadFile(filepath.Join(p.dir, strategyID+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading strategy %s: %w", strategyID, err)
	}
	return string(data), nil
}

// validStrategyID rejects IDs that could escape the strategy directory.
func validStrategyID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}
