package strategy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/store"
)

type memStrategyStore struct {
	strategies map[string]domain.Strategy
}

var _ store.StrategyStore = (*memStrategyStore)(nil)

func (m *memStrategyStore) SaveStrategy(_ context.Context, s *domain.Strategy) error {
	m.strategies[s.ID] = *s
	return nil
}

func (m *memStrategyStore) GetStrategy(_ context.Context, id string) (*domain.Strategy, error) {
	s, ok := m.strategies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *memStrategyStore) ListStrategies(_ context.Context) ([]domain.Strategy, error) {
	var out []domain.Strategy
	for _, s := range m.strategies {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStrategyStore) DeleteStrategy(_ context.Context, id string) error {
	if _, ok := m.strategies[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.strategies, id)
	return nil
}

func TestStoreProvider(t *testing.T) {
	backing := &memStrategyStore{strategies: map[string]domain.Strategy{
		"strat-1": {ID: "strat-1", Name: "RSI dip", ConfigText: `{"entry": null}`, CreatedAt: time.Now()},
	}}
	p := NewStoreProvider(backing)

	got, err := p.GetStrategyConfig(context.Background(), "strat-1")
	if err != nil {
		t.Fatalf("GetStrategyConfig: %v", err)
	}
	if got != `{"entry": null}` {
		t.Errorf("config = %q, want the stored text", got)
	}

	if _, err := p.GetStrategyConfig(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want store.ErrNotFound", err)
	}
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	doc := `{"positionSizePct": 10}`
	if err := os.WriteFile(filepath.Join(dir, "momentum.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewDirProvider(dir)
	got, err := p.GetStrategyConfig(context.Background(), "momentum")
	if err != nil {
		t.Fatalf("GetStrategyConfig: %v", err)
	}
	if got != doc {
		t.Errorf("config = %q, want file contents", got)
	}

	if _, err := p.GetStrategyConfig(context.Background(), "absent"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want store.ErrNotFound for a missing file", err)
	}
}

func TestDirProviderRejectsTraversal(t *testing.T) {
	p := NewDirProvider(t.TempDir())
	for _, id := range []string{"", ".", "..", "../etc/passwd", `a\b`, "x/y"} {
		if _, err := p.GetStrategyConfig(context.Background(), id); err == nil {
			t.Errorf("id %q accepted, want rejection", id)
		}
	}
}
