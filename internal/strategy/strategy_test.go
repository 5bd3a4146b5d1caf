package strategy

import (
	"testing"

	"quantbt/internal/config"
	"quantbt/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) GenerateSignals(_ int64, _ domain.Window) ([]domain.Signal, error) {
	return nil, nil
}

func stubFactory(cfg config.Strategy) (Strategy, error) {
	return &stubStrategy{name: cfg.Name}, nil
}

func TestRegistryNew(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", stubFactory)

	s, err := r.New(config.Strategy{Name: "my_instance", Type: "stub"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != "my_instance" {
		t.Errorf("Name() = %q, want %q", s.Name(), "my_instance")
	}
}

func TestRegistryNew_UnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New(config.Strategy{Name: "x", Type: "nonexistent"}); err == nil {
		t.Error("expected error for unknown strategy type, got nil")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", stubFactory)
	r.Register("alpha", stubFactory)

	types := r.List()
	if len(types) != 2 {
		t.Fatalf("List returned %d types, want 2", len(types))
	}
	// List returns sorted types.
	if types[0] != "alpha" || types[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", types)
	}
}
