package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Strategy es una escalera configurada sobre un par. El Plan es inmutable y
// puede compartirse entre goroutines; cada ejecución crea su propio estado.
type Strategy struct {
	Name   string
	Pair   string
	Config domain.LadderConfig
	Plan   domain.Plan
}

// NewState crea un LadderState propio para esta estrategia.
func (s *Strategy) NewState() *domain.LadderState {
	return domain.NewLadderState(s.Plan)
}

// BaseAsset deriva el activo base del par quitando el quote.
func (s *Strategy) BaseAsset(quote string) string {
	return strings.TrimSuffix(s.Pair, quote)
}

// Registry mantiene las estrategias habilitadas indexadas por nombre.
type Registry map[string]*Strategy

// NewRegistry crea un registry vacío.
func NewRegistry() Registry {
	return make(Registry)
}

// Load construye y valida un Plan por cada estrategia habilitada.
// El primer error de configuración aborta la carga y nombra la estrategia.
func Load(cfgs []config.StrategyConfig) (Registry, error) {
	r := NewRegistry()
	for _, c := range cfgs {
		if !c.IsEnabled() {
			continue
		}
		s, err := Build(c)
		if err != nil {
			return nil, err
		}
		r.Register(s)
	}
	return r, nil
}

// Build convierte la configuración YAML en una Strategy con su Plan.
func Build(c config.StrategyConfig) (*Strategy, error) {
	lc := domain.LadderConfig{
		BaseGap:        c.Ladder.BaseGap,
		GapMax:         c.Ladder.GapMax,
		LadderCount:    c.Ladder.Ladders,
		WeightSequence: c.Ladder.Weights,
		UnitSize:       c.Ladder.UnitSize,
		FeeRate:        domain.DefaultFeeRate,
	}
	if c.Ladder.FeeRate != nil {
		lc.FeeRate = *c.Ladder.FeeRate
	}

	plan, err := domain.BuildPlan(lc)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", c.Name, err)
	}
	return &Strategy{Name: c.Name, Pair: c.Pair, Config: lc, Plan: plan}, nil
}

// Register añade una estrategia al registry.
func (r Registry) Register(s *Strategy) {
	r[s.Name] = s
}

// Get devuelve la estrategia por nombre.
func (r Registry) Get(name string) (*Strategy, bool) {
	s, ok := r[name]
	return s, ok
}

// Names devuelve los nombres ordenados alfabéticamente.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownStrategy se devuelve cuando Select recibe un nombre no registrado.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Select devuelve las estrategias pedidas en orden; "all" (o vacío) las devuelve todas.
func (r Registry) Select(names ...string) ([]*Strategy, error) {
	if len(names) == 0 || (len(names) == 1 && names[0] == "all") {
		names = r.Names()
	}
	out := make([]*Strategy, 0, len(names))
	for _, name := range names {
		s, ok := r[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownStrategy, name, strings.Join(r.Names(), ", "))
		}
		out = append(out, s)
	}
	return out, nil
}
