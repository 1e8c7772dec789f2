package rules

import (
	"encoding/json"
	"log/slog"
	"strings"

	"quantlab/internal/indicator"
)

// Engine defaults used whenever the configuration document is missing,
// malformed, or silent on a field.
const (
	DefaultPositionSizePct = 25.0
	DefaultLeverage        = 1.0
	DefaultEntryLogic      = "AND"
	DefaultExitLogic       = "OR"
	defaultIndicatorPeriod = 14
	defaultMinimumBars     = 50
)

// IndicatorSpec names one configured indicator and its period.
type IndicatorSpec struct {
	Kind   string
	Period int
}

// StrategyConfig is the parsed, validated form of a strategy document. It is
// built once per backtest run; the rule trees inside are typed ASTs, not raw
// JSON.
type StrategyConfig struct {
	PositionSizePct float64
	Leverage        float64
	EntryLogic      string
	ExitLogic       string
	Entry           Node
	Exit            Node
	Indicators      []IndicatorSpec
	StopLossPct     *float64
	TakeProfitPct   *float64
}

// MinimumBars returns the warm-up length: the largest configured indicator
// period, or 50 when no indicators are configured.
func (c *StrategyConfig) MinimumBars() int {
	minBars := 0
	for _, spec := range c.Indicators {
		if spec.Period > minBars {
			minBars = spec.Period
		}
	}
	if minBars == 0 {
		return defaultMinimumBars
	}
	return minBars
}

// ShouldExit applies exit precedence for an open long position: the
// stop-loss and take-profit thresholds (computed from the entry price) are
// checked before the exit rule tree, and a breach exits immediately without
// consulting the tree.
func (c *StrategyConfig) ShouldExit(snap indicator.Snapshot, price, entryPrice float64) bool {
	if c.StopLossPct != nil {
		stop := entryPrice * (1 - *c.StopLossPct/100)
		if price <= stop {
			return true
		}
	}
	if c.TakeProfitPct != nil {
		target := entryPrice * (1 + *c.TakeProfitPct/100)
		if price >= target {
			return true
		}
	}
	return Evaluate(c.Exit, snap, price)
}

// ShouldEnter evaluates the entry rule tree.
func (c *StrategyConfig) ShouldEnter(snap indicator.Snapshot, price float64) bool {
	return Evaluate(c.Entry, snap, price)
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Wire format of a strategy document.
type configDoc struct {
	Position   *positionDoc   `json:"position"`
	Indicators []indicatorDoc `json:"indicators"`
	Entry      *ruleGroupDoc  `json:"entry"`
	Exit       *ruleGroupDoc  `json:"exit"`
	Risk       *riskDoc       `json:"risk"`
}

type positionDoc struct {
	CapitalPct *float64 `json:"capital_pct"`
	Leverage   *float64 `json:"leverage"`
}

type indicatorDoc struct {
	Type   string `json:"type"`
	Period int    `json:"period"`
}

type ruleGroupDoc struct {
	Logic string    `json:"logic"`
	Rules []ruleDoc `json:"rules"`
}

type ruleDoc struct {
	Indicator string   `json:"indicator"`
	Operator  string   `json:"operator"`
	Value     *float64 `json:"value"`
	CompareTo string   `json:"compare_to"`
}

type riskDoc struct {
	StopLossPct   *float64 `json:"stop_loss_pct"`
	TakeProfitPct *float64 `json:"take_profit_pct"`
}

// Default returns a StrategyConfig with engine defaults and empty rule
// trees. An empty entry tree never fires, so a defaulted strategy trades
// nothing rather than trading wrongly.
func Default() *StrategyConfig {
	return &StrategyConfig{
		PositionSizePct: DefaultPositionSizePct,
		Leverage:        DefaultLeverage,
		EntryLogic:      DefaultEntryLogic,
		ExitLogic:       DefaultExitLogic,
	}
}

// Parse converts raw strategy configuration text into a StrategyConfig. It
// never fails: malformed input falls back to engine defaults with a logged
// warning, and individual missing fields are defaulted independently.
func Parse(text string) *StrategyConfig {
	cfg := Default()

	var doc configDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		slog.Warn("parsing strategy config, using defaults", "error", err)
		return cfg
	}

	if doc.Position != nil {
		if doc.Position.CapitalPct != nil {
			cfg.PositionSizePct = *doc.Position.CapitalPct
		}
		if doc.Position.Leverage != nil {
			cfg.Leverage = *doc.Position.Leverage
		}
	}

	for _, ind := range doc.Indicators {
		if ind.Type == "" {
			continue
		}
		period := ind.Period
		if period <= 0 {
			period = defaultIndicatorPeriod
		}
		cfg.Indicators = append(cfg.Indicators, IndicatorSpec{
			Kind:   strings.ToUpper(ind.Type),
			Period: period,
		})
	}

	if doc.Entry != nil {
		cfg.EntryLogic = normalizeLogic(doc.Entry.Logic, DefaultEntryLogic)
		cfg.Entry = buildTree(cfg.EntryLogic, doc.Entry.Rules)
	}
	if doc.Exit != nil {
		cfg.ExitLogic = normalizeLogic(doc.Exit.Logic, DefaultExitLogic)
		cfg.Exit = buildTree(cfg.ExitLogic, doc.Exit.Rules)
	}

	if doc.Risk != nil {
		cfg.StopLossPct = doc.Risk.StopLossPct
		cfg.TakeProfitPct = doc.Risk.TakeProfitPct
	}

	return cfg
}

func normalizeLogic(logic, fallback string) string {
	switch strings.ToUpper(logic) {
	case "AND":
		return "AND"
	case "OR":
		return "OR"
	default:
		return fallback
	}
}

// buildTree lifts a flat rule list into a typed one-level tree. A missing or
// empty rule list produces a nil tree, which evaluates to false.
func buildTree(logic string, docs []ruleDoc) Node {
	if len(docs) == 0 {
		return nil
	}

	children := make([]Node, 0, len(docs))
	for _, d := range docs {
		children = append(children, Comparison{
			Indicator: d.Indicator,
			Op:        d.Operator,
			Value:     d.Value,
			CompareTo: d.CompareTo,
		})
	}

	if logic == "OR" {
		return Or(children)
	}
	return And(children)
}
