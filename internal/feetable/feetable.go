// Package feetable implements the piecewise fee schedule of §4.1: a lookup
// from (transaction kind, amount) to a fee in minor units. The bracket
// comparison happens in display units, matching the original implementation
// (crates/pesa-core/src/.../transaction_costs) which divides by 100 before
// comparing against min/max.
package feetable

import (
	"embed"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
)

//go:embed default_schedule.yaml
var defaultScheduleFS embed.FS

// Rule is one bracket of the piecewise fee function.
type Rule struct {
	Kind              models.TransactionKind `yaml:"kind"`
	MinAmountDisplay  int64                  `yaml:"minAmount"`
	MaxAmountDisplay  int64                  `yaml:"maxAmount"`
	FixedMinor        int64                  `yaml:"fixedMinor"`
	PercentageBasis10 int64                  `yaml:"percentageBasisPoints"` // hundredths of a percent, e.g. 150 == 1.5%
}

// Table is the in-memory, goroutine-safe fee schedule. Administrators may
// mutate it after the initial seed; the core only ever reads it.
type Table struct {
	mu    sync.RWMutex
	rules []Rule
}

// New returns an empty table. Callers normally follow up with SeedDefaults
// when the backing store reports it has never been seeded (§4.1: "seeded
// with a known default schedule on first startup when empty").
func New() *Table {
	return &Table{}
}

// Load replaces the table's rules wholesale, used when restoring
// administrator-edited rules from persistence.
func (t *Table) Load(rules []Rule) {
	sorted := append([]Rule(nil), rules...)
	sortRules(sorted)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = sorted
}

// Rules returns a snapshot of the current rule set.
func (t *Table) Rules() []Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Rule(nil), t.rules...)
}

// SeedDefaults loads the embedded default schedule, the YAML-described
// equivalent of the original's init_default_costs seed list.
func (t *Table) SeedDefaults() error {
	raw, err := defaultScheduleFS.ReadFile("default_schedule.yaml")
	if err != nil {
		return err
	}
	var rules []Rule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return err
	}
	t.Load(rules)
	return nil
}

// resolveKind collapses Paybill/BuyGoods/SendMoney onto a single schedule key.
func resolveKind(kind models.TransactionKind) models.TransactionKind {
	switch kind {
	case models.KindPaybill, models.KindBuyGoods, models.KindSendMoney:
		return models.KindSendMoney
	default:
		return kind
	}
}

// Fee computes the fee, in minor units, for a transaction of the given kind
// and amount (also minor units). The first matching rule wins; no match
// means a zero fee.
func (t *Table) Fee(kind models.TransactionKind, amountMinor int64) int64 {
	resolved := resolveKind(kind)
	displayAmount := amountMinor / 100

	t.mu.RLock()
	rules := t.rules
	t.mu.RUnlock()

	for _, r := range rules {
		if r.Kind != resolved {
			continue
		}
		if displayAmount < r.MinAmountDisplay || displayAmount > r.MaxAmountDisplay {
			continue
		}
		fee := r.FixedMinor
		if r.PercentageBasis10 != 0 {
			pct := decimal.New(r.PercentageBasis10, -4) // basis points -> fraction
			amt := decimal.New(amountMinor, 0)
			fee += amt.Mul(pct).Round(0).IntPart()
		}
		return fee
	}
	return 0
}

// sortRules keeps brackets ordered by min amount for deterministic first-match
// semantics when rules are appended out of order by an administrator.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Kind != rules[j].Kind {
			return rules[i].Kind < rules[j].Kind
		}
		return rules[i].MinAmountDisplay < rules[j].MinAmountDisplay
	})
}
