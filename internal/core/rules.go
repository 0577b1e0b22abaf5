package core

import (
	"context"
	"fmt"

	"stockledger/pkg/domain"
)

// Built-in rule names.
const (
	RuleNegativeStock         = "negative_stock"
	RuleOrderStatusTransition = "order_status_transition"
	RuleLedgerConsistency     = "ledger_consistency"
)

// RuleSeverities configures the built-in policy set. Empty values fall back
// to warn, keeping the reducer's permissive behaviour.
type RuleSeverities struct {
	NegativeStock         Severity
	OrderStatusTransition Severity
}

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine(sev RuleSeverities) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewNegativeStockRule(sev.NegativeStock))
	engine.Register(NewOrderStatusTransitionRule(sev.OrderStatusTransition))
	engine.Register(NewLedgerConsistencyRule())
	return engine
}

func severityOr(s, fallback Severity) Severity {
	if s == "" {
		return fallback
	}
	return s
}

type negativeStockRule struct {
	severity Severity
}

// NewNegativeStockRule flags products whose stock drops below zero.
func NewNegativeStockRule(severity Severity) Rule {
	return negativeStockRule{severity: severityOr(severity, SeverityWarn)}
}

func (r negativeStockRule) Name() string { return RuleNegativeStock }

func (r negativeStockRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.Entity != EntityProduct || change.Action != ActionUpdate {
			continue
		}
		after, ok := change.After.(Product)
		if !ok || after.CurrentStock >= 0 {
			continue
		}
		if before, had := change.Before.(Product); had && after.CurrentStock >= before.CurrentStock {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     r.Name(),
			Severity: r.severity,
			Message:  fmt.Sprintf("product %s stock would be %d", after.ID, after.CurrentStock),
			Entity:   EntityProduct,
			EntityID: after.ID,
		})
	}
	return res, nil
}

type orderStatusTransitionRule struct {
	severity Severity
}

// NewOrderStatusTransitionRule flags replacements that move an order out of a
// terminal status. The reducer accepts such replacements.
func NewOrderStatusTransitionRule(severity Severity) Rule {
	return orderStatusTransitionRule{severity: severityOr(severity, SeverityWarn)}
}

func (r orderStatusTransitionRule) Name() string { return RuleOrderStatusTransition }

func (r orderStatusTransitionRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.Entity != EntitySalesOrder || change.Action != ActionUpdate {
			continue
		}
		before, okBefore := change.Before.(SalesOrder)
		after, okAfter := change.After.(SalesOrder)
		if !okBefore || !okAfter {
			continue
		}
		if before.Status.Terminal() && after.Status != before.Status {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: r.severity,
				Message:  fmt.Sprintf("order %s left terminal status %s for %s", after.ID, before.Status, after.Status),
				Entity:   EntitySalesOrder,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

type ledgerConsistencyRule struct{}

// NewLedgerConsistencyRule blocks any transition after which a touched
// product's stock disagrees with its opening stock plus the ledger sum.
func NewLedgerConsistencyRule() Rule { return ledgerConsistencyRule{} }

func (ledgerConsistencyRule) Name() string { return RuleLedgerConsistency }

func (r ledgerConsistencyRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != EntityProduct {
			continue
		}
		if p, ok := change.After.(Product); ok {
			touched[p.ID] = struct{}{}
		}
	}
	if len(touched) == 0 {
		return Result{}, nil
	}
	sums := make(map[string]int, len(touched))
	for _, m := range view.ListStockMovements() {
		if _, ok := touched[m.ProductID]; ok {
			sums[m.ProductID] += m.Delta()
		}
	}
	var res Result
	for id := range touched {
		p, ok := view.FindProduct(id)
		if !ok {
			continue
		}
		if expected := p.OpeningStock + sums[id]; p.CurrentStock != expected {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("product %s stock %d disagrees with ledger %d", id, p.CurrentStock, expected),
				Entity:   EntityProduct,
				EntityID: id,
			})
		}
	}
	return res, nil
}
