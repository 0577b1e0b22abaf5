// Package script replays YAML session files against a Service. A session is
// an ordered list of steps; steps name the entities they create with a ref
// so later steps can point at them without knowing minted ids.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stockledger/internal/core"
)

// Op names a step.
type Op string

// Supported step operations.
const (
	OpAddSupplier    Op = "add_supplier"
	OpUpdateSupplier Op = "update_supplier"
	OpAddProduct     Op = "add_product"
	OpUpdateProduct  Op = "update_product"
	OpRecordMovement Op = "record_movement"
	OpCreateOrder    Op = "create_order"
	OpCompleteOrder  Op = "complete_order"
	OpCancelOrder    Op = "cancel_order"
)

// Line is one order line in a create_order step.
type Line struct {
	Product  string `yaml:"product"`
	Quantity int    `yaml:"quantity"`
}

// Step is a single operation. Only the fields relevant to Op are read.
type Step struct {
	Op  Op     `yaml:"op"`
	Ref string `yaml:"ref,omitempty"`

	// supplier fields
	ContactName string `yaml:"contact_name,omitempty"`
	Email       string `yaml:"email,omitempty"`
	Phone       string `yaml:"phone,omitempty"`
	Address     string `yaml:"address,omitempty"`

	// product fields
	SKU         string  `yaml:"sku,omitempty"`
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Supplier    string  `yaml:"supplier,omitempty"`
	Price       *string `yaml:"price,omitempty"`
	Stock       *int    `yaml:"stock,omitempty"`
	MinStock    *int    `yaml:"min_stock,omitempty"`

	// movement fields; Product also targets update_product
	Product  string `yaml:"product,omitempty"`
	Type     string `yaml:"type,omitempty"`
	Quantity int    `yaml:"quantity,omitempty"`
	Notes    string `yaml:"notes,omitempty"`

	// order fields
	Order    string `yaml:"order,omitempty"`
	Lines    []Line `yaml:"lines,omitempty"`
	TwoPhase bool   `yaml:"two_phase,omitempty"`
}

// Script is a parsed session file.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Parse decodes a session from r. Unknown keys are rejected.
func Parse(r io.Reader) (Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Script{}, errors.New("empty script")
		}
		return Script{}, fmt.Errorf("parse script: %w", err)
	}
	for i, step := range s.Steps {
		if !step.Op.valid() {
			return Script{}, fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}
	}
	return s, nil
}

// Load reads and parses the session at path.
func Load(path string) (Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return Script{}, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func (o Op) valid() bool {
	switch o {
	case OpAddSupplier, OpUpdateSupplier, OpAddProduct, OpUpdateProduct,
		OpRecordMovement, OpCreateOrder, OpCompleteOrder, OpCancelOrder:
		return true
	}
	return false
}

// StepResult records what one step did.
type StepResult struct {
	Index    int
	Op       Op
	Ref      string
	EntityID string
	Outcomes []core.Outcome
}

// StepError wraps the failure of a single step.
type StepError struct {
	Index int
	Op    Op
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes scripts against a Service, remembering refs across runs.
type Runner struct {
	svc  *core.Service
	refs map[string]string
}

// NewRunner returns a runner bound to svc.
func NewRunner(svc *core.Service) *Runner {
	return &Runner{svc: svc, refs: make(map[string]string)}
}

// Resolve maps a ref to the id minted for it. Unknown refs are returned
// unchanged so scripts may also use raw ids.
func (r *Runner) Resolve(ref string) string {
	if id, ok := r.refs[ref]; ok {
		return id
	}
	return ref
}

// Run executes every step in order and stops at the first failing step.
// Rule rejections count as failures.
func (r *Runner) Run(ctx context.Context, s Script) ([]StepResult, error) {
	results := make([]StepResult, 0, len(s.Steps))
	for i, step := range s.Steps {
		res, err := r.runStep(ctx, step)
		res.Index, res.Op, res.Ref = i+1, step.Op, step.Ref
		if err != nil {
			return results, &StepError{Index: i + 1, Op: step.Op, Err: err}
		}
		if step.Ref != "" && res.EntityID != "" {
			r.refs[step.Ref] = res.EntityID
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runStep(ctx context.Context, step Step) (StepResult, error) {
	switch step.Op {
	case OpAddSupplier:
		sup, out, err := r.svc.AddSupplier(ctx, core.SupplierInput{
			Name:        step.Name,
			ContactName: step.ContactName,
			Email:       step.Email,
			Phone:       step.Phone,
			Address:     step.Address,
		})
		return single(sup.ID, out), err

	case OpUpdateSupplier:
		sup, out, err := r.svc.UpdateSupplier(ctx, r.Resolve(step.Supplier), func(s *core.Supplier) {
			setIf(&s.Name, step.Name)
			setIf(&s.ContactName, step.ContactName)
			setIf(&s.Email, step.Email)
			setIf(&s.Phone, step.Phone)
			setIf(&s.Address, step.Address)
		})
		return single(sup.ID, out), err

	case OpAddProduct:
		price, err := parsePrice(step.Price)
		if err != nil {
			return StepResult{}, err
		}
		in := core.ProductInput{
			SKU:          step.SKU,
			Name:         step.Name,
			Description:  step.Description,
			Price:        price,
			InitialStock: deref(step.Stock),
		}
		if step.MinStock != nil {
			in.MinStockLevel = *step.MinStock
		}
		if step.Supplier != "" {
			id := r.Resolve(step.Supplier)
			in.SupplierID = &id
		}
		p, out, err := r.svc.AddProduct(ctx, in)
		return single(p.ID, out), err

	case OpUpdateProduct:
		if step.Stock != nil {
			return StepResult{}, fmt.Errorf("%w: stock is changed through record_movement, not update_product", core.ErrValidation)
		}
		var price *decimal.Decimal
		if step.Price != nil {
			d, err := parsePrice(step.Price)
			if err != nil {
				return StepResult{}, err
			}
			price = &d
		}
		p, out, err := r.svc.UpdateProduct(ctx, r.Resolve(step.Product), func(p *core.Product) {
			setIf(&p.SKU, step.SKU)
			setIf(&p.Name, step.Name)
			setIf(&p.Description, step.Description)
			if price != nil {
				p.Price = *price
			}
			if step.MinStock != nil {
				p.MinStockLevel = *step.MinStock
			}
			if step.Supplier != "" {
				id := r.Resolve(step.Supplier)
				p.SupplierID = &id
			}
		})
		return single(p.ID, out), err

	case OpRecordMovement:
		m, out, err := r.svc.RecordMovement(ctx, core.MovementInput{
			ProductID: r.Resolve(step.Product),
			Type:      core.MovementType(strings.ToUpper(step.Type)),
			Quantity:  step.Quantity,
			Notes:     step.Notes,
		})
		return single(m.ID, out), err

	case OpCreateOrder:
		draft := core.OrderDraft{Notes: step.Notes}
		for _, l := range step.Lines {
			draft.Lines = append(draft.Lines, core.OrderLine{ProductID: r.Resolve(l.Product), Quantity: l.Quantity})
		}
		if step.TwoPhase {
			order, outs, err := r.svc.CreateSalesOrderTwoPhase(ctx, draft)
			return StepResult{EntityID: order.ID, Outcomes: outs}, err
		}
		order, out, err := r.svc.CreateSalesOrder(ctx, draft)
		return single(order.ID, out), err

	case OpCompleteOrder:
		order, out, err := r.svc.CompleteOrder(ctx, r.Resolve(step.Order))
		return single(order.ID, out), err

	case OpCancelOrder:
		order, out, err := r.svc.CancelOrder(ctx, r.Resolve(step.Order))
		return single(order.ID, out), err
	}
	return StepResult{}, fmt.Errorf("unknown op %q", step.Op)
}

func single(id string, out core.Outcome) StepResult {
	return StepResult{EntityID: id, Outcomes: []core.Outcome{out}}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parsePrice(s *string) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q", core.ErrValidation, *s)
	}
	return d, nil
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
