package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockledger/pkg/domain"
)

// ErrValidation marks caller-side input validation failures.
var ErrValidation = errors.New("validation failed")

// ErrNotFound is returned when a referenced entity does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrInvalidTransition is returned for order status changes not offered from
// the current status.
type ErrInvalidTransition struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("sales order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// Service is the caller side of the store: it mints ids and timestamps,
// captures prices, validates form input and builds commands.
type Service struct {
	store *Store
	newID func() string
	nowFn func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithIDSource overrides the id generator.
func WithIDSource(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store *Store, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		newID: func() string { return uuid.NewString() },
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *Store {
	return s.store
}

// ProductInput carries the catalog form fields.
type ProductInput struct {
	SKU           string
	Name          string
	Description   string
	SupplierID    *string
	Price         decimal.Decimal
	InitialStock  int
	MinStockLevel int
}

func (in ProductInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("%w: product name required", ErrValidation)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if in.InitialStock < 0 || in.MinStockLevel < 0 {
		return fmt.Errorf("%w: stock levels must not be negative", ErrValidation)
	}
	return nil
}

// AddProduct validates and inserts a new product.
func (s *Service) AddProduct(ctx context.Context, in ProductInput) (Product, Outcome, error) {
	if err := in.validate(); err != nil {
		return Product{}, Outcome{}, err
	}
	now := s.nowFn()
	p := Product{
		ID:            s.newID(),
		SKU:           in.SKU,
		Name:          in.Name,
		Description:   in.Description,
		SupplierID:    in.SupplierID,
		Price:         in.Price,
		CurrentStock:  in.InitialStock,
		MinStockLevel: in.MinStockLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	out, err := s.store.Dispatch(ctx, AddProduct{Product: p})
	if err != nil {
		return Product{}, out, err
	}
	if stored, ok := s.store.State().FindProduct(p.ID); ok {
		p = stored
	}
	return p, out, nil
}

// UpdateProduct replaces the editable fields of a product. Stock is left to
// the ledger.
func (s *Service) UpdateProduct(ctx context.Context, id string, mutate func(*Product)) (Product, Outcome, error) {
	if mutate == nil {
		return Product{}, Outcome{}, fmt.Errorf("%w: no product changes given", ErrValidation)
	}
	current, ok := s.store.State().FindProduct(id)
	if !ok {
		return Product{}, Outcome{}, ErrNotFound{Entity: EntityProduct, ID: id}
	}
	mutate(&current)
	if current.Price.IsNegative() || current.MinStockLevel < 0 {
		return Product{}, Outcome{}, fmt.Errorf("%w: price and minimum stock must not be negative", ErrValidation)
	}
	current.ID = id
	current.UpdatedAt = s.nowFn()
	out, err := s.store.Dispatch(ctx, UpdateProduct{Product: current})
	if err != nil {
		return Product{}, out, err
	}
	updated, _ := s.store.State().FindProduct(id)
	return updated, out, nil
}

// SupplierInput carries the supplier form fields.
type SupplierInput struct {
	Name        string
	ContactName string
	Email       string
	Phone       string
	Address     string
}

// AddSupplier inserts a new supplier.
func (s *Service) AddSupplier(ctx context.Context, in SupplierInput) (Supplier, Outcome, error) {
	if in.Name == "" {
		return Supplier{}, Outcome{}, fmt.Errorf("%w: supplier name required", ErrValidation)
	}
	now := s.nowFn()
	sup := Supplier{
		ID:          s.newID(),
		Name:        in.Name,
		ContactName: in.ContactName,
		Email:       in.Email,
		Phone:       in.Phone,
		Address:     in.Address,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	out, err := s.store.Dispatch(ctx, AddSupplier{Supplier: sup})
	return sup, out, err
}

// UpdateSupplier replaces a supplier using mutate on the stored record.
func (s *Service) UpdateSupplier(ctx context.Context, id string, mutate func(*Supplier)) (Supplier, Outcome, error) {
	if mutate == nil {
		return Supplier{}, Outcome{}, fmt.Errorf("%w: no supplier changes given", ErrValidation)
	}
	current, ok := s.store.State().FindSupplier(id)
	if !ok {
		return Supplier{}, Outcome{}, ErrNotFound{Entity: EntitySupplier, ID: id}
	}
	mutate(&current)
	current.ID = id
	current.UpdatedAt = s.nowFn()
	out, err := s.store.Dispatch(ctx, UpdateSupplier{Supplier: current})
	return current, out, err
}

// MovementInput carries the stock movement form fields.
type MovementInput struct {
	ProductID string
	Type      MovementType
	Quantity  int
	Notes     string
}

// RecordMovement validates and appends a manual stock movement.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (StockMovement, Outcome, error) {
	if !in.Type.Valid() {
		return StockMovement{}, Outcome{}, fmt.Errorf("%w: movement type %q", ErrValidation, in.Type)
	}
	if in.Quantity <= 0 {
		return StockMovement{}, Outcome{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if _, ok := s.store.State().FindProduct(in.ProductID); !ok {
		return StockMovement{}, Outcome{}, ErrNotFound{Entity: EntityProduct, ID: in.ProductID}
	}
	m := StockMovement{
		ID:        s.newID(),
		ProductID: in.ProductID,
		Type:      in.Type,
		Quantity:  in.Quantity,
		Notes:     in.Notes,
		CreatedAt: s.nowFn(),
	}
	out, err := s.store.Dispatch(ctx, AddStockMovement{Movement: m})
	return m, out, err
}

// OrderLine is one requested product and quantity on a draft order.
type OrderLine struct {
	ProductID string
	Quantity  int
}

// OrderDraft carries the sales order form.
type OrderDraft struct {
	Notes string
	Lines []OrderLine
}

// QuoteOrder prices a draft against the current catalog. Lines whose product
// does not resolve are priced at zero.
func (s *Service) QuoteOrder(lines []OrderLine) decimal.Decimal {
	state := s.store.State()
	total := decimal.Zero
	for _, line := range lines {
		p, ok := state.FindProduct(line.ProductID)
		if !ok {
			continue
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// BuildOrder turns a draft into a PENDING order plus its paired OUT
// movements. Items are built first and stamped with the order id once it is
// minted; unit prices are captured from the current catalog.
func (s *Service) BuildOrder(draft OrderDraft) (SalesOrder, []StockMovement, error) {
	if len(draft.Lines) == 0 {
		return SalesOrder{}, nil, fmt.Errorf("%w: order needs at least one item", ErrValidation)
	}
	state := s.store.State()
	now := s.nowFn()
	items := make([]OrderItem, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		if line.Quantity <= 0 {
			return SalesOrder{}, nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		p, ok := state.FindProduct(line.ProductID)
		if !ok {
			return SalesOrder{}, nil, ErrNotFound{Entity: EntityProduct, ID: line.ProductID}
		}
		items = append(items, OrderItem{
			ID:        s.newID(),
			ProductID: p.ID,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
			CreatedAt: now,
		})
	}

	order := SalesOrder{
		ID:          s.newID(),
		Status:      OrderPending,
		TotalAmount: domain.OrderTotal(items),
		Notes:       draft.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	order.Items = domain.StampOrderID(items, order.ID)

	movements := make([]StockMovement, 0, len(order.Items))
	for _, item := range order.Items {
		orderID := order.ID
		movements = append(movements, StockMovement{
			ID:        s.newID(),
			ProductID: item.ProductID,
			Type:      MovementOut,
			Quantity:  item.Quantity,
			Notes:     OrderMovementNote(order.ID),
			OrderID:   &orderID,
			CreatedAt: now,
		})
	}
	return order, movements, nil
}

// CreateSalesOrder builds the order and commits it with its movements in a
// single transition.
func (s *Service) CreateSalesOrder(ctx context.Context, draft OrderDraft) (SalesOrder, Outcome, error) {
	order, movements, err := s.BuildOrder(draft)
	if err != nil {
		return SalesOrder{}, Outcome{}, err
	}
	out, err := s.store.Dispatch(ctx, CreateSalesOrder{Order: order, Movements: movements})
	if err != nil {
		return SalesOrder{}, out, err
	}
	return order, out, nil
}

// CreateSalesOrderTwoPhase runs the legacy flow: the order is inserted first
// and each movement is dispatched separately afterwards. Observers can see the
// order before all of its movements.
func (s *Service) CreateSalesOrderTwoPhase(ctx context.Context, draft OrderDraft) (SalesOrder, []Outcome, error) {
	order, movements, err := s.BuildOrder(draft)
	if err != nil {
		return SalesOrder{}, nil, err
	}
	cmds := make([]Command, 0, len(movements)+1)
	cmds = append(cmds, AddSalesOrder{Order: order})
	for _, m := range movements {
		cmds = append(cmds, AddStockMovement{Movement: m})
	}
	outcomes, err := s.store.DispatchAll(ctx, cmds...)
	if err != nil {
		return SalesOrder{}, outcomes, err
	}
	return order, outcomes, nil
}

// CompleteOrder moves a PENDING order to COMPLETED.
func (s *Service) CompleteOrder(ctx context.Context, id string) (SalesOrder, Outcome, error) {
	return s.transitionOrder(ctx, id, OrderCompleted)
}

// CancelOrder moves a PENDING order to CANCELLED. Stock is not re-credited.
func (s *Service) CancelOrder(ctx context.Context, id string) (SalesOrder, Outcome, error) {
	return s.transitionOrder(ctx, id, OrderCancelled)
}

func (s *Service) transitionOrder(ctx context.Context, id string, to OrderStatus) (SalesOrder, Outcome, error) {
	order, ok := s.store.State().FindSalesOrder(id)
	if !ok {
		return SalesOrder{}, Outcome{}, ErrNotFound{Entity: EntitySalesOrder, ID: id}
	}
	if order.Status != OrderPending {
		return SalesOrder{}, Outcome{}, ErrInvalidTransition{OrderID: id, From: order.Status, To: to}
	}
	order.Status = to
	order.UpdatedAt = s.nowFn()
	out, err := s.store.Dispatch(ctx, UpdateSalesOrder{Order: order})
	if err != nil {
		return SalesOrder{}, out, err
	}
	return order, out, nil
}
