package core

// State is the aggregate held by the store. Collections keep insertion order.
// Values handed out by the store are clones; treat them as read-only.
type State struct {
	Products       []Product       `json:"products"`
	Suppliers      []Supplier      `json:"suppliers"`
	StockMovements []StockMovement `json:"stock_movements"`
	SalesOrders    []SalesOrder    `json:"sales_orders"`
}

// Compile-time assertion that State can back rule evaluation.
var _ RuleView = State{}

// NewState returns an empty state with all four collections initialised.
func NewState() State {
	return State{
		Products:       []Product{},
		Suppliers:      []Supplier{},
		StockMovements: []StockMovement{},
		SalesOrders:    []SalesOrder{},
	}
}

// Clone returns a deep copy sharing no mutable memory with s.
func (s State) Clone() State {
	cloned := State{
		Products:       make([]Product, len(s.Products)),
		Suppliers:      make([]Supplier, len(s.Suppliers)),
		StockMovements: make([]StockMovement, len(s.StockMovements)),
		SalesOrders:    make([]SalesOrder, len(s.SalesOrders)),
	}
	for i, p := range s.Products {
		cloned.Products[i] = cloneProduct(p)
	}
	copy(cloned.Suppliers, s.Suppliers)
	for i, m := range s.StockMovements {
		cloned.StockMovements[i] = cloneMovement(m)
	}
	for i, o := range s.SalesOrders {
		cloned.SalesOrders[i] = cloneOrder(o)
	}
	return cloned
}

func cloneProduct(p Product) Product {
	cp := p
	if p.SupplierID != nil {
		id := *p.SupplierID
		cp.SupplierID = &id
	}
	return cp
}

func cloneMovement(m StockMovement) StockMovement {
	cp := m
	if m.OrderID != nil {
		id := *m.OrderID
		cp.OrderID = &id
	}
	return cp
}

func cloneOrder(o SalesOrder) SalesOrder {
	cp := o
	if o.Items != nil {
		cp.Items = append([]OrderItem(nil), o.Items...)
	}
	return cp
}

func (s State) productIndex(id string) int {
	for i, p := range s.Products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s State) supplierIndex(id string) int {
	for i, sup := range s.Suppliers {
		if sup.ID == id {
			return i
		}
	}
	return -1
}

func (s State) movementIndex(id string) int {
	for i, m := range s.StockMovements {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s State) orderIndex(id string) int {
	for i, o := range s.SalesOrders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// FindProduct retrieves a product by id.
func (s State) FindProduct(id string) (Product, bool) {
	if i := s.productIndex(id); i >= 0 {
		return cloneProduct(s.Products[i]), true
	}
	return Product{}, false
}

// FindSupplier retrieves a supplier by id.
func (s State) FindSupplier(id string) (Supplier, bool) {
	if i := s.supplierIndex(id); i >= 0 {
		return s.Suppliers[i], true
	}
	return Supplier{}, false
}

// FindSalesOrder retrieves an order by id.
func (s State) FindSalesOrder(id string) (SalesOrder, bool) {
	if i := s.orderIndex(id); i >= 0 {
		return cloneOrder(s.SalesOrders[i]), true
	}
	return SalesOrder{}, false
}

// ListProducts returns the catalog in insertion order.
func (s State) ListProducts() []Product {
	out := make([]Product, 0, len(s.Products))
	for _, p := range s.Products {
		out = append(out, cloneProduct(p))
	}
	return out
}

// ListStockMovements returns the ledger in append order.
func (s State) ListStockMovements() []StockMovement {
	out := make([]StockMovement, 0, len(s.StockMovements))
	for _, m := range s.StockMovements {
		out = append(out, cloneMovement(m))
	}
	return out
}

// ListSalesOrders returns orders in insertion order.
func (s State) ListSalesOrders() []SalesOrder {
	out := make([]SalesOrder, 0, len(s.SalesOrders))
	for _, o := range s.SalesOrders {
		out = append(out, cloneOrder(o))
	}
	return out
}
