package core

// Kind names a command for logs, metrics and journal rows.
type Kind string

// Command kinds.
const (
	KindAddProduct       Kind = "add_product"
	KindUpdateProduct    Kind = "update_product"
	KindAddSupplier      Kind = "add_supplier"
	KindUpdateSupplier   Kind = "update_supplier"
	KindAddStockMovement Kind = "add_stock_movement"
	KindAddSalesOrder    Kind = "add_sales_order"
	KindCreateSalesOrder Kind = "create_sales_order"
	KindUpdateSalesOrder Kind = "update_sales_order"
)

// Command is the closed set of intents accepted by the reducer. The unexported
// marker keeps implementations inside this package.
type Command interface {
	Kind() Kind
	command()
}

// AddProduct inserts a catalog product. The supplied CurrentStock becomes the
// product's opening stock.
type AddProduct struct {
	Product Product
}

// UpdateProduct replaces a product by id. Stock fields are kept from the
// stored record.
type UpdateProduct struct {
	Product Product
}

// AddSupplier inserts a supplier.
type AddSupplier struct {
	Supplier Supplier
}

// UpdateSupplier replaces a supplier by id.
type UpdateSupplier struct {
	Supplier Supplier
}

// AddStockMovement appends a ledger entry and adjusts the product's stock.
type AddStockMovement struct {
	Movement StockMovement
}

// AddSalesOrder inserts a fully formed order without touching stock. Callers
// using it must dispatch one AddStockMovement per item afterwards.
type AddSalesOrder struct {
	Order SalesOrder
}

// CreateSalesOrder inserts an order and applies its OUT movements in a single
// transition. When Movements is empty one OUT movement is derived per item.
type CreateSalesOrder struct {
	Order     SalesOrder
	Movements []StockMovement
}

// UpdateSalesOrder replaces an order by id; used for status transitions.
type UpdateSalesOrder struct {
	Order SalesOrder
}

func (AddProduct) Kind() Kind       { return KindAddProduct }
func (UpdateProduct) Kind() Kind    { return KindUpdateProduct }
func (AddSupplier) Kind() Kind      { return KindAddSupplier }
func (UpdateSupplier) Kind() Kind   { return KindUpdateSupplier }
func (AddStockMovement) Kind() Kind { return KindAddStockMovement }
func (AddSalesOrder) Kind() Kind    { return KindAddSalesOrder }
func (CreateSalesOrder) Kind() Kind { return KindCreateSalesOrder }
func (UpdateSalesOrder) Kind() Kind { return KindUpdateSalesOrder }

func (AddProduct) command()       {}
func (UpdateProduct) command()    {}
func (AddSupplier) command()      {}
func (UpdateSupplier) command()   {}
func (AddStockMovement) command() {}
func (AddSalesOrder) command()    {}
func (CreateSalesOrder) command() {}
func (UpdateSalesOrder) command() {}

func kindOf(cmd Command) Kind {
	if cmd == nil {
		return "unknown"
	}
	return cmd.Kind()
}
