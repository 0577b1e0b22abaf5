package core

import "fmt"

// Reduce applies cmd to state and returns the next state together with an
// outcome describing the effect. It never mutates state, never panics on
// well-formed values and returns state unchanged for commands it does not
// recognise. No validation of quantities, prices or status legality happens
// here; stock may go negative.
func Reduce(state State, cmd Command) (State, Outcome) {
	switch c := cmd.(type) {
	case AddProduct:
		return reduceAddProduct(state, c)
	case UpdateProduct:
		return reduceUpdateProduct(state, c)
	case AddSupplier:
		return reduceAddSupplier(state, c)
	case UpdateSupplier:
		return reduceUpdateSupplier(state, c)
	case AddStockMovement:
		return reduceAddStockMovement(state, c)
	case AddSalesOrder:
		return reduceAddSalesOrder(state, c)
	case CreateSalesOrder:
		return reduceCreateSalesOrder(state, c)
	case UpdateSalesOrder:
		return reduceUpdateSalesOrder(state, c)
	default:
		return state, ignored(ReasonUnknownCommand, fmt.Sprintf("command %T", cmd))
	}
}

func reduceAddProduct(state State, c AddProduct) (State, Outcome) {
	if state.productIndex(c.Product.ID) >= 0 {
		return state, ignored(ReasonDuplicateID, "product "+c.Product.ID)
	}
	next := state.Clone()
	p := cloneProduct(c.Product)
	// Movements recorded before the product existed count toward its ledger,
	// so the opening balance absorbs them.
	p.OpeningStock = p.CurrentStock - orphanDelta(state, p.ID)
	next.Products = append(next.Products, p)
	return next, applied([]Change{{Entity: EntityProduct, Action: ActionCreate, After: cloneProduct(p)}})
}

func orphanDelta(state State, productID string) int {
	total := 0
	for _, m := range state.StockMovements {
		if m.ProductID == productID {
			total += m.Delta()
		}
	}
	return total
}

func reduceUpdateProduct(state State, c UpdateProduct) (State, Outcome) {
	idx := state.productIndex(c.Product.ID)
	if idx < 0 {
		return state, ignored(ReasonNotFound, "product "+c.Product.ID)
	}
	next := state.Clone()
	before := next.Products[idx]
	after := cloneProduct(c.Product)
	after.CurrentStock = before.CurrentStock
	after.OpeningStock = before.OpeningStock
	next.Products[idx] = after
	return next, applied([]Change{{Entity: EntityProduct, Action: ActionUpdate, Before: cloneProduct(before), After: cloneProduct(after)}})
}

func reduceAddSupplier(state State, c AddSupplier) (State, Outcome) {
	if state.supplierIndex(c.Supplier.ID) >= 0 {
		return state, ignored(ReasonDuplicateID, "supplier "+c.Supplier.ID)
	}
	next := state.Clone()
	next.Suppliers = append(next.Suppliers, c.Supplier)
	return next, applied([]Change{{Entity: EntitySupplier, Action: ActionCreate, After: c.Supplier}})
}

func reduceUpdateSupplier(state State, c UpdateSupplier) (State, Outcome) {
	idx := state.supplierIndex(c.Supplier.ID)
	if idx < 0 {
		return state, ignored(ReasonNotFound, "supplier "+c.Supplier.ID)
	}
	next := state.Clone()
	before := next.Suppliers[idx]
	next.Suppliers[idx] = c.Supplier
	return next, applied([]Change{{Entity: EntitySupplier, Action: ActionUpdate, Before: before, After: c.Supplier}})
}

func reduceAddStockMovement(state State, c AddStockMovement) (State, Outcome) {
	if state.movementIndex(c.Movement.ID) >= 0 {
		return state, ignored(ReasonDuplicateID, "stock movement "+c.Movement.ID)
	}
	next := state.Clone()
	changes, resolved := applyMovement(&next, c.Movement)
	if !resolved {
		return next, Outcome{
			Status:  StatusPartial,
			Reason:  ReasonUnknownProduct,
			Detail:  "product " + c.Movement.ProductID,
			Changes: changes,
		}
	}
	return next, applied(changes)
}

// applyMovement appends m to the ledger and adjusts the referenced product.
// It reports false when the product does not resolve; the entry is still
// recorded in that case.
func applyMovement(state *State, m StockMovement) ([]Change, bool) {
	m = cloneMovement(m)
	state.StockMovements = append(state.StockMovements, m)
	changes := []Change{{Entity: EntityStockMovement, Action: ActionCreate, After: cloneMovement(m)}}
	idx := state.productIndex(m.ProductID)
	if idx < 0 {
		return changes, false
	}
	before := cloneProduct(state.Products[idx])
	state.Products[idx].CurrentStock += m.Delta()
	changes = append(changes, Change{
		Entity: EntityProduct,
		Action: ActionUpdate,
		Before: before,
		After:  cloneProduct(state.Products[idx]),
	})
	return changes, true
}

func reduceAddSalesOrder(state State, c AddSalesOrder) (State, Outcome) {
	if state.orderIndex(c.Order.ID) >= 0 {
		return state, ignored(ReasonDuplicateID, "sales order "+c.Order.ID)
	}
	next := state.Clone()
	order := cloneOrder(c.Order)
	next.SalesOrders = append(next.SalesOrders, order)
	return next, applied([]Change{{Entity: EntitySalesOrder, Action: ActionCreate, After: cloneOrder(order)}})
}

func reduceCreateSalesOrder(state State, c CreateSalesOrder) (State, Outcome) {
	if state.orderIndex(c.Order.ID) >= 0 {
		return state, ignored(ReasonDuplicateID, "sales order "+c.Order.ID)
	}
	movements := c.Movements
	if len(movements) == 0 {
		movements = OrderMovements(c.Order)
	}
	seen := make(map[string]struct{}, len(movements))
	for _, m := range movements {
		if _, dup := seen[m.ID]; dup || state.movementIndex(m.ID) >= 0 {
			return state, ignored(ReasonDuplicateID, "stock movement "+m.ID)
		}
		seen[m.ID] = struct{}{}
	}

	next := state.Clone()
	order := cloneOrder(c.Order)
	next.SalesOrders = append(next.SalesOrders, order)
	changes := []Change{{Entity: EntitySalesOrder, Action: ActionCreate, After: cloneOrder(order)}}
	var unresolved []string
	for _, m := range movements {
		mc, ok := applyMovement(&next, m)
		changes = append(changes, mc...)
		if !ok {
			unresolved = append(unresolved, m.ProductID)
		}
	}
	if len(unresolved) > 0 {
		return next, Outcome{
			Status:  StatusPartial,
			Reason:  ReasonUnknownProduct,
			Detail:  fmt.Sprintf("products %v", unresolved),
			Changes: changes,
		}
	}
	return next, applied(changes)
}

func reduceUpdateSalesOrder(state State, c UpdateSalesOrder) (State, Outcome) {
	idx := state.orderIndex(c.Order.ID)
	if idx < 0 {
		return state, ignored(ReasonNotFound, "sales order "+c.Order.ID)
	}
	next := state.Clone()
	before := next.SalesOrders[idx]
	after := cloneOrder(c.Order)
	next.SalesOrders[idx] = after
	return next, applied([]Change{{Entity: EntitySalesOrder, Action: ActionUpdate, Before: cloneOrder(before), After: cloneOrder(after)}})
}

// OrderMovements derives one OUT movement per order item, in item order.
func OrderMovements(order SalesOrder) []StockMovement {
	out := make([]StockMovement, 0, len(order.Items))
	for _, item := range order.Items {
		orderID := order.ID
		out = append(out, StockMovement{
			ID:        "mv-" + item.ID,
			ProductID: item.ProductID,
			Type:      MovementOut,
			Quantity:  item.Quantity,
			Notes:     OrderMovementNote(order.ID),
			OrderID:   &orderID,
			CreatedAt: order.CreatedAt,
		})
	}
	return out
}

// OrderMovementNote is the note recorded on movements emitted by an order.
func OrderMovementNote(orderID string) string {
	return "Order: " + orderID
}
