package core

import "stockledger/pkg/domain"

type (
	EntityType         = domain.EntityType
	MovementType       = domain.MovementType
	OrderStatus        = domain.OrderStatus
	Severity           = domain.Severity
	Product            = domain.Product
	Supplier           = domain.Supplier
	StockMovement      = domain.StockMovement
	SalesOrder         = domain.SalesOrder
	OrderItem          = domain.OrderItem
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityProduct       = domain.EntityProduct
	EntitySupplier      = domain.EntitySupplier
	EntityStockMovement = domain.EntityStockMovement
	EntitySalesOrder    = domain.EntitySalesOrder
)

const (
	MovementIn  = domain.MovementIn
	MovementOut = domain.MovementOut
)

const (
	OrderPending   = domain.OrderPending
	OrderCompleted = domain.OrderCompleted
	OrderCancelled = domain.OrderCancelled
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)
