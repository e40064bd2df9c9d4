// Package models defines the shared domain types decoded from exchange
// responses.
package models

import (
	"time"

	"sellflow/amount"
)

// OrderType identifies the side of an exchange order.
type OrderType int

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimitSell
	OrderTypeLimitBuy
)

var orderTypeNames = map[string]OrderType{
	"LIMIT_SELL": OrderTypeLimitSell,
	"LIMIT_BUY":  OrderTypeLimitBuy,
}

// OrderTypeFromString maps the exchange's order type string to an OrderType.
// Unrecognized values map to OrderTypeUnknown, never an error.
func OrderTypeFromString(s string) OrderType {
	if t, ok := orderTypeNames[s]; ok {
		return t
	}
	return OrderTypeUnknown
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimitSell:
		return "LIMIT_SELL"
	case OrderTypeLimitBuy:
		return "LIMIT_BUY"
	default:
		return "UNKNOWN"
	}
}

// Market is one tradeable pair from the market list endpoint.
type Market struct {
	Name    string
	Created time.Time
	URL     string
}

// BookLevel is one price level of the public order book. Levels are replaced
// wholesale on every poll and never mutated in place.
type BookLevel struct {
	Quantity amount.Amount
	Rate     amount.Amount
}

// OpenOrder is one entry of the open order list for a market.
type OpenOrder struct {
	UUID              string
	OrderUUID         string
	Exchange          string
	Type              OrderType
	Quantity          amount.Amount
	QuantityRemaining amount.Amount
	Limit             amount.Amount
	CommissionPaid    amount.Amount
	Price             amount.Amount
	Opened            time.Time
	Closed            time.Time
	CancelInitiated   bool
	ImmediateOrCancel bool
}

// Order is the full order detail from the get-order endpoint. The exchange is
// the source of truth for fill state; the engine reconciles against it.
type Order struct {
	AccountID                  string
	OrderUUID                  string
	Exchange                   string
	Type                       OrderType
	Quantity                   amount.Amount
	QuantityRemaining          amount.Amount
	Limit                      amount.Amount
	Reserved                   amount.Amount
	ReserveRemaining           amount.Amount
	CommissionReserved         amount.Amount
	CommissionReserveRemaining amount.Amount
	CommissionPaid             amount.Amount
	Price                      amount.Amount
	Opened                     time.Time
	Closed                     time.Time
	IsOpen                     bool
	CancelInitiated            bool
	ImmediateOrCancel          bool
	IsConditional              bool
	Condition                  string
	ConditionTarget            string
}

// Balance is the account balance for one currency.
type Balance struct {
	Currency  string
	Balance   amount.Amount
	Available amount.Amount
	Pending   amount.Amount
}

// PlaceOrderResult carries the identifier assigned to a newly placed order.
type PlaceOrderResult struct {
	UUID string
}
