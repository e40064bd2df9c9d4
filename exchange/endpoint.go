// Package exchange defines the typed endpoint registry for the exchange API:
// URL templates, signing requirements, auto-update policies and the JSON
// decoders that turn raw payloads into tagged results.
package exchange

import (
	"fmt"
	"strings"

	"sellflow/models"
)

// Endpoint identifies one exchange API endpoint.
type Endpoint int

const (
	EndpointUnknown Endpoint = iota
	EndpointMarkets
	EndpointSellBook
	EndpointOpenOrders
	EndpointPlaceOrder
	EndpointGetOrder
	EndpointCancelOrder
	EndpointBalance
	EndpointBalanceBTC
)

func (e Endpoint) String() string {
	switch e {
	case EndpointMarkets:
		return "markets"
	case EndpointSellBook:
		return "sell_book"
	case EndpointOpenOrders:
		return "open_orders"
	case EndpointPlaceOrder:
		return "place_order"
	case EndpointGetOrder:
		return "get_order"
	case EndpointCancelOrder:
		return "cancel_order"
	case EndpointBalance:
		return "balance"
	case EndpointBalanceBTC:
		return "balance_btc"
	default:
		return "unknown"
	}
}

// AutoUpdatePolicy controls when an endpoint is polled automatically.
type AutoUpdatePolicy int

const (
	// UpdateNever: only polled through one-shot requests.
	UpdateNever AutoUpdatePolicy = iota
	// UpdateAlways: polled on every cycle.
	UpdateAlways
	// UpdateMarketSelected: polled once a market is selected.
	UpdateMarketSelected
	// UpdateRunning: polled while trading is running.
	UpdateRunning
)

// Result is the tagged decode result shared by all endpoints. Only the field
// matching the Endpoint is populated.
type Result struct {
	Endpoint   Endpoint
	Markets    []models.Market
	Book       []models.BookLevel
	OpenOrders []models.OpenOrder
	Order      models.Order
	Placed     models.PlaceOrderResult
	Balance    models.Balance
}

// Descriptor binds an endpoint to its URL template, request requirements and
// decode function.
type Descriptor struct {
	Endpoint Endpoint

	// URLTemplate is the request URL, with a %s slot for the market code
	// when NeedsArg is true.
	URLTemplate string

	// NeedsArg marks endpoints whose URL requires the selected market code.
	NeedsArg bool

	// Signed marks private endpoints that require request signing.
	Signed bool

	Policy AutoUpdatePolicy

	Decode func(data []byte) (Result, error)
}

// URL renders the descriptor's URL template with the given market argument.
// Templates without an argument slot are returned unchanged.
func (d Descriptor) URL(arg string) string {
	if !d.NeedsArg {
		return d.URLTemplate
	}
	return fmt.Sprintf(d.URLTemplate, arg)
}

// DisplayURL strips the argument slot from the template for log messages.
func (d Descriptor) DisplayURL() string {
	return strings.ReplaceAll(d.URLTemplate, "%s", "")
}

// Descriptors returns the full endpoint registry for an API served at
// baseURL (e.g. "https://bittrex.com/api/v1.1").
func Descriptors(baseURL string) []Descriptor {
	return []Descriptor{
		{
			Endpoint:    EndpointMarkets,
			URLTemplate: baseURL + "/public/getmarkets",
			Policy:      UpdateAlways,
			Decode:      decodeMarkets,
		},
		{
			Endpoint:    EndpointSellBook,
			URLTemplate: baseURL + "/public/getorderbook?market=BTC-%s&type=sell",
			NeedsArg:    true,
			Policy:      UpdateRunning,
			Decode:      decodeSellBook,
		},
		{
			Endpoint:    EndpointOpenOrders,
			URLTemplate: baseURL + "/market/getopenorders?market=BTC-%s",
			NeedsArg:    true,
			Signed:      true,
			Policy:      UpdateRunning,
			Decode:      decodeOpenOrders,
		},
		{
			Endpoint:    EndpointPlaceOrder,
			URLTemplate: baseURL + "/market/selllimit?market=BTC-%s",
			NeedsArg:    true,
			Signed:      true,
			Policy:      UpdateNever,
			Decode:      decodePlaceOrder,
		},
		{
			Endpoint:    EndpointGetOrder,
			URLTemplate: baseURL + "/account/getorder",
			Signed:      true,
			Policy:      UpdateNever,
			Decode:      decodeGetOrder,
		},
		{
			Endpoint:    EndpointCancelOrder,
			URLTemplate: baseURL + "/market/cancel",
			Signed:      true,
			Policy:      UpdateNever,
			Decode:      decodeCancelOrder,
		},
		{
			Endpoint:    EndpointBalance,
			URLTemplate: baseURL + "/account/getbalance?currency=%s",
			NeedsArg:    true,
			Signed:      true,
			Policy:      UpdateRunning,
			Decode:      decodeBalance,
		},
		{
			Endpoint:    EndpointBalanceBTC,
			URLTemplate: baseURL + "/account/getbalance?currency=BTC",
			Signed:      true,
			Policy:      UpdateRunning,
			Decode:      decodeBalance,
		},
	}
}
