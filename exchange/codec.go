package exchange

import (
	"errors"
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sellflow/amount"
	"sellflow/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// displayURLTemplate renders a human-facing market page link for the
// market list.
const displayURLTemplate = "https://bittrex.com/Market/Index?MarketName=%s"

var (
	// ErrMalformedEnvelope marks a payload that is not the expected
	// {success, result|message} envelope.
	ErrMalformedEnvelope = errors.New("malformed response envelope")

	// ErrOperationFailed marks an envelope with success=false and no
	// message field.
	ErrOperationFailed = errors.New("operation failed")
)

// envelope validates the shared {success, result|message} response envelope
// and returns the decoded result field. A success=false reply becomes an
// error carrying the exchange-supplied message verbatim: the message is
// semantic (INSUFFICIENT_FUNDS, APIKEY_INVALID, ...) and callers match on it.
func envelope(data []byte) (interface{}, error) {
	var reply map[string]interface{}
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	success, ok := reply["success"].(bool)
	if !ok {
		return nil, ErrMalformedEnvelope
	}
	if !success {
		if msg, ok := reply["message"].(string); ok && msg != "" {
			return nil, errors.New(msg)
		}
		return nil, ErrOperationFailed
	}
	return reply["result"], nil
}

func objectField(v interface{}) (map[string]interface{}, error) {
	o, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: result is not an object", ErrMalformedEnvelope)
	}
	return o, nil
}

func arrayField(v interface{}) ([]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	a, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: result is not an array", ErrMalformedEnvelope)
	}
	return a, nil
}

func stringField(o map[string]interface{}, name string) string {
	s, _ := o[name].(string)
	return s
}

func boolField(o map[string]interface{}, name string) bool {
	b, _ := o[name].(bool)
	return b
}

func amountField(o map[string]interface{}, name string) (amount.Amount, error) {
	a, err := amount.ParseValue(o[name])
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return a, nil
}

// timeLayouts covers the exchange's ISO-8601-like timestamps, with and
// without fractional seconds (e.g. "2014-08-19T07:57:56.893").
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// parseTime parses an exchange timestamp as UTC and converts it to local
// time. Missing or null timestamps yield the zero time.
func parseTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Local()
		}
	}
	return time.Time{}
}

func decodeMarkets(data []byte) (Result, error) {
	var res Result
	v, err := envelope(data)
	if err != nil {
		return res, err
	}
	arr, err := arrayField(v)
	if err != nil {
		return res, err
	}
	markets := make([]models.Market, 0, len(arr))
	for _, item := range arr {
		o, err := objectField(item)
		if err != nil {
			return res, err
		}
		if !boolField(o, "IsActive") {
			continue
		}
		name := stringField(o, "MarketName")
		markets = append(markets, models.Market{
			Name:    name,
			Created: parseTime(o["Created"]),
			URL:     fmt.Sprintf(displayURLTemplate, name),
		})
	}
	res.Markets = markets
	return res, nil
}

func decodeSellBook(data []byte) (Result, error) {
	var res Result
	v, err := envelope(data)
	if err != nil {
		return res, err
	}
	arr, err := arrayField(v)
	if err != nil {
		return res, err
	}
	book := make([]models.BookLevel, 0, len(arr))
	for _, item := range arr {
		o, err := objectField(item)
		if err != nil {
			return res, err
		}
		var level models.BookLevel
		if level.Quantity, err = amountField(o, "Quantity"); err != nil {
			return res, err
		}
		if level.Rate, err = amountField(o, "Rate"); err != nil {
			return res, err
		}
		book = append(book, level)
	}
	// Ascending by rate; stable so ties keep their exchange order.
	sort.SliceStable(book, func(i, j int) bool { return book[i].Rate < book[j].Rate })
	res.Book = book
	return res, nil
}

func decodeOpenOrders(data []byte) (Result, error) {
	var res Result
	v, err := envelope(data)
	if err != nil {
		return res, err
	}
	arr, err := arrayField(v)
	if err != nil {
		return res, err
	}
	orders := make([]models.OpenOrder, 0, len(arr))
	for _, item := range arr {
		o, err := objectField(item)
		if err != nil {
			return res, err
		}
		order := models.OpenOrder{
			UUID:              stringField(o, "Uuid"),
			OrderUUID:         stringField(o, "OrderUuid"),
			Exchange:          stringField(o, "Exchange"),
			Type:              models.OrderTypeFromString(stringField(o, "OrderType")),
			Opened:            parseTime(o["Opened"]),
			Closed:            parseTime(o["Closed"]),
			CancelInitiated:   boolField(o, "CancelInitiated"),
			ImmediateOrCancel: boolField(o, "ImmediateOrCancel"),
		}
		if order.Quantity, err = amountField(o, "Quantity"); err != nil {
			return res, err
		}
		if order.QuantityRemaining, err = amountField(o, "QuantityRemaining"); err != nil {
			return res, err
		}
		if order.Limit, err = amountField(o, "Limit"); err != nil {
			return res, err
		}
		if order.CommissionPaid, err = amountField(o, "CommissionPaid"); err != nil {
			return res, err
		}
		if order.Price, err = amountField(o, "Price"); err != nil {
			return res, err
		}
		orders = append(orders, order)
	}
	res.OpenOrders = orders
	return res, nil
}

func decodePlaceOrder(data []byte) (Result, error) {
	var res Result
	v, err := envelope(data)
	if err != nil {
		return res, err
	}
	if v == nil {
		return res, nil
	}
	o, err := objectField(v)
	if err != nil {
		return res, err
	}
	res.Placed = models.PlaceOrderResult{UUID: stringField(o, "uuid")}
	return res, nil
}

func decodeGetOrder(data []byte) (Result, error) {
	var res Result
	v, err := envelope(data)
	if err != nil {
		return res, err
	}
	if v == nil {
		return res, nil
	}
	o, err := objectField(v)
	if err != nil {
		return res, err
	}
	order := models.Order{
		AccountID:         stringField(o, "AccountId"),
		OrderUUID:         stringField(o, "OrderUuid"),
		Exchange:          stringField(o, "Exchange"),
		Type:              models.OrderTypeFromString(stringField(o, "Type")),
		Opened:            parseTime(o["Opened"]),
		Closed:            parseTime(o["Closed"]),
		IsOpen:            boolField(o, "IsOpen"),
		CancelInitiated:   boolField(o, "CancelInitiated"),
		ImmediateOrCancel: boolField(o, "ImmediateOrCancel"),
		IsConditional:     boolField(o, "IsConditional"),
		Condition:         stringField(o, "Condition"),
		ConditionTarget:   stringField(o, "ConditionTarget"),
	}
	if order.Quantity, err = amountField(o, "Quantity"); err != nil {
		return res, err
	}
	if order.QuantityRemaining, err = amountField(o, "QuantityRemaining"); err != nil {
		return res, err
	}
	if order.Limit, err = amountField(o, "Limit"); err != nil {
		return res, err
	}
	if order.Reserved, err = amountField(o, "Reserved"); err != nil {
		return res, err
	}
	if order.ReserveRemaining, err = amountField(o, "ReserveRemaining"); err != nil {
		return res, err
	}
	if order.CommissionReserved, err = amountField(o, "CommissionReserved"); err != nil {
		return res, err
	}
	if order.CommissionReserveRemaining, err = amountField(o, "CommissionReserveRemaining"); err != nil {
		return res, err
	}
	if order.CommissionPaid, err = amountField(o, "CommissionPaid"); err != nil {
		return res, err
	}
	if order.Price, err = amountField(o, "Price"); err != nil {
		return res, err
	}
	res.Order = order
	return res, nil
}

func decodeBalance(data []byte) (Result, error) {
	var res Result
	v, err := envelope(data)
	if err != nil {
		return res, err
	}
	if v == nil {
		return res, nil
	}
	o, err := objectField(v)
	if err != nil {
		return res, err
	}
	balance := models.Balance{Currency: stringField(o, "Currency")}
	if balance.Balance, err = amountField(o, "Balance"); err != nil {
		return res, err
	}
	if balance.Available, err = amountField(o, "Available"); err != nil {
		return res, err
	}
	if balance.Pending, err = amountField(o, "Pending"); err != nil {
		return res, err
	}
	res.Balance = balance
	return res, nil
}

// decodeCancelOrder only checks the envelope; a successful cancel carries no
// payload fields the engine needs.
func decodeCancelOrder(data []byte) (Result, error) {
	var res Result
	_, err := envelope(data)
	return res, err
}
