package exchange

import (
	"errors"
	"testing"

	"sellflow/amount"
	"sellflow/models"
)

func TestEnvelopeBusinessError(t *testing.T) {
	_, err := envelope([]byte(`{"success":false,"message":"INSUFFICIENT_FUNDS"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "INSUFFICIENT_FUNDS" {
		t.Errorf("message not propagated verbatim: %q", err.Error())
	}
}

func TestEnvelopeFailureWithoutMessage(t *testing.T) {
	_, err := envelope([]byte(`{"success":false}`))
	if !errors.Is(err, ErrOperationFailed) {
		t.Errorf("expected ErrOperationFailed, got %v", err)
	}
}

func TestEnvelopeMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`[]`,
		`{}`,
		`{"success":"yes"}`,
	}
	for _, c := range cases {
		if _, err := envelope([]byte(c)); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("envelope(%q) = %v, want ErrMalformedEnvelope", c, err)
		}
	}
}

func TestDecodeMarketsFiltersInactive(t *testing.T) {
	payload := `{"success":true,"result":[
		{"MarketName":"BTC-LTC","IsActive":true,"Created":"2014-02-13T00:00:00"},
		{"MarketName":"BTC-DOGE","IsActive":false,"Created":"2014-02-13T00:00:00"},
		{"MarketName":"BTC-VTC","IsActive":true,"Created":"2014-08-19T07:57:56.893"}
	]}`
	res, err := decodeMarkets([]byte(payload))
	if err != nil {
		t.Fatalf("decodeMarkets failed: %v", err)
	}
	if len(res.Markets) != 2 {
		t.Fatalf("expected 2 active markets, got %d", len(res.Markets))
	}
	if res.Markets[0].Name != "BTC-LTC" || res.Markets[1].Name != "BTC-VTC" {
		t.Errorf("unexpected markets: %+v", res.Markets)
	}
	if res.Markets[0].Created.IsZero() {
		t.Error("created timestamp not parsed")
	}
	if res.Markets[0].URL == "" {
		t.Error("display URL not populated")
	}
}

func TestDecodeSellBookSorted(t *testing.T) {
	payload := `{"success":true,"result":[
		{"Quantity":3.0,"Rate":0.00000012},
		{"Quantity":5.0,"Rate":0.00000010},
		{"Quantity":7.0,"Rate":0.00000011}
	]}`
	res, err := decodeSellBook([]byte(payload))
	if err != nil {
		t.Fatalf("decodeSellBook failed: %v", err)
	}
	if len(res.Book) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(res.Book))
	}
	for i := 1; i < len(res.Book); i++ {
		if res.Book[i].Rate < res.Book[i-1].Rate {
			t.Fatalf("book not sorted ascending: %+v", res.Book)
		}
	}
	if res.Book[0].Rate != 10 || res.Book[0].Quantity != 500000000 {
		t.Errorf("unexpected best level: %+v", res.Book[0])
	}
}

func TestDecodeOpenOrdersOrderTypes(t *testing.T) {
	payload := `{"success":true,"result":[
		{"OrderUuid":"a","OrderType":"LIMIT_SELL","Quantity":"5.00000000","QuantityRemaining":"5.00000000","Limit":"2.00000000","CommissionPaid":0,"Price":0,"Opened":"2014-07-09T03:55:48.77","Closed":null},
		{"OrderUuid":"b","OrderType":"MARKET_BUY","Quantity":1,"QuantityRemaining":1,"Limit":0,"CommissionPaid":0,"Price":0,"Opened":null,"Closed":null}
	]}`
	res, err := decodeOpenOrders([]byte(payload))
	if err != nil {
		t.Fatalf("decodeOpenOrders failed: %v", err)
	}
	if len(res.OpenOrders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(res.OpenOrders))
	}
	if res.OpenOrders[0].Type != models.OrderTypeLimitSell {
		t.Errorf("unexpected type: %v", res.OpenOrders[0].Type)
	}
	// Unknown sides are tagged, never dropped.
	if res.OpenOrders[1].Type != models.OrderTypeUnknown {
		t.Errorf("unexpected type for unknown side: %v", res.OpenOrders[1].Type)
	}
	want, _ := amount.Parse("5.00000000")
	if res.OpenOrders[0].Quantity != want {
		t.Errorf("quantity = %v, want %v", res.OpenOrders[0].Quantity, want)
	}
}

func TestDecodePlaceOrder(t *testing.T) {
	res, err := decodePlaceOrder([]byte(`{"success":true,"result":{"uuid":"09aa5bb6-8232-41aa-9b78-a5a1093e0211"}}`))
	if err != nil {
		t.Fatalf("decodePlaceOrder failed: %v", err)
	}
	if res.Placed.UUID != "09aa5bb6-8232-41aa-9b78-a5a1093e0211" {
		t.Errorf("unexpected uuid: %q", res.Placed.UUID)
	}
}

func TestDecodeGetOrder(t *testing.T) {
	payload := `{"success":true,"result":{
		"OrderUuid":"0cb4c4e4-bdc7-4e13-8c13-430e587d2cc1",
		"Exchange":"BTC-SHLD",
		"Type":"LIMIT_SELL",
		"Quantity":1000.00000000,
		"QuantityRemaining":500.00000000,
		"Limit":0.00000001,
		"Reserved":0.00001000,
		"ReserveRemaining":0.00001000,
		"CommissionReserved":0.00000002,
		"CommissionReserveRemaining":0.00000002,
		"CommissionPaid":0,
		"Price":0,
		"Opened":"2014-07-13T07:45:46.27",
		"Closed":null,
		"IsOpen":true,
		"CancelInitiated":false
	}}`
	res, err := decodeGetOrder([]byte(payload))
	if err != nil {
		t.Fatalf("decodeGetOrder failed: %v", err)
	}
	o := res.Order
	if o.OrderUUID != "0cb4c4e4-bdc7-4e13-8c13-430e587d2cc1" {
		t.Errorf("unexpected uuid: %q", o.OrderUUID)
	}
	if o.Type != models.OrderTypeLimitSell {
		t.Errorf("unexpected type: %v", o.Type)
	}
	if !o.IsOpen || o.CancelInitiated {
		t.Errorf("unexpected flags: %+v", o)
	}
	if o.QuantityRemaining != amount.FromInt(500) {
		t.Errorf("remaining = %v, want %v", o.QuantityRemaining, amount.FromInt(500))
	}
	if !o.Closed.IsZero() {
		t.Error("null closed timestamp should be zero")
	}
}

func TestDecodeBalance(t *testing.T) {
	payload := `{"success":true,"result":{"Currency":"BTC","Balance":4.21549076,"Available":4.21549076,"Pending":0}}`
	res, err := decodeBalance([]byte(payload))
	if err != nil {
		t.Fatalf("decodeBalance failed: %v", err)
	}
	if res.Balance.Currency != "BTC" {
		t.Errorf("unexpected currency: %q", res.Balance.Currency)
	}
	if res.Balance.Available.String() != "4.21549076" {
		t.Errorf("available = %s", res.Balance.Available)
	}
}

func TestDecodeCancelOrder(t *testing.T) {
	if _, err := decodeCancelOrder([]byte(`{"success":true,"result":null}`)); err != nil {
		t.Fatalf("decodeCancelOrder failed: %v", err)
	}
	_, err := decodeCancelOrder([]byte(`{"success":false,"message":"ORDER_NOT_OPEN"}`))
	if err == nil || err.Error() != "ORDER_NOT_OPEN" {
		t.Errorf("expected verbatim business error, got %v", err)
	}
}

func TestDescriptorURL(t *testing.T) {
	for _, d := range Descriptors("https://example.com/api/v1.1") {
		url := d.URL("LTC")
		if d.NeedsArg && url == d.URLTemplate {
			t.Errorf("%s: argument not substituted", d.Endpoint)
		}
		if !d.NeedsArg && url != d.URLTemplate {
			t.Errorf("%s: URL changed without argument slot", d.Endpoint)
		}
	}
}
