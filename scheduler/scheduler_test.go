package scheduler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"sellflow/config"
	"sellflow/exchange"
)

const baseURL = "https://bittrex.com/api/v1.1"

type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]string // URL substring -> payload
	calls     []string
}

func (f *fakeTransport) Get(_ context.Context, url string, _ http.Header) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	for sub, payload := range f.responses {
		if strings.Contains(url, sub) {
			return []byte(payload), nil
		}
	}
	return nil, errors.New("no canned response")
}

func (f *fakeTransport) callCount(sub string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.calls {
		if strings.Contains(u, sub) {
			n++
		}
	}
	return n
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func newTestPoller(t *testing.T, tr Transport) *Poller {
	t.Helper()
	cfg := config.PollerConfig{IdleDelay: 3 * time.Second, EventBuffer: 64}
	signer := exchange.NewSigner(exchange.Credentials{Key: "key", Secret: "secret"})
	return NewPoller(cfg, baseURL, tr, signer, &fakeClock{now: time.Unix(1500000000, 0)})
}

func drainEvents(p *Poller) []Event {
	var events []Event
	for {
		select {
		case ev := <-p.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

const marketsPayload = `{"success":true,"result":[
  {"MarketName":"BTC-LTC","IsActive":true,"Created":"2014-02-13T00:00:00"},
  {"MarketName":"BTC-DOGE","IsActive":false,"Created":"2014-02-13T00:00:00"}
]}`

func TestCycleFetchesAlwaysEndpoints(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{"getmarkets": marketsPayload}}
	p := newTestPoller(t, tr)

	p.cycle(context.Background())

	if n := tr.callCount("getmarkets"); n != 1 {
		t.Fatalf("expected one markets fetch, got %d", n)
	}

	res, ok := p.Result(exchange.EndpointMarkets)
	if !ok {
		t.Fatal("markets result not stored")
	}
	if len(res.Markets) != 1 || res.Markets[0].Name != "BTC-LTC" {
		t.Fatalf("unexpected markets result: %+v", res.Markets)
	}
	if !p.FirstResponse(exchange.EndpointMarkets) {
		t.Error("expected first-response flag after successful update")
	}

	events := drainEvents(p)
	if len(events) != 2 {
		t.Fatalf("expected updated+batch events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventUpdated || events[0].Endpoint != exchange.EndpointMarkets {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != EventBatchComplete {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestOneShotDispatchedOnce(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{
		"getmarkets": marketsPayload,
		"getorder?": `{"success":true,"result":{"OrderUuid":"abc","Type":"LIMIT_SELL","IsOpen":true,
		  "Quantity":1.0,"QuantityRemaining":1.0,"Limit":0.001,"Reserved":0,"ReserveRemaining":0,
		  "CommissionReserved":0,"CommissionReserveRemaining":0,"CommissionPaid":0,"Price":0}}`,
	}}
	p := newTestPoller(t, tr)

	p.Submit(Request{Endpoint: exchange.EndpointGetOrder, Params: map[string]string{"uuid": "abc"}})
	p.cycle(context.Background())

	if n := tr.callCount("getorder?"); n != 1 {
		t.Fatalf("expected one get-order fetch, got %d", n)
	}
	res, ok := p.Result(exchange.EndpointGetOrder)
	if !ok || res.Order.OrderUUID != "abc" {
		t.Fatalf("unexpected get-order result: %+v", res.Order)
	}

	call := tr.calls[len(tr.calls)-1]
	found := false
	for _, c := range tr.calls {
		if strings.Contains(c, "uuid=abc") {
			found = true
		}
	}
	if !found {
		t.Errorf("uuid parameter missing from request URL: %v", call)
	}

	// The queue must be drained; the next cycle repeats only auto endpoints.
	p.cycle(context.Background())
	if n := tr.callCount("getorder?"); n != 1 {
		t.Fatalf("one-shot re-dispatched: %d fetches", n)
	}
}

func TestSelectMarketTogglesEndpoints(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{"getmarkets": marketsPayload}}
	p := newTestPoller(t, tr)

	if p.Enabled(exchange.EndpointSellBook) {
		t.Fatal("sell book polled before market selection")
	}

	p.SelectMarket("LTC")
	if p.Enabled(exchange.EndpointSellBook) {
		t.Error("running-policy endpoint enabled without trading")
	}

	p.SetRunning(true)
	if !p.Enabled(exchange.EndpointSellBook) || !p.Enabled(exchange.EndpointOpenOrders) {
		t.Error("running-policy endpoints not enabled")
	}
	if !p.Enabled(exchange.EndpointBalanceBTC) {
		t.Error("BTC balance endpoint not enabled while running")
	}

	p.SetRunning(false)
	if p.Enabled(exchange.EndpointSellBook) {
		t.Error("running-policy endpoint still enabled after stop")
	}

	p.SelectMarket("")
	if p.Market() != "" {
		t.Errorf("expected cleared market, got %q", p.Market())
	}
}

func TestSelectMarketResetsFirstResponse(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{
		"getmarkets":   marketsPayload,
		"getorderbook": `{"success":true,"result":[{"Quantity":1.0,"Rate":0.002}]}`,
		"getopenorders": `{"success":true,"result":[]}`,
		"currency=LTC": `{"success":true,"result":{"Currency":"LTC","Balance":1.0,"Available":1.0,"Pending":0}}`,
		"currency=BTC": `{"success":true,"result":{"Currency":"BTC","Balance":1.0,"Available":1.0,"Pending":0}}`,
	}}
	p := newTestPoller(t, tr)

	p.SelectMarket("LTC")
	p.SetRunning(true)
	p.cycle(context.Background())

	if !p.FirstResponse(exchange.EndpointSellBook) {
		t.Fatal("expected sell book first response after cycle")
	}

	p.SelectMarket("DOGE")
	if p.FirstResponse(exchange.EndpointSellBook) {
		t.Error("first-response flag survived market switch")
	}
}

func TestBusinessErrorEvent(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{
		"getmarkets": `{"success":false,"message":"APIKEY_INVALID"}`,
	}}
	p := newTestPoller(t, tr)

	p.cycle(context.Background())

	events := drainEvents(p)
	if len(events) != 2 {
		t.Fatalf("expected error+batch events, got %+v", events)
	}
	if events[0].Kind != EventError || events[0].Endpoint != exchange.EndpointMarkets {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].Err == nil || events[0].Err.Error() != "APIKEY_INVALID" {
		t.Errorf("expected verbatim exchange message, got %v", events[0].Err)
	}
	if p.FirstResponse(exchange.EndpointMarkets) {
		t.Error("first-response flag set on error")
	}
}

func TestEmptyCycleEmitsNothing(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{"getmarkets": marketsPayload}}
	p := newTestPoller(t, tr)

	p.mu.Lock()
	p.regs[exchange.EndpointMarkets].enabled = false
	p.mu.Unlock()

	p.cycle(context.Background())
	if events := drainEvents(p); len(events) != 0 {
		t.Fatalf("expected no events for empty batch, got %+v", events)
	}
}

func TestStartStop(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{"getmarkets": marketsPayload}}
	p := newTestPoller(t, tr)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Error("expected error starting twice")
	}
	p.Stop()
	// Stop is idempotent.
	p.Stop()
}
