// Package bot implements the trading engine: an event-driven state machine
// that watches the poller's updates, keeps at most one resting limit sell
// order on the selected market, undercuts the best competing ask by one price
// increment and stops once the cumulative sell budget is spent.
package bot

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"sellflow/amount"
	"sellflow/config"
	"sellflow/exchange"
	"sellflow/logger"
	"sellflow/models"
	"sellflow/scheduler"
)

// btcPairPrefix selects the markets the bot can trade on; the market code
// shown to the user is the pair name with this prefix stripped.
const btcPairPrefix = "BTC-"

// Poller is the scheduler surface the engine depends on.
type Poller interface {
	Events() <-chan scheduler.Event
	Submit(scheduler.Request)
	SelectMarket(code string)
	SetRunning(active bool)
	FirstResponse(ep exchange.Endpoint) bool
	Result(ep exchange.Endpoint) (exchange.Result, bool)
}

type intentKind int

const (
	intentSelectMarket intentKind = iota
	intentToggleTrading
	intentStopTrading
)

type intent struct {
	kind   intentKind
	market string
	reply  chan error
}

// Engine drives the Idle/Running trading state machine. All mutable trading
// state lives on the event loop goroutine; user intents are marshaled onto it
// through the intents channel.
type Engine struct {
	cfg     config.TradingConfig
	poller  Poller
	display *Display
	rng     *rand.Rand

	// event-loop state, touched only from run()
	running        bool
	market         string
	orderID        string
	orderRate      amount.Amount
	orderQuantity  amount.Amount
	orderRemaining amount.Amount
	pending        exchange.Endpoint
	orderLimit     amount.Amount
	sellLimit      amount.Amount

	intents chan intent

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	log *logger.Entry
}

// NewEngine builds an engine over the poller and display sink. The order
// limit and sell budget come from the trading configuration.
func NewEngine(cfg config.TradingConfig, poller Poller, display *Display) (*Engine, error) {
	orderLimit, err := cfg.OrderLimitAmount()
	if err != nil {
		return nil, fmt.Errorf("invalid order limit: %w", err)
	}
	sellLimit, err := cfg.SellLimitAmount()
	if err != nil {
		return nil, fmt.Errorf("invalid sell limit: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		poller:     poller,
		display:    display,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		pending:    exchange.EndpointUnknown,
		orderLimit: orderLimit,
		sellLimit:  sellLimit,
		intents:    make(chan intent),
		log:        logger.GetLogger().WithComponent("bot"),
	}
	display.SetSellLimit(sellLimit)
	return e, nil
}

// Start launches the event loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}
	e.started = true

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.run()

	e.log.WithFields(logger.Fields{
		"order_limit": e.orderLimit.String(),
		"sell_limit":  e.sellLimit.String(),
		"deviation":   e.cfg.DeviationPercent,
	}).Info("engine started")
	return nil
}

// Stop shuts the event loop down. A live trading session is stopped first so
// the resting order gets its cancel issued.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.started = false

	done := make(chan error, 1)
	select {
	case e.intents <- intent{kind: intentStopTrading, reply: done}:
		<-done
	case <-e.ctx.Done():
	}

	e.cancel()
	e.wg.Wait()
	e.log.Info("engine stopped")
}

// SelectMarket installs the market the bot trades on. Rejected while trading
// is running: the market cannot change under a live order.
func (e *Engine) SelectMarket(code string) error {
	return e.sendIntent(intent{kind: intentSelectMarket, market: code})
}

// ToggleTrading flips between Idle and Running.
func (e *Engine) ToggleTrading() error {
	return e.sendIntent(intent{kind: intentToggleTrading})
}

func (e *Engine) sendIntent(in intent) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine not started")
	}
	ctx := e.ctx
	e.mu.Unlock()

	in.reply = make(chan error, 1)
	select {
	case e.intents <- in:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-in.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case in := <-e.intents:
			in.reply <- e.handleIntent(in)
		case ev := <-e.poller.Events():
			e.handleEvent(ev)
		}
	}
}

func (e *Engine) handleIntent(in intent) error {
	switch in.kind {
	case intentSelectMarket:
		return e.selectMarket(in.market)
	case intentToggleTrading:
		if e.running {
			e.stopTrading()
			return nil
		}
		return e.startTrading()
	case intentStopTrading:
		e.stopTrading()
		return nil
	default:
		return fmt.Errorf("unknown intent %d", in.kind)
	}
}

func (e *Engine) selectMarket(code string) error {
	if e.running {
		return fmt.Errorf("cannot change market while trading is running")
	}
	e.market = code
	e.poller.SelectMarket(code)
	e.display.SetMarket(code)
	e.log.WithFields(logger.Fields{"market": code}).Info("market selected")
	return nil
}

func (e *Engine) startTrading() error {
	if e.market == "" {
		return fmt.Errorf("no market selected")
	}
	if e.orderID != "" {
		return fmt.Errorf("order %s still tracked, cancel it before trading again", e.orderID)
	}
	e.running = true
	e.poller.SetRunning(true)
	e.display.SetRunning(true)
	e.display.Log(">>>>> Start trading on market: %s", e.market)
	e.log.WithFields(logger.Fields{"market": e.market}).Info("trading started")
	return nil
}

// stopTrading leaves Running. A tracked order gets a cancel issued first;
// the transition does not wait for the cancel to confirm.
func (e *Engine) stopTrading() {
	if !e.running {
		return
	}
	if e.orderID != "" {
		e.cancelOrder(e.orderID)
	}
	e.running = false
	e.poller.SetRunning(false)
	e.display.SetRunning(false)
	e.display.Log("<<<<< Stop trading on market: %s", e.market)
	e.log.WithFields(logger.Fields{"market": e.market}).Info("trading stopped")
}

func (e *Engine) handleEvent(ev scheduler.Event) {
	switch ev.Kind {
	case scheduler.EventUpdated:
		e.handleUpdated(ev.Endpoint)
	case scheduler.EventError:
		e.handleError(ev.Endpoint, ev.Err)
	case scheduler.EventBatchComplete:
		e.handleBatchComplete()
	}
}

func (e *Engine) handleUpdated(ep exchange.Endpoint) {
	if e.pending == ep {
		e.pending = exchange.EndpointUnknown
	}

	switch ep {
	case exchange.EndpointMarkets:
		e.updateMarketList()
	case exchange.EndpointBalance:
		if res, ok := e.poller.Result(ep); ok {
			e.display.SetMarketBalance(res.Balance.Available)
		}
	case exchange.EndpointBalanceBTC:
		if res, ok := e.poller.Result(ep); ok {
			e.display.SetBTCBalance(res.Balance.Available)
		}
	case exchange.EndpointPlaceOrder:
		e.handlePlaced()
	case exchange.EndpointGetOrder:
		e.handleOrderDetail()
	case exchange.EndpointCancelOrder:
		// The cancel confirmation clears the tracked order even when the
		// engine already went Idle (the fire-and-forget shutdown cancel).
		if e.orderID != "" {
			e.display.Log("Order canceled id=%s", e.orderID)
		}
		e.orderID = ""
		e.display.ClearOrder()
		logger.IncrementOrderCancelled()
	}
}

func (e *Engine) handleError(ep exchange.Endpoint, err error) {
	if e.pending == ep {
		e.pending = exchange.EndpointUnknown
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	e.display.Log("Error %s (%s)", msg, ep.String())
	e.log.WithError(err).WithFields(logger.Fields{"endpoint": ep.String()}).Warn("endpoint error")

	if ep == exchange.EndpointGetOrder {
		// The tracked id could not be confirmed; drop it rather than act on
		// stale fill state.
		e.orderID = ""
		e.display.ClearOrder()
	}

	if msg == "INSUFFICIENT_FUNDS" || msg == "APIKEY_INVALID" {
		e.stopTrading()
	}
}

// handleBatchComplete runs the per-cycle trading decision once both the sell
// book and the open-orders list have produced at least one response for the
// selected market.
func (e *Engine) handleBatchComplete() {
	if !e.running {
		return
	}
	if !e.poller.FirstResponse(exchange.EndpointSellBook) ||
		!e.poller.FirstResponse(exchange.EndpointOpenOrders) {
		return
	}

	e.reconcileOpenOrder()

	if e.orderID != "" || e.pending != exchange.EndpointUnknown {
		return
	}

	// The stop guard is on the placement rate, not the raw best ask: a
	// competing ask of exactly one increment leaves no room to undercut.
	ask := e.bestCompetingAsk() - 1
	if ask <= 0 {
		e.display.Log("No good orders found for price calculation.")
		e.stopTrading()
		return
	}
	e.placeOrder(ask)
}

// reconcileOpenOrder keeps the tracked order in sync with the exchange: an
// exchange-side limit sell is adopted via get-order, otherwise the tracked id
// (if any) is re-fetched for fill reconciliation.
func (e *Engine) reconcileOpenOrder() {
	if e.pending != exchange.EndpointUnknown {
		return
	}
	if res, ok := e.poller.Result(exchange.EndpointOpenOrders); ok {
		for _, o := range res.OpenOrders {
			if o.Type == models.OrderTypeLimitSell {
				e.requestOrder(o.OrderUUID)
				return
			}
		}
	}
	if e.orderID != "" {
		e.requestOrder(e.orderID)
	}
}

// bestCompetingAsk scans the ascending sell book and returns the first rate
// that does not belong to the engine's own resting order. Ownership is
// recognized by value equality on (quantity, rate): the public book does not
// expose order ids. Returns 0 when no competing level exists.
func (e *Engine) bestCompetingAsk() amount.Amount {
	res, ok := e.poller.Result(exchange.EndpointSellBook)
	if !ok {
		return 0
	}
	for _, level := range res.Book {
		if level.Quantity == e.orderQuantity && level.Rate == e.orderRate {
			continue
		}
		return level.Rate
	}
	return 0
}

// placeOrder submits a limit sell at the given ask. The order size is the
// configured limit randomly inflated by 0 to deviation-1 percent so repeated
// orders do not advertise an obvious bot signature.
func (e *Engine) placeOrder(ask amount.Amount) {
	size := e.orderLimit
	if e.cfg.DeviationPercent > 0 {
		dev := e.rng.Intn(e.cfg.DeviationPercent)
		size += amount.Amount(float64(size) * float64(dev) / 100.0)
	}
	quantity, err := amount.Div(size, ask)
	if err != nil {
		e.log.WithError(err).Error("failed to compute order quantity")
		return
	}

	e.orderQuantity = quantity
	e.orderRemaining = quantity
	e.orderRate = ask

	e.display.Log("Placing order with ask=%s", ask.String())
	e.poller.Submit(scheduler.Request{
		Endpoint: exchange.EndpointPlaceOrder,
		Params: map[string]string{
			"quantity": quantity.String(),
			"rate":     ask.String(),
		},
	})
	e.pending = exchange.EndpointPlaceOrder
}

func (e *Engine) cancelOrder(id string) {
	e.display.Log("Canceling order id=%s", id)
	e.poller.Submit(scheduler.Request{
		Endpoint: exchange.EndpointCancelOrder,
		Params:   map[string]string{"uuid": id},
	})
	e.pending = exchange.EndpointCancelOrder
}

func (e *Engine) requestOrder(id string) {
	e.poller.Submit(scheduler.Request{
		Endpoint: exchange.EndpointGetOrder,
		Params:   map[string]string{"uuid": id},
	})
	e.pending = exchange.EndpointGetOrder
}

func (e *Engine) handlePlaced() {
	res, ok := e.poller.Result(exchange.EndpointPlaceOrder)
	if !ok {
		return
	}
	if !e.running {
		// Too late: the engine went Idle while the place call was in flight.
		// The order stays on the exchange and is adopted from the open-orders
		// list on the next start.
		e.log.WithFields(logger.Fields{"uuid": res.Placed.UUID}).Warn("order placed after stop, leaving untracked")
		return
	}
	e.orderID = res.Placed.UUID
	e.display.SetOrder(e.orderRate, e.orderRemaining)
	logger.IncrementOrderPlaced()
	e.log.WithFields(logger.Fields{
		"uuid": e.orderID,
		"rate": e.orderRate.String(),
	}).Info("order placed")
}

// handleOrderDetail reconciles a get-order response: accounts fills against
// the sell budget, clears closed orders and cancels the order when a
// competitor undercuts its rate.
func (e *Engine) handleOrderDetail() {
	res, ok := e.poller.Result(exchange.EndpointGetOrder)
	if !ok {
		return
	}
	order := res.Order
	if !e.running {
		return
	}

	if e.orderID == order.OrderUUID {
		delta := e.orderRemaining - order.QuantityRemaining
		if delta > 0 {
			proceeds := amount.Mul(delta, e.orderRate)
			e.display.Log("Sell %s %s (%s BTC)", delta.String(), e.market, proceeds.String())
			e.sellLimit -= proceeds
			if e.sellLimit <= 0 {
				e.sellLimit = 0
				e.display.Log("Total BTC limit reached.")
				e.stopTrading()
			}
			e.display.SetSellLimit(e.sellLimit)
		}
		e.orderRemaining = order.QuantityRemaining
	}

	if !order.IsOpen || order.CancelInitiated {
		e.orderID = ""
		e.display.ClearOrder()
		return
	}

	e.orderID = order.OrderUUID
	e.orderQuantity = order.Quantity
	e.orderRate = order.Limit
	e.orderRemaining = order.QuantityRemaining
	e.display.SetOrder(e.orderRate, e.orderRemaining)

	if e.pending != exchange.EndpointUnknown {
		return
	}
	minAsk := e.bestCompetingAsk()
	if minAsk > 0 && minAsk <= e.orderRate {
		e.display.Log("Canceling order (found Ask %s) id=%s", minAsk.String(), e.orderID)
		e.cancelOrder(e.orderID)
	}
}

// updateMarketList publishes the tradable market codes (BTC pairs, prefix
// stripped, sorted) to the display.
func (e *Engine) updateMarketList() {
	res, ok := e.poller.Result(exchange.EndpointMarkets)
	if !ok {
		return
	}
	codes := make([]string, 0, len(res.Markets))
	for _, m := range res.Markets {
		if strings.HasPrefix(m.Name, btcPairPrefix) {
			codes = append(codes, strings.TrimPrefix(m.Name, btcPairPrefix))
		}
	}
	sort.Strings(codes)
	e.display.SetMarkets(codes)
}
