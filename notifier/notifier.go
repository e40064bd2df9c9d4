// Package notifier watches the exchange market list and reports newly listed
// markets. It polls independently of the trading engine so notifications keep
// flowing while the bot is idle.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sellflow/config"
	"sellflow/exchange"
	"sellflow/logger"
	"sellflow/models"
	"sellflow/scheduler"
)

// Listing is one newly discovered market.
type Listing struct {
	Name    string
	Created time.Time
	URL     string
}

// Notifier polls the market list on its own schedule and diffs it against
// the set of already known market names. The first successful poll only seeds
// the known set; notifications start with the second.
type Notifier struct {
	cfg       config.NotifierConfig
	desc      exchange.Descriptor
	transport scheduler.Transport
	clock     scheduler.Clock
	onNew     func(Listing)

	mu       sync.Mutex
	known    map[string]struct{}
	listings []Listing
	seeded   bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runMu   sync.Mutex
	running bool

	log *logger.Entry
}

// New builds a notifier polling the market list at baseURL. onNew may be nil;
// discovered listings are always retained and logged.
func New(cfg config.NotifierConfig, baseURL string, transport scheduler.Transport, clock scheduler.Clock, onNew func(Listing)) *Notifier {
	var desc exchange.Descriptor
	for _, d := range exchange.Descriptors(baseURL) {
		if d.Endpoint == exchange.EndpointMarkets {
			desc = d
			break
		}
	}

	return &Notifier{
		cfg:       cfg,
		desc:      desc,
		transport: transport,
		clock:     clock,
		onNew:     onNew,
		known:     make(map[string]struct{}),
		log:       logger.GetLogger().WithComponent("notifier"),
	}
}

// Start launches the poll loop. It is a no-op error when already running.
func (n *Notifier) Start(ctx context.Context) error {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.running {
		return fmt.Errorf("notifier already running")
	}
	n.running = true

	n.ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)
	go n.run()

	n.log.WithFields(logger.Fields{"interval": n.cfg.Interval}).Info("notifier started")
	return nil
}

// Stop cancels the poll loop and waits for it to exit.
func (n *Notifier) Stop() {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if !n.running {
		return
	}
	n.running = false
	n.cancel()
	n.wg.Wait()
	n.log.Info("notifier stopped")
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for {
		n.poll(n.ctx)
		select {
		case <-n.ctx.Done():
			return
		case <-n.clock.After(n.cfg.Interval):
		}
	}
}

func (n *Notifier) poll(ctx context.Context) {
	body, err := n.transport.Get(ctx, n.desc.URL(""), nil)
	if err != nil {
		n.log.WithError(err).Warn("market list fetch failed")
		return
	}
	res, err := n.desc.Decode(body)
	if err != nil {
		n.log.WithError(err).Warn("market list decode failed")
		return
	}
	n.process(res.Markets)
}

// process diffs the market list against the known set and notifies about
// names seen for the first time after seeding.
func (n *Notifier) process(markets []models.Market) {
	n.mu.Lock()
	var fresh []Listing
	for _, m := range markets {
		if _, ok := n.known[m.Name]; ok {
			continue
		}
		n.known[m.Name] = struct{}{}
		if n.seeded {
			l := Listing{Name: m.Name, Created: m.Created, URL: m.URL}
			n.listings = append(n.listings, l)
			fresh = append(fresh, l)
		}
	}
	n.seeded = true
	onNew := n.onNew
	n.mu.Unlock()

	for _, l := range fresh {
		n.log.WithFields(logger.Fields{"market": l.Name, "url": l.URL}).Info("new market listed")
		if onNew != nil {
			onNew(l)
		}
	}
}

// Listings returns a copy of every market discovered since seeding.
func (n *Notifier) Listings() []Listing {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Listing, len(n.listings))
	copy(out, n.listings)
	return out
}
