// Package scheduler polls the exchange API endpoints in cycles: every
// registered endpoint that is due under its auto-update policy, plus any
// queued one-shot requests, are fetched in parallel, decoded and published as
// events on a single channel.
package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"sellflow/config"
	"sellflow/exchange"
	"sellflow/logger"
)

// EventKind distinguishes poller events.
type EventKind int

const (
	// EventUpdated: the endpoint's result slot holds fresh data.
	EventUpdated EventKind = iota
	// EventError: the fetch or decode failed; Err carries the cause.
	EventError
	// EventBatchComplete: all requests of the current cycle have finished.
	EventBatchComplete
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventError:
		return "error"
	case EventBatchComplete:
		return "batch_complete"
	default:
		return "unknown"
	}
}

// Event is published on the poller's event channel. Endpoint is unset for
// EventBatchComplete.
type Event struct {
	Kind     EventKind
	Endpoint exchange.Endpoint
	Err      error
}

// Request is a one-shot poll of an endpoint, dispatched with the next cycle
// and then forgotten. Params are appended to the endpoint URL as query
// parameters.
type Request struct {
	Endpoint exchange.Endpoint
	Params   map[string]string
}

type registration struct {
	desc          exchange.Descriptor
	enabled       bool
	firstResponse bool
}

type job struct {
	endpoint exchange.Endpoint
	url      string
	signed   bool
	decode   func([]byte) (exchange.Result, error)
}

type outcome struct {
	endpoint exchange.Endpoint
	result   exchange.Result
	size     int
	err      error
}

// Poller owns the endpoint registry and the poll loop. All mutable state is
// guarded by mu; the loop itself runs on a single goroutine.
type Poller struct {
	cfg       config.PollerConfig
	transport Transport
	signer    *exchange.Signer
	clock     Clock

	events chan Event

	mu      sync.Mutex
	regs    map[exchange.Endpoint]*registration
	queue   []Request
	results map[exchange.Endpoint]exchange.Result
	market  string
	active  bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex

	log *logger.Entry
}

// NewPoller builds a poller over the endpoint registry for baseURL.
func NewPoller(cfg config.PollerConfig, baseURL string, transport Transport, signer *exchange.Signer, clock Clock) *Poller {
	regs := make(map[exchange.Endpoint]*registration)
	for _, desc := range exchange.Descriptors(baseURL) {
		regs[desc.Endpoint] = &registration{
			desc:    desc,
			enabled: desc.Policy == exchange.UpdateAlways,
		}
	}

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}

	return &Poller{
		cfg:       cfg,
		transport: transport,
		signer:    signer,
		clock:     clock,
		events:    make(chan Event, buffer),
		regs:      regs,
		results:   make(map[exchange.Endpoint]exchange.Result),
		log:       logger.GetLogger().WithComponent("poller"),
	}
}

// Events returns the poller's event channel.
func (p *Poller) Events() <-chan Event {
	return p.events
}

// Start launches the poll loop.
func (p *Poller) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return fmt.Errorf("poller already running")
	}
	p.running = true

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run()

	p.log.WithFields(logger.Fields{
		"idle_delay": p.cfg.IdleDelay,
		"endpoints":  len(p.regs),
	}).Info("poller started")
	return nil
}

// Stop cancels the poll loop and waits for it to exit.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.cancel()
	p.wg.Wait()
	p.log.Info("poller stopped")
}

func (p *Poller) run() {
	defer p.wg.Done()
	for {
		p.cycle(p.ctx)
		select {
		case <-p.ctx.Done():
			return
		case <-p.clock.After(p.cfg.IdleDelay):
		}
	}
}

// Submit queues a one-shot request for the next cycle.
func (p *Poller) Submit(req Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, req)
}

// SelectMarket installs the market code used by endpoints whose URL takes an
// argument and resets their first-response flags. An empty code deselects the
// market and disables every argument-taking endpoint.
func (p *Poller) SelectMarket(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.market = code
	for _, reg := range p.regs {
		if !p.argDependent(reg) {
			continue
		}
		reg.firstResponse = false
		switch reg.desc.Policy {
		case exchange.UpdateMarketSelected:
			reg.enabled = code != ""
		case exchange.UpdateRunning:
			reg.enabled = code != "" && p.active
		default:
			if code == "" {
				reg.enabled = false
			}
		}
	}
}

// argDependent reports whether a registration's polling depends on the
// selected market. The BTC balance endpoint has a fixed URL but is still
// only meaningful alongside a market, so it resets with the rest.
func (p *Poller) argDependent(reg *registration) bool {
	return reg.desc.NeedsArg || reg.desc.Endpoint == exchange.EndpointBalanceBTC
}

// SetRunning toggles the endpoints polled only while trading is active.
func (p *Poller) SetRunning(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = active
	for _, reg := range p.regs {
		if reg.desc.Policy != exchange.UpdateRunning {
			continue
		}
		if reg.desc.NeedsArg && p.market == "" {
			reg.enabled = false
			continue
		}
		reg.enabled = active
	}
}

// Market returns the currently selected market code.
func (p *Poller) Market() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.market
}

// FirstResponse reports whether the endpoint has delivered at least one
// successful update since the last market selection.
func (p *Poller) FirstResponse(ep exchange.Endpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reg, ok := p.regs[ep]; ok {
		return reg.firstResponse
	}
	return false
}

// Enabled reports whether the endpoint is currently auto-polled.
func (p *Poller) Enabled(ep exchange.Endpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reg, ok := p.regs[ep]; ok {
		return reg.enabled
	}
	return false
}

// cycle runs one poll batch: drain the one-shot queue, snapshot the enabled
// endpoints, fetch everything in parallel and publish the per-endpoint events
// followed by a batch-complete marker.
func (p *Poller) cycle(ctx context.Context) {
	jobs := p.collect()
	if len(jobs) == 0 {
		return
	}

	outcomes := make(chan outcome, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			outcomes <- p.fetch(ctx, j)
		}(j)
	}
	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		p.handle(o)
	}

	logger.IncrementPollBatch()
	p.emit(Event{Kind: EventBatchComplete})
}

// collect builds the jobs for one cycle under the registry lock.
func (p *Poller) collect() []job {
	p.mu.Lock()
	defer p.mu.Unlock()

	var jobs []job

	queued := p.queue
	p.queue = nil
	for _, req := range queued {
		reg, ok := p.regs[req.Endpoint]
		if !ok {
			continue
		}
		u, err := buildURL(reg.desc.URL(p.market), req.Params)
		if err != nil {
			p.log.WithError(err).WithFields(logger.Fields{"endpoint": req.Endpoint.String()}).Error("failed to build request URL")
			continue
		}
		jobs = append(jobs, job{
			endpoint: reg.desc.Endpoint,
			url:      u,
			signed:   reg.desc.Signed,
			decode:   reg.desc.Decode,
		})
	}

	for _, reg := range p.regs {
		if !reg.enabled {
			continue
		}
		if reg.desc.NeedsArg && p.market == "" {
			continue
		}
		jobs = append(jobs, job{
			endpoint: reg.desc.Endpoint,
			url:      reg.desc.URL(p.market),
			signed:   reg.desc.Signed,
			decode:   reg.desc.Decode,
		})
	}

	return jobs
}

func (p *Poller) fetch(ctx context.Context, j job) outcome {
	u := j.url
	var header http.Header
	if j.signed {
		signed, h, err := p.signer.Sign(u)
		if err != nil {
			return outcome{endpoint: j.endpoint, err: fmt.Errorf("failed to sign request: %w", err)}
		}
		u = signed
		header = h
	}

	body, err := p.transport.Get(ctx, u, header)
	if err != nil {
		return outcome{endpoint: j.endpoint, err: err}
	}

	result, err := j.decode(body)
	if err != nil {
		return outcome{endpoint: j.endpoint, err: err}
	}
	return outcome{endpoint: j.endpoint, result: result, size: len(body)}
}

func (p *Poller) handle(o outcome) {
	if o.err != nil {
		p.log.WithError(o.err).WithFields(logger.Fields{"endpoint": o.endpoint.String()}).Warn("endpoint update failed")
		p.emit(Event{Kind: EventError, Endpoint: o.endpoint, Err: o.err})
		return
	}

	p.mu.Lock()
	p.results[o.endpoint] = o.result
	if reg, ok := p.regs[o.endpoint]; ok {
		reg.firstResponse = true
	}
	p.mu.Unlock()

	logger.RecordEndpointResponse(o.endpoint.String(), o.size)
	p.emit(Event{Kind: EventUpdated, Endpoint: o.endpoint})
}

// emit publishes an event without blocking; a full channel drops the event
// with a warning, the next cycle re-delivers fresher state anyway.
func (p *Poller) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.log.WithFields(logger.Fields{
			"kind":     ev.Kind.String(),
			"endpoint": ev.Endpoint.String(),
		}).Warn("event channel full, dropping event")
	}
}

// Result returns the latest decoded result for the endpoint.
func (p *Poller) Result(ep exchange.Endpoint) (exchange.Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.results[ep]
	return res, ok
}

func buildURL(base string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", base, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
