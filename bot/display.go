package bot

import (
	"fmt"
	"sync"
	"time"

	"sellflow/amount"
)

// logCapacity bounds the in-memory log ring; the oldest entries are dropped
// once the cap is reached.
const logCapacity = 3000

// Snapshot is the current presentation state: everything a display surface
// needs to render the bot without reaching into engine internals.
type Snapshot struct {
	Market        string
	Markets       []string
	MarketBalance amount.Amount
	BTCBalance    amount.Amount
	OrderRate     amount.Amount
	OrderSize     amount.Amount
	HasOrder      bool
	Running       bool
	SellLimit     amount.Amount
}

// Display is a one-way sink for engine log lines and value snapshots. It is
// safe for concurrent use; readers get copies.
type Display struct {
	mu      sync.Mutex
	entries []string
	snap    Snapshot
	now     func() time.Time
}

func NewDisplay() *Display {
	return &Display{now: time.Now}
}

// Log appends a timestamped line to the ring.
func (d *Display) Log(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	line := fmt.Sprintf("%s: %s", d.now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
	d.entries = append(d.entries, line)
	if len(d.entries) > logCapacity {
		d.entries = d.entries[len(d.entries)-logCapacity:]
	}
}

// Entries returns a copy of the current log lines, oldest first.
func (d *Display) Entries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.entries))
	copy(out, d.entries)
	return out
}

// Snapshot returns a copy of the current presentation state.
func (d *Display) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.snap
	snap.Markets = append([]string(nil), d.snap.Markets...)
	return snap
}

func (d *Display) SetMarkets(markets []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.Markets = append([]string(nil), markets...)
}

func (d *Display) SetMarket(market string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.Market = market
}

func (d *Display) SetMarketBalance(v amount.Amount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.MarketBalance = v
}

func (d *Display) SetBTCBalance(v amount.Amount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.BTCBalance = v
}

func (d *Display) SetOrder(rate, size amount.Amount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.OrderRate = rate
	d.snap.OrderSize = size
	d.snap.HasOrder = true
}

func (d *Display) ClearOrder() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.OrderRate = 0
	d.snap.OrderSize = 0
	d.snap.HasOrder = false
}

func (d *Display) SetRunning(running bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.Running = running
}

func (d *Display) SetSellLimit(v amount.Amount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.SellLimit = v
}
