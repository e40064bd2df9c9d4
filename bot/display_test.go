package bot

import (
	"strings"
	"testing"
	"time"
)

func TestDisplayLogRing(t *testing.T) {
	d := NewDisplay()
	d.now = func() time.Time { return time.Date(2017, 8, 1, 12, 0, 0, 0, time.UTC) }

	for i := 0; i < logCapacity+10; i++ {
		d.Log("line %d", i)
	}

	entries := d.Entries()
	if len(entries) != logCapacity {
		t.Fatalf("expected ring capped at %d entries, got %d", logCapacity, len(entries))
	}
	if !strings.HasSuffix(entries[0], "line 10") {
		t.Errorf("oldest entries not dropped: %q", entries[0])
	}
	if !strings.HasPrefix(entries[0], "2017-08-01 12:00:00: ") {
		t.Errorf("missing timestamp prefix: %q", entries[0])
	}
}

func TestDisplaySnapshotIsCopy(t *testing.T) {
	d := NewDisplay()
	d.SetMarkets([]string{"LTC", "ARK"})

	snap := d.Snapshot()
	snap.Markets[0] = "mutated"

	if got := d.Snapshot().Markets[0]; got != "LTC" {
		t.Errorf("snapshot shares backing array with display: %s", got)
	}
}

func TestDisplayOrderLifecycle(t *testing.T) {
	d := NewDisplay()

	d.SetOrder(100, 200)
	snap := d.Snapshot()
	if !snap.HasOrder || snap.OrderRate != 100 || snap.OrderSize != 200 {
		t.Fatalf("unexpected snapshot after SetOrder: %+v", snap)
	}

	d.ClearOrder()
	snap = d.Snapshot()
	if snap.HasOrder || snap.OrderRate != 0 {
		t.Fatalf("unexpected snapshot after ClearOrder: %+v", snap)
	}
}
