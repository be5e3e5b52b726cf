// Package guardian bounds resource consumption across a long-lived
// conversion session. A watchdog loop samples heap usage and the node
// population of the last rendered output on a fixed interval, and an
// escalating cleanup coordinator reclaims resources when thresholds are
// breached. Cleanup never races an in-flight conversion: the session's
// cleaner refuses content-touching tiers while converting, and the
// watchdog defers safe cleanup while annotation injection is pending.
package guardian

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// Tier is an escalating cleanup level.
type Tier int

const (
	// TierSafe removes clearly temporary processing artifacts and
	// orphaned render nodes that carry no in-progress annotation.
	TierSafe Tier = iota

	// TierMinimal clears only internal caches and state, touching no
	// rendered content.
	TierMinimal

	// TierFull additionally clears cross-reference registries. Reserved
	// for explicit or emergency invocation: it invalidates data the
	// preprocessor needs for follow-up annotation work.
	TierFull
)

func (t Tier) String() string {
	switch t {
	case TierSafe:
		return "safe"
	case TierMinimal:
		return "minimal"
	case TierFull:
		return "full"
	default:
		return "unknown"
	}
}

// Limits are the watchdog thresholds and timing constants.
type Limits struct {
	HeapBytes    uint64        // heap-in-use threshold
	MaxNodes     int           // total rendered node threshold
	MaxMathNodes int           // live math element threshold
	Interval     time.Duration // sampling interval
	RecheckDelay time.Duration // annotation-protection recheck delay
}

// DefaultLimits returns the standard thresholds.
func DefaultLimits() Limits {
	return Limits{
		HeapBytes:    512 << 20,
		MaxNodes:     60_000,
		MaxMathNodes: 2_000,
		Interval:     10 * time.Second,
		RecheckDelay: 500 * time.Millisecond,
	}
}

// Snapshot is one timestamped resource sample. Used only for trend
// comparison and diagnostics, never persisted.
type Snapshot struct {
	Time            time.Time `json:"time"`
	HeapBytes       uint64    `json:"heapBytes"`
	Nodes           int       `json:"nodes"`
	MathNodes       int       `json:"mathNodes"`
	UnannotatedMath int       `json:"unannotatedMath"`
}

// CleanupEvent records one executed cleanup for the rolling history.
type CleanupEvent struct {
	Time   time.Time `json:"time"`
	Tier   string    `json:"tier"`
	Reason string    `json:"reason"`
}

// Probe exposes the rendered state the watchdog samples. Read-only; the
// guardian shares no mutable conversion state with the orchestrator.
type Probe interface {
	RenderedHTML() string
}

// Cleaner executes a cleanup tier. Implementations are responsible for
// refusing content-touching tiers while a conversion is in flight.
type Cleaner interface {
	Cleanup(tier Tier)
}

// Ring sizes for the retained history.
const (
	maxSnapshots = 16
	maxEvents    = 32
)

// Guardian runs the watchdog loop and coordinates tiered cleanup.
// Initialise once per session; Stop on session end.
type Guardian struct {
	limits  Limits
	probe   Probe
	cleaner Cleaner
	log     *slog.Logger

	// heapFunc is injectable for tests; defaults to runtime.ReadMemStats.
	heapFunc func() uint64

	// sleep is injectable for tests; defaults to time.Sleep.
	sleep func(time.Duration)

	mu        sync.Mutex
	snapshots []Snapshot
	events    []CleanupEvent

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Guardian. A nil logger disables logging.
func New(limits Limits, probe Probe, cleaner Cleaner, log *slog.Logger) *Guardian {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Guardian{
		limits:   limits,
		probe:    probe,
		cleaner:  cleaner,
		log:      log,
		heapFunc: heapInUse,
		sleep:    time.Sleep,
	}
}

// Start launches the watchdog loop. Calling Start twice is a no-op
// until Stop is called.
func (g *Guardian) Start() {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})
	g.mu.Unlock()

	go g.loop(ctx)
}

// Stop tears down the watchdog loop and waits for it to exit.
func (g *Guardian) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (g *Guardian) loop(ctx context.Context) {
	defer close(g.done)

	ticker := time.NewTicker(g.limits.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Check()
		}
	}
}

// Check performs one watchdog pass: sample, compare against thresholds,
// and trigger cleanup if any threshold is breached. Exported so the
// session can force a pass at lifecycle points.
func (g *Guardian) Check() {
	snap := g.sample()

	reason := g.breach(snap)
	if reason == "" {
		return
	}

	g.log.Debug("resource threshold breached",
		"reason", reason,
		"heapBytes", snap.HeapBytes,
		"nodes", snap.Nodes,
		"mathNodes", snap.MathNodes,
	)
	g.runCleanup(TierSafe, reason, snap)
}

// EmergencyCleanup escalates straight to the full tier, still honouring
// the annotation-protection rule.
func (g *Guardian) EmergencyCleanup(reason string) {
	g.runCleanup(TierFull, reason, g.sample())
}

// runCleanup applies the annotation-protection rule, then executes the
// chosen tier and records it. Render nodes without their accessibility
// annotation mean injection is still in flight: cleanup is deferred and
// rechecked once, falling back to the minimal tier if annotations still
// have not appeared.
func (g *Guardian) runCleanup(tier Tier, reason string, snap Snapshot) {
	if tier != TierMinimal && snap.UnannotatedMath > 0 {
		g.log.Debug("cleanup deferred, annotations pending", "unannotated", snap.UnannotatedMath)
		g.sleep(g.limits.RecheckDelay)

		snap = g.sample()
		if snap.UnannotatedMath > 0 {
			tier = TierMinimal
			reason += " (annotation protection)"
		}
	}

	if g.cleaner != nil {
		g.cleaner.Cleanup(tier)
	}
	g.record(CleanupEvent{Time: time.Now(), Tier: tier.String(), Reason: reason})
	g.log.Info("cleanup executed", "tier", tier.String(), "reason", reason)
}

// breach names the first threshold the snapshot exceeds, or "".
func (g *Guardian) breach(snap Snapshot) string {
	switch {
	case g.limits.HeapBytes > 0 && snap.HeapBytes > g.limits.HeapBytes:
		return "heap threshold exceeded"
	case g.limits.MaxNodes > 0 && snap.Nodes > g.limits.MaxNodes:
		return "node count threshold exceeded"
	case g.limits.MaxMathNodes > 0 && snap.MathNodes > g.limits.MaxMathNodes:
		return "math node threshold exceeded"
	}
	return ""
}

// sample takes one resource snapshot and appends it to the rolling
// history.
func (g *Guardian) sample() Snapshot {
	snap := Snapshot{Time: time.Now(), HeapBytes: g.heapFunc()}

	if g.probe != nil {
		snap.Nodes, snap.MathNodes, snap.UnannotatedMath = countNodes(g.probe.RenderedHTML())
	}

	g.mu.Lock()
	g.snapshots = append(g.snapshots, snap)
	if len(g.snapshots) > maxSnapshots {
		g.snapshots = g.snapshots[len(g.snapshots)-maxSnapshots:]
	}
	g.mu.Unlock()

	return snap
}

func (g *Guardian) record(ev CleanupEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.events = append(g.events, ev)
	if len(g.events) > maxEvents {
		g.events = g.events[len(g.events)-maxEvents:]
	}
}

// Snapshots returns the rolling sample history, newest last.
func (g *Guardian) Snapshots() []Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]Snapshot(nil), g.snapshots...)
}

// CleanupHistory returns the rolling cleanup event history, newest last.
func (g *Guardian) CleanupHistory() []CleanupEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]CleanupEvent(nil), g.events...)
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

// countNodes walks rendered HTML and counts element nodes, math
// elements, and math elements missing their alttext annotation.
func countNodes(doc string) (nodes, mathNodes, unannotated int) {
	if doc == "" {
		return 0, 0, 0
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return 0, 0, 0
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			nodes++
			if n.Data == "math" {
				mathNodes++
				if !hasAttr(n, "alttext") {
					unannotated++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return nodes, mathNodes, unannotated
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
