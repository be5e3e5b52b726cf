package guardian

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeProbe serves configurable rendered HTML.
type fakeProbe struct {
	mu   sync.Mutex
	html string
}

func (p *fakeProbe) RenderedHTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html
}

func (p *fakeProbe) set(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// fakeCleaner records executed tiers.
type fakeCleaner struct {
	mu    sync.Mutex
	tiers []Tier
}

func (c *fakeCleaner) Cleanup(tier Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiers = append(c.tiers, tier)
}

func (c *fakeCleaner) executed() []Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Tier(nil), c.tiers...)
}

func testLimits() Limits {
	return Limits{
		HeapBytes:    100,
		MaxNodes:     10,
		MaxMathNodes: 2,
		Interval:     time.Hour, // loop never fires during tests
		RecheckDelay: time.Millisecond,
	}
}

// newTestGuardian wires a guardian with a fixed heap reading and a
// no-op sleep.
func newTestGuardian(limits Limits, probe Probe, cleaner Cleaner, heap uint64) *Guardian {
	g := New(limits, probe, cleaner, nil)
	g.heapFunc = func() uint64 { return heap }
	g.sleep = func(time.Duration) {}
	return g
}

func TestCheck_NoBreachNoCleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	g := newTestGuardian(testLimits(), &fakeProbe{html: "<p>tiny</p>"}, cleaner, 50)

	g.Check()

	if got := cleaner.executed(); len(got) != 0 {
		t.Errorf("cleanups executed = %v, want none", got)
	}
	if len(g.Snapshots()) != 1 {
		t.Errorf("snapshots = %d, want 1", len(g.Snapshots()))
	}
}

func TestCheck_HeapBreachTriggersSafeCleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	g := newTestGuardian(testLimits(), &fakeProbe{}, cleaner, 200)

	g.Check()

	got := cleaner.executed()
	if len(got) != 1 || got[0] != TierSafe {
		t.Fatalf("cleanups executed = %v, want [safe]", got)
	}

	hist := g.CleanupHistory()
	if len(hist) != 1 || !strings.Contains(hist[0].Reason, "heap") {
		t.Errorf("history = %+v, want one heap-reason event", hist)
	}
}

func TestCheck_NodeBreach(t *testing.T) {
	var b strings.Builder
	for range 20 {
		b.WriteString("<p>x</p>")
	}
	cleaner := &fakeCleaner{}
	g := newTestGuardian(testLimits(), &fakeProbe{html: b.String()}, cleaner, 10)

	g.Check()

	hist := g.CleanupHistory()
	if len(hist) != 1 || !strings.Contains(hist[0].Reason, "node count") {
		t.Errorf("history = %+v, want node-count event", hist)
	}
}

func TestCheck_MathNodeBreach(t *testing.T) {
	doc := strings.Repeat(`<math alttext="x"><mi>x</mi></math>`, 3)
	limits := testLimits()
	limits.MaxNodes = 1000
	cleaner := &fakeCleaner{}
	g := newTestGuardian(limits, &fakeProbe{html: doc}, cleaner, 10)

	g.Check()

	hist := g.CleanupHistory()
	if len(hist) != 1 || !strings.Contains(hist[0].Reason, "math node") {
		t.Errorf("history = %+v, want math-node event", hist)
	}
}

func TestRunCleanup_AnnotationProtection(t *testing.T) {
	t.Run("annotations settle during recheck", func(t *testing.T) {
		probe := &fakeProbe{html: `<math><mi>x</mi></math>`}
		cleaner := &fakeCleaner{}
		g := newTestGuardian(testLimits(), probe, cleaner, 10)

		// After the recheck delay the annotation has landed.
		g.sleep = func(time.Duration) {
			probe.set(`<math alttext="x"><mi>x</mi></math>`)
		}

		g.runCleanup(TierSafe, "heap threshold exceeded", g.sample())

		got := cleaner.executed()
		if len(got) != 1 || got[0] != TierSafe {
			t.Errorf("cleanups = %v, want [safe] after annotations settled", got)
		}
	})

	t.Run("persistent unannotated math degrades to minimal", func(t *testing.T) {
		probe := &fakeProbe{html: `<math><mi>x</mi></math>`}
		cleaner := &fakeCleaner{}
		g := newTestGuardian(testLimits(), probe, cleaner, 10)

		g.runCleanup(TierSafe, "heap threshold exceeded", g.sample())

		got := cleaner.executed()
		if len(got) != 1 || got[0] != TierMinimal {
			t.Fatalf("cleanups = %v, want [minimal]", got)
		}
		hist := g.CleanupHistory()
		if !strings.Contains(hist[0].Reason, "annotation protection") {
			t.Errorf("reason = %q, want annotation-protection suffix", hist[0].Reason)
		}
	})

	t.Run("minimal tier skips the protection check", func(t *testing.T) {
		probe := &fakeProbe{html: `<math><mi>x</mi></math>`}
		cleaner := &fakeCleaner{}
		g := newTestGuardian(testLimits(), probe, cleaner, 10)
		slept := false
		g.sleep = func(time.Duration) { slept = true }

		g.runCleanup(TierMinimal, "manual", g.sample())

		if slept {
			t.Error("minimal tier should not wait on annotations")
		}
	})
}

func TestEmergencyCleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	g := newTestGuardian(testLimits(), &fakeProbe{html: "<p>ok</p>"}, cleaner, 10)

	g.EmergencyCleanup("operator request")

	got := cleaner.executed()
	if len(got) != 1 || got[0] != TierFull {
		t.Errorf("cleanups = %v, want [full]", got)
	}
}

func TestStartStop(t *testing.T) {
	g := newTestGuardian(testLimits(), &fakeProbe{}, &fakeCleaner{}, 10)

	g.Start()
	g.Start() // second start is a no-op
	g.Stop()

	// Stop after stop must not block or panic.
	g.Stop()
}

func TestSnapshotRing(t *testing.T) {
	g := newTestGuardian(testLimits(), &fakeProbe{}, &fakeCleaner{}, 10)
	for range maxSnapshots + 5 {
		g.sample()
	}
	if got := len(g.Snapshots()); got != maxSnapshots {
		t.Errorf("snapshot history = %d, want capped at %d", got, maxSnapshots)
	}
}

func TestCountNodes(t *testing.T) {
	tests := []struct {
		name            string
		doc             string
		wantMath        int
		wantUnannotated int
	}{
		{"empty", "", 0, 0},
		{"annotated math", `<math alttext="x"><mi>x</mi></math>`, 1, 0},
		{"unannotated math", `<math><mi>x</mi></math>`, 1, 1},
		{
			"mixed",
			`<math alttext="a"><mi>a</mi></math><math><mi>b</mi></math>`,
			2, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, math, unannotated := countNodes(tt.doc)
			if math != tt.wantMath {
				t.Errorf("mathNodes = %d, want %d", math, tt.wantMath)
			}
			if unannotated != tt.wantUnannotated {
				t.Errorf("unannotated = %d, want %d", unannotated, tt.wantUnannotated)
			}
		})
	}
}
