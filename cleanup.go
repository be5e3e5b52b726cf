package tex2html

import (
	"github.com/alnah/go-tex2html/internal/guardian"
)

// CleanupTier selects how much session state a cleanup reclaims.
type CleanupTier int

const (
	// CleanupSafe removes temporary processing markers from the rendered
	// output in addition to clearing internal state.
	CleanupSafe CleanupTier = iota

	// CleanupMinimal clears only internal caches and the attempt log,
	// touching no rendered content.
	CleanupMinimal

	// CleanupFull additionally clears the cross-reference registry.
	// After a full cleanup the registry must be rebuilt by the next
	// preprocessor run before any follow-up annotation work.
	CleanupFull
)

// Cleanup executes one cleanup tier immediately. The guardian invokes
// this through its coordinator; callers may also trigger it directly
// (e.g. before discarding a session's output).
//
// Content-touching tiers silently degrade to minimal while a conversion
// is in flight, so cleanup never races the pipeline.
func (s *Session) Cleanup(tier CleanupTier) {
	if tier != CleanupMinimal && s.stateActive() {
		tier = CleanupMinimal
	}

	// Minimal work happens on every tier.
	s.clearAttempts()

	switch tier {
	case CleanupSafe:
		s.scrubRenderedOutput()
	case CleanupFull:
		s.scrubRenderedOutput()
		s.registry.Clear()
	}
	s.log.Debug("session cleanup", "tier", tier.guardianTier().String())
}

// EmergencyCleanup escalates straight to the full tier through the
// guardian, which still honours the annotation-protection rule.
func (s *Session) EmergencyCleanup(reason string) {
	s.guardian.EmergencyCleanup(reason)
}

// scrubRenderedOutput drops the temporary chunk-boundary markers left in
// the last rendered output. Anchors and error markup are content and
// stay untouched.
func (s *Session) scrubRenderedOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHTML = chunkBoundaryPattern.ReplaceAllString(s.lastHTML, "")
}

// stateActive reports whether the orchestrator is inside an active
// conversion stage (converting, cleaning or typesetting).
func (s *Session) stateActive() bool {
	switch s.State() {
	case StateConverting, StateChunkConverting, StateCleaning, StateTypesetting:
		return true
	}
	return false
}

func (t CleanupTier) guardianTier() guardian.Tier {
	switch t {
	case CleanupMinimal:
		return guardian.TierMinimal
	case CleanupFull:
		return guardian.TierFull
	default:
		return guardian.TierSafe
	}
}

func fromGuardianTier(t guardian.Tier) CleanupTier {
	switch t {
	case guardian.TierMinimal:
		return CleanupMinimal
	case guardian.TierFull:
		return CleanupFull
	default:
		return CleanupSafe
	}
}

// guardianProbe adapts the session for the watchdog's read-only
// sampling. No mutable conversion state is shared.
type guardianProbe struct {
	s *Session
}

func (p guardianProbe) RenderedHTML() string {
	return p.s.HTML()
}

// guardianCleaner adapts the session for the guardian's cleanup
// coordinator.
type guardianCleaner struct {
	s *Session
}

func (c guardianCleaner) Cleanup(tier guardian.Tier) {
	c.s.Cleanup(fromGuardianTier(tier))
}
