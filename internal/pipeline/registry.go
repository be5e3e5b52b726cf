package pipeline

import "sync"

// Registry is the process-wide cross-reference store. It is explicitly
// owned and injectable: the preprocessor rebuilds it at the start of
// every run, the post-conversion fixer reads equation labels from it,
// and a full cleanup may destroy it. Safe for concurrent readers.
type Registry struct {
	mu         sync.RWMutex
	labels     map[string]Label
	references []Reference
	stats      CrossRefStats
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{labels: make(map[string]Label)}
}

// Build replaces the registry contents with the results of one
// preprocessor run.
func (r *Registry) Build(labels []Label, refs []Reference, stats CrossRefStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.labels = make(map[string]Label, len(labels))
	for _, l := range labels {
		r.labels[l.Name] = l
	}
	r.references = append([]Reference(nil), refs...)
	r.stats = stats
}

// Clear empties the registry. Follow-up annotation work needs a fresh
// Build afterwards.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.labels = make(map[string]Label)
	r.references = nil
	r.stats = CrossRefStats{}
}

// Labels returns a copy of the label map.
func (r *Registry) Labels() map[string]Label {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Label, len(r.labels))
	for k, v := range r.labels {
		out[k] = v
	}
	return out
}

// EquationLabels returns only the labels typed as equations, for the
// post-conversion anchor fixer.
func (r *Registry) EquationLabels() map[string]Label {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Label)
	for k, v := range r.labels {
		if v.Type == LabelEquation {
			out[k] = v
		}
	}
	return out
}

// References returns a copy of the recorded references.
func (r *Registry) References() []Reference {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Reference(nil), r.references...)
}

// Stats returns the statistics of the last Build.
func (r *Registry) Stats() CrossRefStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stats
}
