package orchestrator

import (
	"sync"

	"watch-harvest/pkg/job"
	"watch-harvest/pkg/metrics"
)

// Tracker follows every queued URL through the job states.
type Tracker struct {
	mu      sync.Mutex
	states  map[string]job.Stage
	metrics *metrics.Registry
}

func NewTracker(m *metrics.Registry) *Tracker {
	return &Tracker{states: make(map[string]job.Stage), metrics: m}
}

func inflight(s job.Stage) bool {
	return s == job.StageRendering || s == job.StageExtracting || s == job.StageUpserting
}

// Set moves url to stage. Terminal states are final.
func (t *Tracker) Set(url string, stage job.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.states[url]
	if seen && (prev == job.StageDone || prev == job.StageFailed) {
		return
	}
	t.states[url] = stage
	if t.metrics == nil {
		return
	}
	if seen && inflight(prev) {
		t.metrics.Inflight.WithLabelValues(string(prev)).Dec()
	}
	if inflight(stage) {
		t.metrics.Inflight.WithLabelValues(string(stage)).Inc()
	}
}

func (t *Tracker) Stage(url string) job.Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[url]
}

// Active counts jobs currently rendering or extracting.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.states {
		if s == job.StageRendering || s == job.StageExtracting {
			n++
		}
	}
	return n
}

func (t *Tracker) Counts() map[job.Stage]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[job.Stage]int)
	for _, s := range t.states {
		out[s]++
	}
	return out
}
