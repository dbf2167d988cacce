package streamdecoder

import "sync"

// Dedup guards tool_execution_start/tool_execution_end emission so that the
// two independent trigger paths named in spec.md §4.4/§4.5 — the decoder's
// "tool-call" fragment handling and the Dispatcher's adapter onStart/onEnd
// callbacks — each fire at most once per tool-call id. Ownership is the
// Agent Loop's (spec.md §9): one Dedup is created per run step and shared
// between the Decoder and the Dispatcher.
type Dedup struct {
	mu      sync.Mutex
	started map[string]bool
	ended   map[string]bool
}

// NewDedup constructs an empty Dedup for one run step.
func NewDedup() *Dedup {
	return &Dedup{started: make(map[string]bool), ended: make(map[string]bool)}
}

// TryStart reports whether the caller should emit tool_execution_start for
// id: true the first time it is called for a given id, false thereafter.
func (d *Dedup) TryStart(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started[id] {
		return false
	}
	d.started[id] = true
	return true
}

// TryEnd reports whether the caller should emit tool_execution_end for id:
// true the first time it is called for a given id, false thereafter.
func (d *Dedup) TryEnd(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended[id] {
		return false
	}
	d.ended[id] = true
	return true
}
