// Package lifecycle tracks process state shared across handlers.
package lifecycle

import "sync/atomic"

// Lifecycle is a tiny process lifecycle state holder. Readiness probes
// consult it so load balancers stop routing new calls during graceful
// shutdown while live calls drain.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
