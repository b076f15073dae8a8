package service

import (
	"context"
	"sync"
)

// CancelRegistry maps running job ids to the cancel function of their
// processing context. Cancellation is cooperative: signalling here is
// observed by the pipeline at its next checkpoint, and the external codec
// process is terminated forcibly after a grace period.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		cancels: make(map[string]context.CancelFunc),
	}
}

func (r *CancelRegistry) Register(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[jobID] = cancel
}

func (r *CancelRegistry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, jobID)
}

// Cancel signals the job's processing context, reporting whether the job was
// running at the time.
func (r *CancelRegistry) Cancel(jobID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}
