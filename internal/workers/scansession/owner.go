package scansession

import (
	"context"
	"sync"

	"previa/internal/ports"
)

// Owner holds the single active session of one consuming surface. Starting a
// new session cancels the previous one first, so two polling loops never
// run under the same owner.
type Owner struct {
	mu      sync.Mutex
	current *Session
}

// Start cancels the current session, if any, and starts a new one. Starts on
// the same Owner are serialized.
func (o *Owner) Start(ctx context.Context, svc ports.ScreeningService, file ports.Upload, opts Options) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		o.current.Cancel()
		o.current = nil
	}
	s, err := Start(ctx, svc, file, opts)
	if err != nil {
		return nil, err
	}
	o.current = s
	return s, nil
}

// Current returns the active session or nil.
func (o *Owner) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Close cancels the current session. Call it when the surface goes away.
func (o *Owner) Close() {
	o.mu.Lock()
	s := o.current
	o.current = nil
	o.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}
