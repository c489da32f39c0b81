package testsupport

import (
	"context"
	"sync"
)

// PushCall is one call captured by RecordingService.
type PushCall struct {
	Kind  string
	Title string
	Stage string
	Err   error
}

// RecordingService is a push fake that records every call and can be told to
// fail.
type RecordingService struct {
	mu    sync.Mutex
	calls []PushCall
	fail  error
}

// NewRecordingService returns an empty recorder.
func NewRecordingService() *RecordingService {
	return &RecordingService{}
}

// FailWith makes every subsequent call return err.
func (r *RecordingService) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Calls returns a copy of the recorded calls.
func (r *RecordingService) Calls() []PushCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PushCall(nil), r.calls...)
}

// Count returns how many calls of kind were recorded.
func (r *RecordingService) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (r *RecordingService) record(call PushCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.fail
}

func (r *RecordingService) NotifyCapsuleReady(_ context.Context, title string) error {
	return r.record(PushCall{Kind: "ready", Title: title})
}

func (r *RecordingService) NotifyUnlockFailed(_ context.Context, title, stage string, err error) error {
	return r.record(PushCall{Kind: "failed", Title: title, Stage: stage, Err: err})
}

func (r *RecordingService) TestNotification(context.Context) error {
	return r.record(PushCall{Kind: "test"})
}
