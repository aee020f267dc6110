package synth

import (
	"context"
	"sync"
	"time"
)

// Mock produces deterministic audio without network access. Failure outcomes
// and completion delays can be scripted per call.
type Mock struct {
	mu        sync.Mutex
	audio     []byte
	script    []error
	delayFunc func(Request) time.Duration
	calls     []Request
}

func NewMock() *Mock {
	return &Mock{}
}

// SetAudio fixes the payload returned for every call. When unset, each call
// returns bytes derived from the request text.
func (m *Mock) SetAudio(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = data
}

// FailWith queues outcomes for upcoming calls in order. A nil entry succeeds.
func (m *Mock) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, errs...)
}

// DelayFor installs a per-request completion delay.
func (m *Mock) DelayFor(f func(Request) time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delayFunc = f
}

// Calls returns a copy of every request seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *Mock) Synthesize(ctx context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	var scripted error
	if len(m.script) > 0 {
		scripted = m.script[0]
		m.script = m.script[1:]
	}
	audio := m.audio
	var delay time.Duration
	if m.delayFunc != nil {
		delay = m.delayFunc(req)
	}
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, &Error{Code: CodeTimeout, Message: "synthesis cancelled", Cause: ctx.Err()}
		case <-timer.C:
		}
	}
	if scripted != nil {
		return Result{}, scripted
	}
	if audio == nil {
		audio = []byte("audio[" + req.Text + "]")
	}
	return Result{Audio: audio, ContentType: ContentTypeFor(req.Format), Attempts: 1}, nil
}

func (m *Mock) Ping(ctx context.Context) error {
	return nil
}
