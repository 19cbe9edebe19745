package safe_close

import "sync"

// SafeClose coordinates the shutdown of a node and the goroutines it
// starts.
//
// The owner goroutine waits on ReceiveCloseSignal and calls Done once it
// has stopped. Helper goroutines are started by Attach and must call
// their done func after the close signal. Anyone may request a shutdown
// with SendCloseSignal. CloseWait is for outside callers only; calling
// it from the owner or a helper deadlocks.
type SafeClose struct {
	mu     sync.Mutex
	closed bool
	err    error
	signal chan struct{}

	helpers  sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

func NewSafeClose() *SafeClose {
	return &SafeClose{
		signal: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SendCloseSignal requests a shutdown. The first non-nil err is kept
// for Err.
func (s *SafeClose) SendCloseSignal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	if !s.closed {
		s.closed = true
		close(s.signal)
	}
}

// CloseWait requests a shutdown and blocks until Done is called and all
// helpers have returned. It can be called more than once.
func (s *SafeClose) CloseWait() {
	s.SendCloseSignal(nil)
	s.helpers.Wait()
	<-s.done
}

// Err returns the first error passed to SendCloseSignal.
func (s *SafeClose) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SafeClose) ReceiveCloseSignal() <-chan struct{} {
	return s.signal
}

// Attach runs f in a new goroutine that CloseWait waits for. f is not
// run if a shutdown was already requested.
func (s *SafeClose) Attach(f func(done func(), closeSignal <-chan struct{})) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.helpers.Add(1)
	s.mu.Unlock()

	go f(s.helpers.Done, s.signal)
}

// Wait blocks until all attached helpers have returned. Unlike CloseWait
// it does not wait for Done, so the owner can call it before it returns.
func (s *SafeClose) Wait() {
	s.helpers.Wait()
}

// Done marks the owner as stopped. It can be called more than once.
func (s *SafeClose) Done() {
	s.doneOnce.Do(func() { close(s.done) })
}
