package safe_close

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSafeClose(t *testing.T) {
	sc := NewSafeClose()
	var helperDone atomic.Bool
	sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		<-closeSignal
		time.Sleep(10 * time.Millisecond)
		helperDone.Store(true)
	})

	go func() {
		<-sc.ReceiveCloseSignal()
		sc.Done()
	}()

	errA := errors.New("a")
	sc.SendCloseSignal(nil)
	sc.SendCloseSignal(errA)
	sc.SendCloseSignal(errors.New("b"))

	sc.CloseWait()
	sc.CloseWait()
	require.True(t, helperDone.Load())
	require.ErrorIs(t, sc.Err(), errA)
}

func TestSafeClose_AttachAfterClose(t *testing.T) {
	sc := NewSafeClose()
	sc.SendCloseSignal(nil)
	sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		t.Error("attached after close")
		done()
	})
	sc.Done()
	sc.CloseWait()
	require.NoError(t, sc.Err())
}

func TestSafeClose_WaitBeforeDone(t *testing.T) {
	sc := NewSafeClose()
	var helperDone atomic.Bool
	sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		<-closeSignal
		time.Sleep(10 * time.Millisecond)
		helperDone.Store(true)
	})

	sc.SendCloseSignal(nil)
	sc.Wait()
	require.True(t, helperDone.Load())

	select {
	case <-sc.done:
		t.Fatal("Wait must not mark the owner as done")
	default:
	}
	sc.Done()
	sc.CloseWait()
}
