package fileobj

import (
	"errors"
	"io"
	"sync"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/logging"
)

// AsyncReadState is the per-file state machine from spec.md §4.3 (C4):
// Idle -> Reading -> Idle, plus Aborting from Reading. Completion has no
// state of its own: the worker emits its final callback and returns to
// Idle directly.
type AsyncReadState uint8

const (
	AsyncIdle AsyncReadState = iota
	AsyncReading
	AsyncAborting
)

// AsyncReadCallback is one record emitted by the background reader thread
// and consumed by the event loop, matching the wire callback shape
// AsyncFileReadCallback{id, error, buffer, length} from spec.md §4.3/§6.
type AsyncReadCallback struct {
	Error  apierr.Code
	Buffer [ReadAsyncBufferSize]byte
	Length uint8
}

// asyncReadContext is the lazily-created async-read state for a regular
// file: a worker goroutine standing in for the original's dedicated OS
// thread, and a channel standing in for its completion pipe (spec.md §5:
// "a dedicated unnamed pipe per object, carrying fixed-size completion
// records" — channels are the idiomatic Go analogue the event loop can
// select on).
type asyncReadContext struct {
	mu        sync.Mutex
	state     AsyncReadState
	remaining uint64
	callbacks chan AsyncReadCallback
	stop      chan struct{}
	done      chan struct{}
}

// Callbacks returns the channel the event loop should select on for async
// read completions of this file. The lazily-created context is created on
// first ReadAsync call.
func (f *File) Callbacks() <-chan AsyncReadCallback {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.async == nil {
		return nil
	}

	return f.async.callbacks
}

// ReadAsync starts a background read of up to n bytes, transitioning Idle
// -> Reading. Starting a second async read while one is already in flight
// fails with InvalidOperation (spec.md §4.3).
func (f *File) ReadAsync(n uint64) error {
	f.mu.Lock()

	if f.kind != KindRegular {
		f.mu.Unlock()
		return apierr.New(apierr.InvalidOperation)
	}

	if f.async == nil {
		f.async = &asyncReadContext{
			callbacks: make(chan AsyncReadCallback, 4),
			stop:      make(chan struct{}),
			done:      make(chan struct{}),
		}
	}

	async := f.async
	handle := f.handle
	f.mu.Unlock()

	async.mu.Lock()
	if async.state != AsyncIdle {
		async.mu.Unlock()
		return apierr.New(apierr.InvalidOperation)
	}

	async.state = AsyncReading
	async.remaining = n
	async.done = make(chan struct{}) // one per worker run; run closes it
	async.mu.Unlock()

	f.SetLockedHook(true)

	go async.run(handle, f)

	return nil
}

// SetLockedHook invokes the callback set via SetLockedCallback, if any:
// with true when an async read starts and false when it finishes. fileobj
// does not set a callback itself, so without one this does nothing.
func (f *File) SetLockedHook(locked bool) {
	f.mu.Lock()
	hook := f.lockedHook
	f.mu.Unlock()

	if hook != nil {
		hook(locked)
	}
}

// AbortAsyncRead requests cancellation of an in-flight async read. It is
// best-effort and idempotent: exactly one completion callback is still
// produced by the worker, now carrying OperationAborted. Calling it from
// Idle fails with InvalidOperation, per spec.md §4.3.
func (f *File) AbortAsyncRead() error {
	f.mu.Lock()
	async := f.async
	f.mu.Unlock()

	if async == nil {
		return apierr.New(apierr.InvalidOperation)
	}

	async.mu.Lock()
	defer async.mu.Unlock()

	if async.state != AsyncReading {
		return apierr.New(apierr.InvalidOperation)
	}

	async.state = AsyncAborting

	return nil
}

func (a *asyncReadContext) run(handle interface{ Read([]byte) (int, error) }, f *File) {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()

	defer close(done)

	buf := make([]byte, ReadAsyncBufferSize)

	for {
		a.mu.Lock()
		readSize := uint64(ReadAsyncBufferSize)
		if a.remaining < readSize {
			readSize = a.remaining
		}
		a.mu.Unlock()

		n, err := handle.Read(buf[:readSize])

		a.mu.Lock()
		aborting := a.state == AsyncAborting
		a.mu.Unlock()

		if aborting {
			a.emit(AsyncReadCallback{Error: apierr.OperationAborted})
			a.finish(f)
			return
		}

		if err != nil && !errors.Is(err, io.EOF) {
			logging.Errorf("fileobj", "async read failed: %v", err)
			a.emit(AsyncReadCallback{Error: apierr.FromErrno(err)})
			a.finish(f)
			return
		}

		if n == 0 {
			a.emit(AsyncReadCallback{Error: apierr.NoMoreData})
			a.finish(f)
			return
		}

		var cb AsyncReadCallback
		cb.Length = uint8(n)
		copy(cb.Buffer[:], buf[:n])
		a.emit(cb)

		a.mu.Lock()
		if a.remaining > uint64(n) {
			a.remaining -= uint64(n)
		} else {
			a.remaining = 0
		}
		remaining := a.remaining
		a.mu.Unlock()

		if remaining == 0 {
			a.emit(AsyncReadCallback{Error: apierr.NoMoreData})
			a.finish(f)
			return
		}
	}
}

func (a *asyncReadContext) emit(cb AsyncReadCallback) {
	select {
	case a.callbacks <- cb:
	case <-a.stop:
	}
}

func (a *asyncReadContext) finish(f *File) {
	a.mu.Lock()
	a.state = AsyncIdle
	a.mu.Unlock()

	f.SetLockedHook(false)
}

// shutdown is called from File.destroy to stop a still-running worker
// before the file descriptor underneath it is closed.
func (a *asyncReadContext) shutdown() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()

	close(a.stop)
	<-done
}
