package fileobj

import (
	"errors"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
)

const WriteAsyncBufferSize = 61

// AsyncWriteCallback mirrors the wire "async_file_write" callback from
// spec.md §6: {id, error, length_written}. Unlike async reads this is a
// single-shot completion, not a stream, so no explicit state machine is
// needed — the daemon simply performs the write off the event-loop thread
// and reports back once.
type AsyncWriteCallback struct {
	Error          apierr.Code
	LengthWritten  uint8
}

// WriteAsync performs buf's write on a background goroutine and delivers
// exactly one AsyncWriteCallback on the returned channel once it
// completes. It never produces a synchronous response, per spec.md §4.3's
// "fire-and-forget variants".
func (f *File) WriteAsync(buf []byte) <-chan AsyncWriteCallback {
	result := make(chan AsyncWriteCallback, 1)

	go func() {
		n, err := f.Write(buf)

		cb := AsyncWriteCallback{LengthWritten: uint8(n)}
		if err != nil {
			var apiErr *apierr.Error
			if errors.As(err, &apiErr) {
				cb.Error = apiErr.Code
			} else {
				cb.Error = apierr.UnknownError
			}
		}

		result <- cb
	}()

	return result
}

// WriteUnchecked performs buf's write on a background goroutine with no
// response and no callback at all — the protocol's purely fire-and-forget
// variant (spec.md §4.3).
func (f *File) WriteUnchecked(buf []byte) {
	go func() {
		_, _ = f.Write(buf)
	}()
}
