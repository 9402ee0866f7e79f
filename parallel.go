package avimjpeg

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// FrameError is the error of one frame in a batch conversion.
type FrameError struct {
	Index int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Index, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// parallelFor runs fn(i) for i in [0, n) on up to workers goroutines, each taking a
// contiguous chunk. It stops handing out work once ctx is done.
func parallelFor(ctx context.Context, workers, n int, fn func(i int)) {
	if workers <= 1 || n <= 1 {
		for i := 0; i < n && ctx.Err() == nil; i++ {
			fn(i)
		}

		return
	}

	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers

	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e && ctx.Err() == nil; i++ {
				fn(i)
			}
		}(start, end)
	}

	wg.Wait()
}

// joinFrameErrors joins the non-nil errors in index order, each wrapped in a FrameError.
// Frames never reached because ctx was cancelled report the context error.
func joinFrameErrors(ctx context.Context, errs []error, done []bool) error {
	var all []error

	for i, err := range errs {
		if err == nil && !done[i] {
			err = ctx.Err()
		}

		if err != nil {
			all = append(all, &FrameError{Index: i, Err: err})
		}
	}

	return errors.Join(all...)
}

// DecodeFrames decodes chunk payloads of one stream concurrently. Every frame is decoded
// with its own context, so one bad payload only fails its own index: frames[i] is nil
// exactly when the returned error holds a FrameError for i.
func (c *Codec) DecodeFrames(ctx context.Context, payloads [][]byte, desc StreamDescriptor) ([]*Frame, error) {
	frames := make([]*Frame, len(payloads))
	errs := make([]error, len(payloads))
	done := make([]bool, len(payloads))

	parallelFor(ctx, c.workers, len(payloads), func(i int) {
		frames[i], errs[i] = c.DecodeFrame(payloads[i], desc)
		done[i] = true
	})

	return frames, joinFrameErrors(ctx, errs, done)
}

// EncodeFrames encodes frames of one stream concurrently. Each payload is sized with
// MaxEncodedSize and trimmed to the bytes written.
func (c *Codec) EncodeFrames(ctx context.Context, frames []*Frame, desc StreamDescriptor) ([][]byte, error) {
	payloads := make([][]byte, len(frames))
	errs := make([]error, len(frames))
	done := make([]bool, len(frames))
	size := MaxEncodedSize(desc)

	parallelFor(ctx, c.workers, len(frames), func(i int) {
		defer func() { done[i] = true }()

		buf := make([]byte, size)

		n, err := c.EncodeFrame(buf, frames[i], desc)
		if err != nil {
			errs[i] = err

			return
		}

		payloads[i] = buf[:n:n]
	})

	return payloads, joinFrameErrors(ctx, errs, done)
}
