package avimjpeg

import (
	"sync"
	"sync/atomic"
)

// Allocator provides the pixel buffers a conversion needs.
// Allocate returns a zeroed buffer of rows*cols*channels*elemSize bytes, or nil if
// the memory cannot be provided. Release hands a buffer back once it is no longer used.
type Allocator interface {
	Allocate(rows, cols, channels, elemSize int) []byte
	Release(buf []byte)
}

// HeapAllocator allocates every buffer with make and leaves released buffers to the garbage collector.
type HeapAllocator struct{}

// Allocate implements Allocator.
func (HeapAllocator) Allocate(rows, cols, channels, elemSize int) []byte {
	size := rows * cols * channels * elemSize
	if size <= 0 {
		return nil
	}

	return make([]byte, size)
}

// Release implements Allocator.
func (HeapAllocator) Release([]byte) {}

// PoolAllocator recycles buffers by exact size. Video streams convert frames of one
// size over and over, so a pool per size avoids a fresh allocation for every frame.
// An optional limit caps the bytes handed out and not yet released.
type PoolAllocator struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool

	memoryUsed  int64 // atomic
	memoryLimit int64 // atomic, 0 = unlimited
}

// NewPoolAllocator creates a pool allocator. A limit of 0 means no limit.
func NewPoolAllocator(limit int64) *PoolAllocator {
	return &PoolAllocator{
		pools:       make(map[int]*sync.Pool),
		memoryLimit: limit,
	}
}

// pool returns the pool for buffers of the given size.
func (p *PoolAllocator) pool(size int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp, ok := p.pools[size]
	if !ok {
		sp = &sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)

				return &b
			},
		}
		p.pools[size] = sp
	}

	return sp
}

// Allocate implements Allocator. It returns nil when the limit would be exceeded.
func (p *PoolAllocator) Allocate(rows, cols, channels, elemSize int) []byte {
	size := rows * cols * channels * elemSize
	if size <= 0 {
		return nil
	}

	if limit := atomic.LoadInt64(&p.memoryLimit); limit > 0 {
		if atomic.AddInt64(&p.memoryUsed, int64(size)) > limit {
			atomic.AddInt64(&p.memoryUsed, -int64(size))

			return nil
		}
	} else {
		atomic.AddInt64(&p.memoryUsed, int64(size))
	}

	bp := p.pool(size).Get().(*[]byte)
	buf := *bp
	clear(buf)

	return buf
}

// Release implements Allocator.
func (p *PoolAllocator) Release(buf []byte) {
	if buf == nil {
		return
	}

	size := cap(buf)
	buf = buf[:size]

	atomic.AddInt64(&p.memoryUsed, -int64(size))
	p.pool(size).Put(&buf)
}

// MemoryUsed returns the number of bytes allocated and not yet released.
func (p *PoolAllocator) MemoryUsed() int64 {
	return atomic.LoadInt64(&p.memoryUsed)
}

// SetMemoryLimit sets the limit and returns the previous one. A limit of 0 means no limit.
func (p *PoolAllocator) SetMemoryLimit(limit int64) int64 {
	return atomic.SwapInt64(&p.memoryLimit, limit)
}
