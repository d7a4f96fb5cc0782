//go:build windows

package webgpu

import (
	"math/bits"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// storageUsage is the usage every pooled buffer carries: shader storage
// plus both copy directions, so any buffer can serve as op input,
// output, or readback source.
const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// maxPooledPerClass bounds how many idle buffers a size class retains.
const maxPooledPerClass = 32

// bufferPool recycles storage buffers between dispatches. Sizes round
// up to the next power of two so a returned buffer can serve any later
// request in its class.
type bufferPool struct {
	device *wgpu.Device

	mu      sync.Mutex
	classes map[uint64][]*wgpu.Buffer

	hits   uint64
	misses uint64
}

func newBufferPool(device *wgpu.Device) *bufferPool {
	return &bufferPool{
		device:  device,
		classes: make(map[uint64][]*wgpu.Buffer),
	}
}

// roundClass returns the pool size class for a request: the next power
// of two, floored at 256 bytes to keep tiny tensors in one class.
func roundClass(size uint64) uint64 {
	if size < 256 {
		return 256
	}
	if size&(size-1) == 0 {
		return size
	}
	return 1 << bits.Len64(size)
}

// acquire returns a storage buffer of at least size bytes, reusing a
// pooled one when the class has stock.
func (p *bufferPool) acquire(size uint64) *wgpu.Buffer {
	class := roundClass(size)

	p.mu.Lock()
	if stock := p.classes[class]; len(stock) > 0 {
		buf := stock[len(stock)-1]
		p.classes[class] = stock[:len(stock)-1]
		p.hits++
		p.mu.Unlock()
		return buf
	}
	p.misses++
	p.mu.Unlock()

	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  class,
	})
}

// release returns a buffer to its size class, or frees it when the
// class is full. size must be the size passed to acquire.
func (p *bufferPool) release(buf *wgpu.Buffer, size uint64) {
	class := roundClass(size)

	p.mu.Lock()
	if len(p.classes[class]) < maxPooledPerClass {
		p.classes[class] = append(p.classes[class], buf)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	buf.Release()
}

// clear frees every pooled buffer.
func (p *bufferPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for class, stock := range p.classes {
		for _, buf := range stock {
			buf.Release()
		}
		delete(p.classes, class)
	}
}

// stats reports pool reuse counters and the idle buffer count.
func (p *bufferPool) stats() (hits, misses uint64, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, stock := range p.classes {
		pooled += len(stock)
	}
	return p.hits, p.misses, pooled
}
