//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// shaderModule returns the compiled module for src, compiling and
// caching it under name on first use.
func (b *Backend) shaderModule(name, src string) *wgpu.ShaderModule {
	b.mu.RLock()
	if s, ok := b.shaders[name]; ok {
		b.mu.RUnlock()
		return s
	}
	b.mu.RUnlock()

	s := b.device.CreateShaderModuleWGSL(src)

	b.mu.Lock()
	b.shaders[name] = s
	b.mu.Unlock()
	return s
}

// pipeline returns the cached compute pipeline for name, building it
// from src on first use. Bind group layouts come from shader
// reflection.
func (b *Backend) pipeline(name, src string) *wgpu.ComputePipeline {
	b.mu.RLock()
	if p, ok := b.pipelines[name]; ok {
		b.mu.RUnlock()
		return p
	}
	b.mu.RUnlock()

	p := b.device.CreateComputePipelineSimple(nil, b.shaderModule(name, src), "main")

	b.mu.Lock()
	b.pipelines[name] = p
	b.mu.Unlock()
	return p
}

// upload creates a storage buffer initialized with data. The buffer is
// transient: callers release it after the dispatch completes.
func (b *Backend) upload(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	ptr := buf.GetMappedRange(0, size)
	copy(unsafe.Slice((*byte)(ptr), size), data)
	buf.Unmap()
	return buf
}

// uniform creates a uniform buffer holding data padded to the 16-byte
// alignment uniform blocks require.
func (b *Backend) uniform(data []byte) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	ptr := buf.GetMappedRange(0, size)
	copy(unsafe.Slice((*byte)(ptr), size), data)
	buf.Unmap()
	return buf
}

// readInto copies size bytes from a storage buffer into dst through a
// staging buffer, blocking until the GPU work that produced it drains.
func (b *Backend) readInto(dst []byte, src *wgpu.Buffer, size uint64) error {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	ptr := staging.GetMappedRange(0, size)
	copy(dst, unsafe.Slice((*byte)(ptr), size))
	staging.Unmap()
	return nil
}

// binding pairs a storage buffer with its bound size.
type binding struct {
	buf  *wgpu.Buffer
	size uint64
}

// run dispatches one cached pipeline. Storage buffers bind in order
// from binding 0; the params uniform binds after them, matching the
// layout every shader in this package declares.
func (b *Backend) run(name, src string, storage []binding, params []byte, wx, wy, wz uint32) {
	pipe := b.pipeline(name, src)

	paramBuf := b.uniform(params)
	defer paramBuf.Release()

	entries := make([]wgpu.BindGroupEntry, 0, len(storage)+1)
	for i, sb := range storage {
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), sb.buf, 0, sb.size)) //nolint:gosec // G115: binding index is tiny
	}
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(storage)), paramBuf, 0, (uint64(len(params))+15)&^15)) //nolint:gosec // G115: binding index is tiny

	group := b.device.CreateBindGroupSimple(pipe.GetBindGroupLayout(0), entries)
	defer group.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipe)
	pass.SetBindGroup(0, group, nil)
	pass.DispatchWorkgroups(wx, wy, wz)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))
}

// groups1D returns the workgroup count covering n elements.
func groups1D(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize) //nolint:gosec // G115: element counts are non-negative
}

// groups2D returns the workgroup count covering n positions along one
// axis of a tileSize x tileSize dispatch.
func groups2D(n int) uint32 {
	return uint32(math.Ceil(float64(n) / tileSize))
}

// pack serializes u32 params in order, padded to 16 bytes.
func pack(words ...uint32) []byte {
	n := (len(words)*4 + 15) &^ 15
	out := make([]byte, n)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// f32bits encodes a float for a u32 params slot.
func f32bits(v float64) uint32 {
	return math.Float32bits(float32(v))
}
