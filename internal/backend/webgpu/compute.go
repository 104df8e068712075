//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/ir"
)

// compileShader compiles WGSL once per name.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, ok := b.shaders[name]; ok {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)
	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()
	return shader
}

func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	if p, ok := b.pipelines[name]; ok {
		b.mu.RUnlock()
		return p
	}
	b.mu.RUnlock()

	p := b.device.CreateComputePipelineSimple(nil, b.compileShader(name, code), "main")
	b.mu.Lock()
	b.pipelines[name] = p
	b.mu.Unlock()
	return p
}

// createBuffer creates a GPU buffer holding data. Uniform buffers are
// padded to 16 bytes.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	if usage&wgpu.BufferUsageUniform != 0 {
		size = (size + 15) &^ 15
	}
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // mapped range is size bytes long
	mapped := unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size)
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies size bytes of src into dst through a staging buffer.
func (b *Backend) readBuffer(src *wgpu.Buffer, dst []byte) error {
	size := uint64(len(dst))
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("webgpu: map staging buffer: %w", err)
	}
	//nolint:gosec // mapped range is size bytes long
	copy(dst, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()
	return nil
}

// dispatch binds inputs, result and params in that order, runs one compute
// pass over groups and reads the result into out.
func (b *Backend) dispatch(name, code string, inputs [][]byte, out, params []byte, groups [3]uint32) error {
	if len(out) == 0 {
		return nil
	}
	p := b.pipeline(name, code)

	entries := make([]wgpu.BindGroupEntry, 0, len(inputs)+2)
	for i, in := range inputs {
		buf := b.createBuffer(in, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer buf.Release()
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, uint64(len(in))))
	}
	result := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(len(out)),
	})
	defer result.Release()
	uniform := b.createBuffer(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer uniform.Release()
	n := uint32(len(inputs))
	entries = append(entries,
		wgpu.BufferBindingEntry(n, result, 0, uint64(len(out))),
		wgpu.BufferBindingEntry(n+1, uniform, 0, 16),
	)

	bindGroup := b.device.CreateBindGroupSimple(p.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	return b.readBuffer(result, out)
}

func u32Params(vals ...int) []byte {
	params := make([]byte, 16)
	for i, v := range vals {
		//nolint:gosec // dims are non-negative and checked against the IR
		binary.LittleEndian.PutUint32(params[4*i:], uint32(v))
	}
	return params
}

func ceilDiv(n, d int) uint32 {
	//nolint:gosec // n is a non-negative extent
	return uint32((n + d - 1) / d)
}

func (b *Backend) binary(op ir.OpType, shader string) framework.Kernel {
	return func(args *framework.KernelArgs) error {
		x, y, out, err := binaryOperands(op, args)
		if err != nil {
			return err
		}
		n := out.NumElements()
		return b.dispatch(string(op), shader, [][]byte{x.Data(), y.Data()}, out.Data(),
			u32Params(n), [3]uint32{ceilDiv(n, workgroupSize), 1, 1})
	}
}

func (b *Backend) matmul(args *framework.KernelArgs) error {
	x, y, out, d, err := matmulOperands(args)
	if err != nil {
		return err
	}
	trans := 0
	if d.transA {
		trans |= 1
	}
	if d.transB {
		trans |= 2
	}
	return b.dispatch("matmul", matmulShader, [][]byte{x.Data(), y.Data()}, out.Data(),
		u32Params(d.m, d.k, d.n, trans), [3]uint32{ceilDiv(d.n, 16), ceilDiv(d.m, 16), 1})
}

func (b *Backend) transpose(args *framework.KernelArgs) error {
	x, out, err := transposeOperands(args)
	if err != nil {
		return err
	}
	rows, cols := x.Shape()[0], x.Shape()[1]
	return b.dispatch("transpose", transposeShader, [][]byte{x.Data()}, out.Data(),
		u32Params(rows, cols), [3]uint32{ceilDiv(cols, 16), ceilDiv(rows, 16), 1})
}
