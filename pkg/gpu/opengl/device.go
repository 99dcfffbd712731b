// Package opengl implements the compute device on an OpenGL 4.3 context.
package opengl

import (
	"fmt"
	"image"
	"strings"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/rs/zerolog/log"

	"dvr/pkg/gpu"
	"dvr/pkg/volume"
)

// Device runs the kernel as an OpenGL 4.3 compute shader. It must be
// created and used on the goroutine that owns the current GL context.
type Device struct {
	program       uint32
	workgroupSize int
	volumeSSBO    uint32
	labelSSBO     uint32
	results       map[gpu.Handle][2]int
	uniforms      map[string]int32
}

var (
	_ gpu.Device       = (*Device)(nil)
	_ gpu.ResultReader = (*Device)(nil)
)

// NewDevice loads the GL entry points and compiles the ray casting kernel
func NewDevice(workgroupSize int) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	if workgroupSize < 1 {
		workgroupSize = gpu.DefaultWorkgroupSize
	}

	log.Info().
		Str("version", gl.GoStr(gl.GetString(gl.VERSION))).
		Str("renderer", gl.GoStr(gl.GetString(gl.RENDERER))).
		Msg("OpenGL context ready")

	program, err := compileComputeShader(gpu.KernelSource(workgroupSize))
	if err != nil {
		return nil, err
	}
	log.Debug().Int("workgroup", workgroupSize).Msg("ray casting kernel compiled")

	return &Device{
		program:       program,
		workgroupSize: workgroupSize,
		results:       make(map[gpu.Handle][2]int),
		uniforms:      make(map[string]int32),
	}, nil
}

// compileComputeShader compiles and links a compute shader program
func compileComputeShader(source string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)

	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(msg))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compute shader compilation failed: %s", msg)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, shader)
	gl.LinkProgram(program)
	gl.DeleteShader(shader)

	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(msg))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("compute program link failed: %s", msg)
	}

	return program, nil
}

func uploadWords(words []uint32) uint32 {
	if len(words) == 0 {
		words = []uint32{0}
	}
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, id)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(words)*4, gl.Ptr(words), gl.STATIC_READ)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	return id
}

func (d *Device) UploadVolume(vol, labels *volume.Grid) error {
	if vol == nil {
		return fmt.Errorf("upload volume: nil grid")
	}
	if labels != nil && !vol.SameDims(labels) {
		return fmt.Errorf("upload volume: label dims do not match")
	}
	d.releaseVolume()

	d.volumeSSBO = uploadWords(gpu.PackVolume(vol))
	if labels != nil {
		d.labelSSBO = uploadWords(gpu.PackVolume(labels))
	} else {
		d.labelSSBO = uploadWords(nil)
	}

	log.Debug().Int("bytes", vol.Len()).Bool("labels", labels != nil).Msg("volume uploaded")
	return nil
}

func (d *Device) AllocResult(width, height int) (gpu.Handle, error) {
	if width < 1 || height < 1 {
		return 0, fmt.Errorf("invalid result buffer size %dx%d", width, height)
	}
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, id)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, width*height*4, nil, gl.DYNAMIC_COPY)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)

	h := gpu.Handle(id)
	d.results[h] = [2]int{width, height}
	return h, nil
}

func (d *Device) FreeResult(h gpu.Handle) {
	if _, ok := d.results[h]; !ok {
		return
	}
	id := uint32(h)
	gl.DeleteBuffers(1, &id)
	delete(d.results, h)
}

func (d *Device) uniform(name string) int32 {
	if loc, ok := d.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(d.program, gl.Str(name+"\x00"))
	d.uniforms[name] = loc
	return loc
}

func (d *Device) Dispatch(in, out gpu.Handle, p *gpu.KernelParams) error {
	size, ok := d.results[out]
	if !ok {
		return fmt.Errorf("unknown output buffer %d", out)
	}
	if _, ok := d.results[in]; !ok {
		return fmt.Errorf("unknown input buffer %d", in)
	}
	if d.volumeSSBO == 0 {
		return fmt.Errorf("dispatch before volume upload")
	}

	gl.UseProgram(d.program)

	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, gpu.BindingPrevious, uint32(in))
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, gpu.BindingCurrent, uint32(out))
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, gpu.BindingVolume, d.volumeSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, gpu.BindingLabels, d.labelSSBO)

	gl.Uniform2i(d.uniform("resolution"), p.Resolution[0], p.Resolution[1])
	gl.Uniform3fv(d.uniform("origin"), 1, &p.Origin[0])
	gl.Uniform3fv(d.uniform("forward"), 1, &p.Forward[0])
	gl.Uniform3fv(d.uniform("up"), 1, &p.Up[0])
	gl.Uniform3fv(d.uniform("horizontal"), 1, &p.Horizontal[0])
	gl.Uniform1f(d.uniform("focal"), p.Focal)
	gl.Uniform1f(d.uniform("aspect"), p.Aspect)
	gl.Uniform3fv(d.uniform("boxMin"), 1, &p.BoxMin[0])
	gl.Uniform3fv(d.uniform("boxMax"), 1, &p.BoxMax[0])
	gl.Uniform1f(d.uniform("cellSize"), p.CellSize)
	gl.Uniform3i(d.uniform("dims"), p.Dims[0], p.Dims[1], p.Dims[2])
	gl.Uniform1f(d.uniform("stepSize"), p.Step)
	gl.Uniform1i(d.uniform("composite"), p.Composite)
	gl.Uniform1i(d.uniform("maskEnabled"), p.MaskEnabled)
	gl.Uniform4fv(d.uniform("palette"), int32(len(p.Palette)), &p.Palette[0][0])

	gx, gy := gpu.Groups(size[0], size[1], d.workgroupSize)
	gl.DispatchCompute(gx, gy, 1)

	// Make the writes visible to the display pass and the next dispatch
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	gl.UseProgram(0)

	return nil
}

func (d *Device) ReadResult(h gpu.Handle, dst *image.RGBA) error {
	size, ok := d.results[h]
	if !ok {
		return fmt.Errorf("unknown buffer %d", h)
	}
	if dst.Rect.Dx() != size[0] || dst.Rect.Dy() != size[1] {
		return fmt.Errorf("destination is %dx%d, buffer is %dx%d", dst.Rect.Dx(), dst.Rect.Dy(), size[0], size[1])
	}

	words := make([]uint32, size[0]*size[1])
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, uint32(h))
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(words)*4, gl.Ptr(words))
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)

	for y := 0; y < size[1]; y++ {
		for x := 0; x < size[0]; x++ {
			dst.SetRGBA(dst.Rect.Min.X+x, dst.Rect.Min.Y+y, gpu.UnpackRGBA(words[y*size[0]+x]))
		}
	}
	return nil
}

func (d *Device) releaseVolume() {
	if d.volumeSSBO != 0 {
		gl.DeleteBuffers(1, &d.volumeSSBO)
		d.volumeSSBO = 0
	}
	if d.labelSSBO != 0 {
		gl.DeleteBuffers(1, &d.labelSSBO)
		d.labelSSBO = 0
	}
}

func (d *Device) Release() {
	for h := range d.results {
		d.FreeResult(h)
	}
	d.releaseVolume()
	if d.program != 0 {
		gl.DeleteProgram(d.program)
		d.program = 0
	}
}
