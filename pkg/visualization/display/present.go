package display

import (
	"fmt"
	"image"

	"github.com/go-gl/gl/v4.3-core/gl"

	"dvr/pkg/gpu"
)

// Fullscreen triangle generated from gl_VertexID
const presentVertexShader = `
#version 430 core

vec2 positions[3] = vec2[](
    vec2(-1.0, -1.0),
    vec2( 3.0, -1.0),
    vec2(-1.0,  3.0)
);

void main() {
    gl_Position = vec4(positions[gl_VertexID], 0.0, 1.0);
}
`

// Samples the host frame uploaded as a texture. Frames are rendered with a
// bottom-left origin so texel rows match window rows.
const textureFragmentShader = `
#version 430 core

uniform sampler2D frame;
uniform ivec2 resolution;
uniform float brightness;

out vec4 outColor;

void main() {
    ivec2 p = ivec2(gl_FragCoord.xy);
    if (p.x >= resolution.x || p.y >= resolution.y) {
        discard;
    }
    vec4 c = texelFetch(frame, p, 0);
    outColor = vec4(c.rgb * brightness, c.a);
}
`

// Reads the packed result buffer written by the compute kernel
const bufferFragmentShader = `
#version 430 core

layout(std430, binding = 1) readonly buffer Result {
    uint current[];
};

uniform ivec2 resolution;
uniform float brightness;

out vec4 outColor;

void main() {
    ivec2 p = ivec2(gl_FragCoord.xy);
    if (p.x >= resolution.x || p.y >= resolution.y) {
        discard;
    }
    uint idx = uint((resolution.y - 1 - p.y) * resolution.x + p.x);
    vec4 c = unpackUnorm4x8(current[idx]);
    outColor = vec4(c.rgb * brightness, c.a);
}
`

// presenter draws a finished frame to the default framebuffer
type presenter struct {
	textureProgram uint32
	bufferProgram  uint32
	vao            uint32

	texture   uint32
	texWidth  int
	texHeight int
}

func newPresenter() (*presenter, error) {
	tp, err := linkProgram(presentVertexShader, textureFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("texture present pass: %w", err)
	}
	bp, err := linkProgram(presentVertexShader, bufferFragmentShader)
	if err != nil {
		gl.DeleteProgram(tp)
		return nil, fmt.Errorf("buffer present pass: %w", err)
	}

	p := &presenter{textureProgram: tp, bufferProgram: bp}
	gl.GenVertexArrays(1, &p.vao)
	gl.GenTextures(1, &p.texture)
	return p, nil
}

// drawImage uploads img and draws it scaled by brightness
func (p *presenter) drawImage(img *image.RGBA, brightness float64) {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, p.texture)
	if w != p.texWidth || h != p.texHeight {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
		p.texWidth, p.texHeight = w, h
	}
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)

	gl.UseProgram(p.textureProgram)
	gl.Uniform1i(uniform(p.textureProgram, "frame"), 0)
	p.draw(p.textureProgram, w, h, brightness)
}

// drawBuffer draws the result buffer h, which holds a w x h frame
func (p *presenter) drawBuffer(buf gpu.Handle, w, h int, brightness float64) {
	gl.UseProgram(p.bufferProgram)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, gpu.BindingPrevious, uint32(buf))
	p.draw(p.bufferProgram, w, h, brightness)
}

func (p *presenter) draw(program uint32, w, h int, brightness float64) {
	gl.Uniform2i(uniform(program, "resolution"), int32(w), int32(h))
	gl.Uniform1f(uniform(program, "brightness"), float32(brightness))

	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.BindVertexArray(p.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	gl.UseProgram(0)
}

func (p *presenter) release() {
	gl.DeleteProgram(p.textureProgram)
	gl.DeleteProgram(p.bufferProgram)
	gl.DeleteVertexArrays(1, &p.vao)
	gl.DeleteTextures(1, &p.texture)
}

func uniform(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

// compileShader compiles a single shader
func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		msg := make([]byte, logLength+1)
		gl.GetShaderInfoLog(shader, logLength, nil, &msg[0])
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%s", msg)
	}

	return shader, nil
}

func linkProgram(vertexSource, fragmentSource string) (uint32, error) {
	vert, err := compileShader(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex shader: %w", err)
	}
	defer gl.DeleteShader(vert)

	frag, err := compileShader(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("fragment shader: %w", err)
	}
	defer gl.DeleteShader(frag)

	program := gl.CreateProgram()
	gl.AttachShader(program, vert)
	gl.AttachShader(program, frag)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		msg := make([]byte, logLength+1)
		gl.GetProgramInfoLog(program, logLength, nil, &msg[0])
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link failed: %s", msg)
	}

	return program, nil
}
