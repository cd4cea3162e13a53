package webgl

import (
	"github.com/gogpu/gputypes"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
)

// Opaque GL object handles. Zero is never a valid object.
type (
	Texture uint32
	Shader  uint32
	Program uint32
)

// Location is a uniform or attribute binding location; -1 means not found.
type Location int32

// NoLocation is returned for names the linker eliminated or never saw.
const NoLocation Location = -1

// ShaderKind selects the pipeline stage of a shader.
type ShaderKind int

// Shader stages.
const (
	VertexShader ShaderKind = iota
	FragmentShader
)

func (k ShaderKind) String() string {
	if k == VertexShader {
		return "vertex"
	}
	return "fragment"
}

// QuadTopology is the primitive topology of the full-screen quad.
const QuadTopology = gputypes.PrimitiveTopologyTriangleStrip

// QuadVertices is the full-screen quad drawn for every program: four
// vertices of x, y, z, s, t.
var QuadVertices = []float32{
	-1.0, 1.0, 0.0, 0.0, 1.0,
	-1.0, -1.0, 0.0, 0.0, 0.0,
	1.0, 1.0, 0.0, 1.0, 1.0,
	1.0, -1.0, 0.0, 1.0, 0.0,
}

// QuadStride is the byte stride of one quad vertex.
const QuadStride = 5 * 4

// quadBinding tracks the attribute locations the quad is bound to. Vertex
// attribute state belongs to the context, not to a program.
type quadBinding struct {
	bound                  bool
	position, textureCoord Location
}

// rebind records the locations and reports whether they differ from the
// current binding.
func (q *quadBinding) rebind(position, textureCoord Location) bool {
	if q.bound && q.position == position && q.textureCoord == textureCoord {
		return false
	}
	q.bound, q.position, q.textureCoord = true, position, textureCoord
	return true
}

// Context is the subset of a WebGL rendering context used by the backend.
// All calls are synchronous from the caller's point of view.
type Context interface {
	// Dialect is the shading language version of the context.
	Dialect() glsl.Dialect

	// MaxTextureSize is the largest texture dimension the device supports.
	MaxTextureSize() int

	// CreateTexture allocates a width x height texture of the given format.
	// data, if non-nil, holds width*height*components floats.
	CreateTexture(width, height int, format gputypes.TextureFormat, data []float32) (Texture, error)

	// UploadTexture replaces the contents of tex.
	UploadTexture(tex Texture, width, height int, format gputypes.TextureFormat, data []float32) error

	// ReadTexture reads tex back as RGBA floats, width*height*4 values.
	ReadTexture(tex Texture, width, height int) ([]float32, error)

	DeleteTexture(tex Texture)

	// CompileShader compiles source; failures return a *CompileError.
	CompileShader(kind ShaderKind, source string) (Shader, error)
	DeleteShader(sh Shader)

	// LinkProgram links a vertex and a fragment shader; failures return a *CompileError.
	LinkProgram(vertex, fragment Shader) (Program, error)
	UseProgram(p Program)
	DeleteProgram(p Program)

	UniformLocation(p Program, name string) Location
	AttribLocation(p Program, name string) Location

	// BindVertexAttributes binds the full-screen quad to the position and
	// texture coordinate attributes. Binding the locations that are already
	// bound is a no-op.
	BindVertexAttributes(position, textureCoord Location)

	// AttachFramebuffer makes tex the render target and sets the viewport.
	AttachFramebuffer(tex Texture, width, height int) error

	// BindTexture binds tex to texture unit and points the sampler at it.
	BindTexture(tex Texture, unit int, sampler Location)

	Uniform1f(loc Location, v float32)
	Uniform1i(loc Location, v int32)
	Uniform1fv(loc Location, v []float32)
	Uniform1iv(loc Location, v []int32)

	// Draw rasterizes the quad into the attached framebuffer.
	Draw() error

	Dispose()
}
