package webgl

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
)

// OfflineContext implements Context without a GPU. Textures live in CPU
// memory, shaders are recorded rather than compiled and Draw leaves the
// render target untouched. It backs shader inspection tooling and lets the
// cache and program management logic run headless.
type OfflineContext struct {
	dialect glsl.Dialect
	maxSize int

	// FailCompile, when set, is consulted for every compiled shader; a
	// non-empty result is reported as the compile log of a failure.
	FailCompile func(kind ShaderKind, source string) string

	mu       sync.Mutex
	next     uint32
	textures map[Texture]*offlineTexture
	shaders  map[Shader]string
	programs map[Program]offlineProgram
	current  Program
	target   Texture
	binding  quadBinding
	stats    OfflineStats
}

type offlineTexture struct {
	width, height int
	format        gputypes.TextureFormat
	data          []float32
}

type offlineProgram struct {
	vertex, fragment Shader
	locations        map[string]Location
}

// OfflineStats counts the calls made on an OfflineContext.
type OfflineStats struct {
	TexturesCreated int
	TexturesDeleted int
	Uploads         int
	Reads           int
	Compiles        int
	Links           int
	ProgramsDeleted int
	Draws           int
	AttributeBinds  int
}

var identRe = regexp.MustCompile(`\b[A-Za-z_]\w*\b`)

// DefaultMaxTextureSize is the texture limit assumed when no device reports
// one.
func DefaultMaxTextureSize() int {
	return int(gputypes.DefaultLimits().MaxTextureDimension2D)
}

// NewOfflineContext returns an OfflineContext for the given dialect and
// maximum texture size.
func NewOfflineContext(d glsl.Dialect, maxTextureSize int) *OfflineContext {
	return &OfflineContext{
		dialect:  d,
		maxSize:  maxTextureSize,
		textures: make(map[Texture]*offlineTexture),
		shaders:  make(map[Shader]string),
		programs: make(map[Program]offlineProgram),
	}
}

func (c *OfflineContext) handle() uint32 {
	c.next++
	return c.next
}

func (c *OfflineContext) Dialect() glsl.Dialect { return c.dialect }
func (c *OfflineContext) MaxTextureSize() int   { return c.maxSize }

// Stats returns a snapshot of the call counters.
func (c *OfflineContext) Stats() OfflineStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LiveTextures returns the number of allocated textures.
func (c *OfflineContext) LiveTextures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.textures)
}

// ShaderSource returns the recorded source of sh.
func (c *OfflineContext) ShaderSource(sh Shader) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shaders[sh]
}

// RenderTarget returns the texture attached by the last AttachFramebuffer.
func (c *OfflineContext) RenderTarget() Texture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func components(format gputypes.TextureFormat) int {
	if format == gputypes.TextureFormatR32Float {
		return 1
	}
	return 4
}

func (c *OfflineContext) CreateTexture(width, height int, format gputypes.TextureFormat, data []float32) (Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if width <= 0 || height <= 0 || width > c.maxSize || height > c.maxSize {
		return 0, fmt.Errorf("texture %dx%d outside device limits (%d)", width, height, c.maxSize)
	}
	tex := Texture(c.handle())
	t := &offlineTexture{width: width, height: height, format: format, data: make([]float32, width*height*components(format))}
	if data != nil {
		copy(t.data, data)
		c.stats.Uploads++
	}
	c.textures[tex] = t
	c.stats.TexturesCreated++
	return tex, nil
}

func (c *OfflineContext) UploadTexture(tex Texture, width, height int, format gputypes.TextureFormat, data []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.textures[tex]
	if !ok {
		return fmt.Errorf("upload to unknown texture %d", tex)
	}
	if t.width != width || t.height != height || t.format != format {
		return fmt.Errorf("upload of %dx%d %v into %dx%d %v texture", width, height, format, t.width, t.height, t.format)
	}
	copy(t.data, data)
	c.stats.Uploads++
	return nil
}

func (c *OfflineContext) ReadTexture(tex Texture, width, height int) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.textures[tex]
	if !ok {
		return nil, fmt.Errorf("read of unknown texture %d", tex)
	}
	c.stats.Reads++
	n := width * height
	out := make([]float32, n*4)
	if components(t.format) == 4 {
		copy(out, t.data)
		return out, nil
	}
	for i := 0; i < n && i < len(t.data); i++ {
		out[i*4] = t.data[i]
		out[i*4+3] = 1
	}
	return out, nil
}

func (c *OfflineContext) DeleteTexture(tex Texture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.textures[tex]; ok {
		delete(c.textures, tex)
		c.stats.TexturesDeleted++
	}
}

func (c *OfflineContext) CompileShader(kind ShaderKind, source string) (Shader, error) {
	if c.FailCompile != nil {
		if log := c.FailCompile(kind, source); log != "" {
			return 0, &CompileError{Stage: kind.String(), Log: log, Source: source}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sh := Shader(c.handle())
	c.shaders[sh] = source
	c.stats.Compiles++
	return sh, nil
}

func (c *OfflineContext) DeleteShader(sh Shader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shaders, sh)
}

func (c *OfflineContext) LinkProgram(vertex, fragment Shader) (Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.shaders[vertex]; !ok {
		return 0, &CompileError{Stage: "link", Log: "unknown vertex shader"}
	}
	src, ok := c.shaders[fragment]
	if !ok {
		return 0, &CompileError{Stage: "link", Log: "unknown fragment shader"}
	}

	locations := make(map[string]Location)
	for _, id := range identRe.FindAllString(src, -1) {
		if _, seen := locations[id]; !seen {
			locations[id] = Location(len(locations))
		}
	}
	p := Program(c.handle())
	c.programs[p] = offlineProgram{vertex: vertex, fragment: fragment, locations: locations}
	c.stats.Links++
	return p, nil
}

func (c *OfflineContext) UseProgram(p Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = p
}

func (c *OfflineContext) DeleteProgram(p Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.programs[p]; ok {
		delete(c.programs, p)
		c.stats.ProgramsDeleted++
	}
}

// LivePrograms returns the number of linked, undeleted programs.
func (c *OfflineContext) LivePrograms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.programs)
}

func (c *OfflineContext) UniformLocation(p Program, name string) Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	if loc, ok := c.programs[p].locations[name]; ok {
		return loc
	}
	return NoLocation
}

func (c *OfflineContext) AttribLocation(_ Program, name string) Location {
	switch name {
	case "position":
		return 0
	case "textureCoord":
		return 1
	default:
		return NoLocation
	}
}

func (c *OfflineContext) BindVertexAttributes(position, textureCoord Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.binding.rebind(position, textureCoord) {
		c.stats.AttributeBinds++
	}
}

func (c *OfflineContext) AttachFramebuffer(tex Texture, width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.textures[tex]
	if !ok {
		return fmt.Errorf("framebuffer attachment of unknown texture %d", tex)
	}
	if t.width != width || t.height != height {
		return fmt.Errorf("viewport %dx%d does not match texture %dx%d", width, height, t.width, t.height)
	}
	c.target = tex
	return nil
}

func (c *OfflineContext) BindTexture(Texture, int, Location) {}
func (c *OfflineContext) Uniform1f(Location, float32)         {}
func (c *OfflineContext) Uniform1i(Location, int32)           {}
func (c *OfflineContext) Uniform1fv(Location, []float32)      {}
func (c *OfflineContext) Uniform1iv(Location, []int32)        {}

func (c *OfflineContext) Draw() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == 0 {
		return fmt.Errorf("draw without a program")
	}
	if c.target == 0 {
		return fmt.Errorf("draw without a render target")
	}
	c.stats.Draws++
	return nil
}

func (c *OfflineContext) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textures = make(map[Texture]*offlineTexture)
	c.shaders = make(map[Shader]string)
	c.programs = make(map[Program]offlineProgram)
	c.binding = quadBinding{}
}
