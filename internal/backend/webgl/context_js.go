//go:build js && wasm

package webgl

import (
	"fmt"
	"syscall/js"
	"unsafe"

	"github.com/gogpu/gputypes"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
)

type glConsts struct {
	texture2D         int
	texture0          int
	textureMinFilter  int
	textureMagFilter  int
	textureWrapS      int
	textureWrapT      int
	nearest           int
	clampToEdge       int
	rgba              int
	red               int
	rgba32f           int
	r32f              int
	floatType         int
	framebuffer       int
	framebufferStatus int
	colorAttachment0  int
	arrayBuffer       int
	staticDraw        int
	triangleStrip     int
	compileStatus     int
	linkStatus        int
	vertexShader      int
	fragmentShader    int
	maxTextureSize    int
}

// jsContext drives a browser WebGL or WebGL2 rendering context.
type jsContext struct {
	gl      js.Value
	dialect glsl.Dialect
	consts  glConsts
	maxSize int

	fbo     js.Value
	quad    js.Value
	binding quadBinding

	next      uint32
	textures  map[Texture]js.Value
	shaders   map[Shader]js.Value
	programs  map[Program]js.Value
	locations []js.Value
}

func newPlatformContext(d glsl.Dialect) (Context, error) {
	var canvas js.Value
	if oc := js.Global().Get("OffscreenCanvas"); oc.Truthy() {
		canvas = oc.New(1, 1)
	} else if doc := js.Global().Get("document"); doc.Truthy() {
		canvas = doc.Call("createElement", "canvas")
	} else {
		return nil, fmt.Errorf("%w: no canvas available", ErrNoContext)
	}

	attrs := map[string]any{
		"alpha":                 false,
		"depth":                 false,
		"antialias":             false,
		"stencil":               false,
		"preserveDrawingBuffer": false,
		"premultipliedAlpha":    false,
	}
	gl := canvas.Call("getContext", d.String(), attrs)
	if !gl.Truthy() {
		return nil, fmt.Errorf("%w: getContext(%q) returned null", ErrNoContext, d.String())
	}

	ext := "OES_texture_float"
	if d == glsl.WebGL2 {
		ext = "EXT_color_buffer_float"
	}
	if !gl.Call("getExtension", ext).Truthy() {
		return nil, fmt.Errorf("%w: %s is not supported", ErrNoContext, ext)
	}

	c := &jsContext{
		gl:       gl,
		dialect:  d,
		textures: make(map[Texture]js.Value),
		shaders:  make(map[Shader]js.Value),
		programs: make(map[Program]js.Value),
	}
	c.initConsts()
	c.maxSize = gl.Call("getParameter", c.consts.maxTextureSize).Int()
	c.fbo = gl.Call("createFramebuffer")
	return c, nil
}

func (c *jsContext) initConsts() {
	get := func(name string) int {
		v := c.gl.Get(name)
		if v.IsUndefined() {
			return 0
		}
		return v.Int()
	}
	c.consts = glConsts{
		texture2D:         get("TEXTURE_2D"),
		texture0:          get("TEXTURE0"),
		textureMinFilter:  get("TEXTURE_MIN_FILTER"),
		textureMagFilter:  get("TEXTURE_MAG_FILTER"),
		textureWrapS:      get("TEXTURE_WRAP_S"),
		textureWrapT:      get("TEXTURE_WRAP_T"),
		nearest:           get("NEAREST"),
		clampToEdge:       get("CLAMP_TO_EDGE"),
		rgba:              get("RGBA"),
		red:               get("RED"),
		rgba32f:           get("RGBA32F"),
		r32f:              get("R32F"),
		floatType:         get("FLOAT"),
		framebuffer:       get("FRAMEBUFFER"),
		framebufferStatus: get("FRAMEBUFFER_COMPLETE"),
		colorAttachment0:  get("COLOR_ATTACHMENT0"),
		arrayBuffer:       get("ARRAY_BUFFER"),
		staticDraw:        get("STATIC_DRAW"),
		triangleStrip:     get("TRIANGLE_STRIP"),
		compileStatus:     get("COMPILE_STATUS"),
		linkStatus:        get("LINK_STATUS"),
		vertexShader:      get("VERTEX_SHADER"),
		fragmentShader:    get("FRAGMENT_SHADER"),
		maxTextureSize:    get("MAX_TEXTURE_SIZE"),
	}
}

func (c *jsContext) handle() uint32 {
	c.next++
	return c.next
}

func (c *jsContext) Dialect() glsl.Dialect { return c.dialect }
func (c *jsContext) MaxTextureSize() int   { return c.maxSize }

// formats returns internal format and pixel format for a texture format.
func (c *jsContext) formats(format gputypes.TextureFormat) (internal, pixel int) {
	if c.dialect == glsl.WebGL1 {
		return c.consts.rgba, c.consts.rgba
	}
	if format == gputypes.TextureFormatR32Float {
		return c.consts.r32f, c.consts.red
	}
	return c.consts.rgba32f, c.consts.rgba
}

func float32Array(data []float32) js.Value {
	arr := js.Global().Get("Float32Array").New(len(data))
	if len(data) == 0 {
		return arr
	}
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
	js.CopyBytesToJS(js.Global().Get("Uint8Array").New(arr.Get("buffer")), bytes)
	return arr
}

func int32Array(data []int32) js.Value {
	arr := js.Global().Get("Int32Array").New(len(data))
	if len(data) == 0 {
		return arr
	}
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
	js.CopyBytesToJS(js.Global().Get("Uint8Array").New(arr.Get("buffer")), bytes)
	return arr
}

func (c *jsContext) CreateTexture(width, height int, format gputypes.TextureFormat, data []float32) (Texture, error) {
	tex := c.gl.Call("createTexture")
	if !tex.Truthy() {
		return 0, fmt.Errorf("createTexture %dx%d failed", width, height)
	}
	k := c.consts
	c.gl.Call("bindTexture", k.texture2D, tex)
	c.gl.Call("texParameteri", k.texture2D, k.textureMinFilter, k.nearest)
	c.gl.Call("texParameteri", k.texture2D, k.textureMagFilter, k.nearest)
	c.gl.Call("texParameteri", k.texture2D, k.textureWrapS, k.clampToEdge)
	c.gl.Call("texParameteri", k.texture2D, k.textureWrapT, k.clampToEdge)

	internal, pixel := c.formats(format)
	pixels := js.Null()
	if data != nil {
		pixels = float32Array(data)
	}
	c.gl.Call("texImage2D", k.texture2D, 0, internal, width, height, 0, pixel, k.floatType, pixels)
	c.gl.Call("bindTexture", k.texture2D, js.Null())

	h := Texture(c.handle())
	c.textures[h] = tex
	return h, nil
}

func (c *jsContext) UploadTexture(tex Texture, width, height int, format gputypes.TextureFormat, data []float32) error {
	t, ok := c.textures[tex]
	if !ok {
		return fmt.Errorf("upload to unknown texture %d", tex)
	}
	_, pixel := c.formats(format)
	c.gl.Call("bindTexture", c.consts.texture2D, t)
	c.gl.Call("texSubImage2D", c.consts.texture2D, 0, 0, 0, width, height, pixel, c.consts.floatType, float32Array(data))
	c.gl.Call("bindTexture", c.consts.texture2D, js.Null())
	return nil
}

func (c *jsContext) ReadTexture(tex Texture, width, height int) ([]float32, error) {
	if err := c.AttachFramebuffer(tex, width, height); err != nil {
		return nil, err
	}
	n := width * height * 4
	arr := js.Global().Get("Float32Array").New(n)
	c.gl.Call("readPixels", 0, 0, width, height, c.consts.rgba, c.consts.floatType, arr)

	out := make([]float32, n)
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), n*4)
	js.CopyBytesToGo(bytes, js.Global().Get("Uint8Array").New(arr.Get("buffer")))
	return out, nil
}

func (c *jsContext) DeleteTexture(tex Texture) {
	if t, ok := c.textures[tex]; ok {
		c.gl.Call("deleteTexture", t)
		delete(c.textures, tex)
	}
}

func (c *jsContext) CompileShader(kind ShaderKind, source string) (Shader, error) {
	typ := c.consts.fragmentShader
	if kind == VertexShader {
		typ = c.consts.vertexShader
	}
	sh := c.gl.Call("createShader", typ)
	c.gl.Call("shaderSource", sh, source)
	c.gl.Call("compileShader", sh)
	if !c.gl.Call("getShaderParameter", sh, c.consts.compileStatus).Bool() {
		log := c.gl.Call("getShaderInfoLog", sh).String()
		c.gl.Call("deleteShader", sh)
		return 0, &CompileError{Stage: kind.String(), Log: log, Source: source}
	}
	h := Shader(c.handle())
	c.shaders[h] = sh
	return h, nil
}

func (c *jsContext) DeleteShader(sh Shader) {
	if s, ok := c.shaders[sh]; ok {
		c.gl.Call("deleteShader", s)
		delete(c.shaders, sh)
	}
}

func (c *jsContext) LinkProgram(vertex, fragment Shader) (Program, error) {
	vs, ok := c.shaders[vertex]
	if !ok {
		return 0, &CompileError{Stage: "link", Log: "unknown vertex shader"}
	}
	fs, ok := c.shaders[fragment]
	if !ok {
		return 0, &CompileError{Stage: "link", Log: "unknown fragment shader"}
	}
	p := c.gl.Call("createProgram")
	c.gl.Call("attachShader", p, vs)
	c.gl.Call("attachShader", p, fs)
	c.gl.Call("linkProgram", p)
	if !c.gl.Call("getProgramParameter", p, c.consts.linkStatus).Bool() {
		log := c.gl.Call("getProgramInfoLog", p).String()
		c.gl.Call("deleteProgram", p)
		return 0, &CompileError{Stage: "link", Log: log}
	}
	h := Program(c.handle())
	c.programs[h] = p
	return h, nil
}

func (c *jsContext) UseProgram(p Program) {
	c.gl.Call("useProgram", c.programs[p])
}

func (c *jsContext) DeleteProgram(p Program) {
	if prog, ok := c.programs[p]; ok {
		c.gl.Call("deleteProgram", prog)
		delete(c.programs, p)
	}
}

// UniformLocation maps the browser's location object to an index into
// c.locations.
func (c *jsContext) UniformLocation(p Program, name string) Location {
	loc := c.gl.Call("getUniformLocation", c.programs[p], name)
	if !loc.Truthy() {
		return NoLocation
	}
	c.locations = append(c.locations, loc)
	return Location(len(c.locations) - 1)
}

func (c *jsContext) uniform(loc Location) (js.Value, bool) {
	if loc < 0 || int(loc) >= len(c.locations) {
		return js.Null(), false
	}
	return c.locations[loc], true
}

func (c *jsContext) AttribLocation(p Program, name string) Location {
	return Location(c.gl.Call("getAttribLocation", c.programs[p], name).Int())
}

func (c *jsContext) BindVertexAttributes(position, textureCoord Location) {
	if !c.binding.rebind(position, textureCoord) {
		return
	}
	k := c.consts
	if !c.quad.Truthy() {
		c.quad = c.gl.Call("createBuffer")
		c.gl.Call("bindBuffer", k.arrayBuffer, c.quad)
		c.gl.Call("bufferData", k.arrayBuffer, float32Array(QuadVertices), k.staticDraw)
	}
	c.gl.Call("bindBuffer", k.arrayBuffer, c.quad)
	if position != NoLocation {
		c.gl.Call("vertexAttribPointer", int(position), 3, k.floatType, false, QuadStride, 0)
		c.gl.Call("enableVertexAttribArray", int(position))
	}
	if textureCoord != NoLocation {
		c.gl.Call("vertexAttribPointer", int(textureCoord), 2, k.floatType, false, QuadStride, 12)
		c.gl.Call("enableVertexAttribArray", int(textureCoord))
	}
}

func (c *jsContext) AttachFramebuffer(tex Texture, width, height int) error {
	t, ok := c.textures[tex]
	if !ok {
		return fmt.Errorf("attach unknown texture %d", tex)
	}
	k := c.consts
	c.gl.Call("bindFramebuffer", k.framebuffer, c.fbo)
	c.gl.Call("framebufferTexture2D", k.framebuffer, k.colorAttachment0, k.texture2D, t, 0)
	if status := c.gl.Call("checkFramebufferStatus", k.framebuffer).Int(); status != k.framebufferStatus {
		return fmt.Errorf("framebuffer incomplete (status 0x%x) for %dx%d texture", status, width, height)
	}
	c.gl.Call("viewport", 0, 0, width, height)
	c.gl.Call("scissor", 0, 0, width, height)
	return nil
}

func (c *jsContext) BindTexture(tex Texture, unit int, sampler Location) {
	c.gl.Call("activeTexture", c.consts.texture0+unit)
	c.gl.Call("bindTexture", c.consts.texture2D, c.textures[tex])
	if loc, ok := c.uniform(sampler); ok {
		c.gl.Call("uniform1i", loc, unit)
	}
}

func (c *jsContext) Uniform1f(loc Location, v float32) {
	if l, ok := c.uniform(loc); ok {
		c.gl.Call("uniform1f", l, v)
	}
}

func (c *jsContext) Uniform1i(loc Location, v int32) {
	if l, ok := c.uniform(loc); ok {
		c.gl.Call("uniform1i", l, v)
	}
}

func (c *jsContext) Uniform1fv(loc Location, v []float32) {
	if l, ok := c.uniform(loc); ok {
		c.gl.Call("uniform1fv", l, float32Array(v))
	}
}

func (c *jsContext) Uniform1iv(loc Location, v []int32) {
	if l, ok := c.uniform(loc); ok {
		c.gl.Call("uniform1iv", l, int32Array(v))
	}
}

func (c *jsContext) Draw() error {
	c.gl.Call("drawArrays", c.consts.triangleStrip, 0, 4)
	if e := c.gl.Call("getError").Int(); e != 0 {
		return fmt.Errorf("draw failed: GL error 0x%x", e)
	}
	return nil
}

func (c *jsContext) Dispose() {
	for h := range c.programs {
		c.DeleteProgram(h)
	}
	for h := range c.shaders {
		c.DeleteShader(h)
	}
	for h := range c.textures {
		c.DeleteTexture(h)
	}
	if c.quad.Truthy() {
		c.gl.Call("deleteBuffer", c.quad)
	}
	c.gl.Call("deleteFramebuffer", c.fbo)
	c.locations = nil
	if lose := c.gl.Call("getExtension", "WEBGL_lose_context"); lose.Truthy() {
		lose.Call("loseContext")
	}
}
