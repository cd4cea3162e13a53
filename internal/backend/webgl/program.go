package webgl

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// OperatorID identifies an operator instance for program caching.
type OperatorID uint64

var operatorCounter atomic.Uint64

func nextOperatorID() OperatorID {
	return OperatorID(operatorCounter.Add(1))
}

// ProgramInfo describes one shader pass of an operator.
type ProgramInfo struct {
	// Name is used in logs and CLI output.
	Name string
	// InputLayouts are the layouts of the sampled textures, one per sampler.
	InputLayouts []*TextureLayout
	// Samplers names the sampler uniforms in binding order.
	Samplers []string
	// OutputLayout is the layout of the render target.
	OutputLayout *TextureLayout
	// Source is the operator code. Sampler uniforms are declared
	// automatically.
	Source string
	// HasMain reports whether Source provides main(). Otherwise it provides
	// float process(int indices[N]) and main() is generated.
	HasMain bool
}

// RunData binds the textures and uniform values of one pass.
type RunData struct {
	Inputs   []*TextureData
	Output   *TextureData
	Uniforms map[string]any
	// Result is the tensor handed back to the caller for Output, nil for
	// scratch passes.
	Result *tensor.Tensor
}

// Artifact is a linked program ready to run.
type Artifact struct {
	Info    *ProgramInfo
	Program Program
	// Text is the assembled fragment shader.
	Text    string

	uniforms     []glsl.Variable
	locations    map[string]Location
	position     Location
	textureCoord Location
}

// Uniforms returns the uniform declarations of the fragment shader.
func (a *Artifact) Uniforms() []glsl.Variable { return a.uniforms }

type artifactKey struct {
	op   OperatorID
	pass int
}

// ProgramManager compiles, caches and runs shader programs.
type ProgramManager struct {
	ctx     Context
	dialect glsl.Dialect

	vertex    Shader
	artifacts map[artifactKey]*Artifact
	passes    map[OperatorID]int
}

// NewProgramManager creates a manager over ctx.
func NewProgramManager(ctx Context) *ProgramManager {
	return &ProgramManager{
		ctx:       ctx,
		dialect:   ctx.Dialect(),
		artifacts: make(map[artifactKey]*Artifact),
		passes:    make(map[OperatorID]int),
	}
}

// Get returns the artifacts built for op, one per pass.
func (m *ProgramManager) Get(op OperatorID) ([]*Artifact, bool) {
	n, ok := m.passes[op]
	if !ok {
		return nil, false
	}
	out := make([]*Artifact, n)
	for i := range out {
		out[i] = m.artifacts[artifactKey{op, i}]
	}
	return out, true
}

// Len returns the number of cached artifacts.
func (m *ProgramManager) Len() int { return len(m.artifacts) }

// FragmentSource assembles the fragment shader of info without compiling it.
func (m *ProgramManager) FragmentSource(info *ProgramInfo) (*glsl.Assembly, error) {
	return assemble(m.dialect, info)
}

func assemble(d glsl.Dialect, info *ProgramInfo) (*glsl.Assembly, error) {
	var src strings.Builder
	for _, s := range info.Samplers {
		src.WriteString("uniform sampler2D " + s + ";\n")
	}
	src.WriteString(info.Source)

	entry := glsl.EntryPoint{Rank: 1}
	if info.OutputLayout != nil {
		entry.Rank = len(info.OutputLayout.ShaderShape())
		entry.PackedExtent = info.OutputLayout.PackedExtent()
	}
	return glsl.Assemble(d, NewRoutineLibrary(d, info), glsl.Program{
		Source:  src.String(),
		HasMain: info.HasMain,
		Entry:   entry,
	})
}

// Build assembles, compiles and links info.
func (m *ProgramManager) Build(info *ProgramInfo) (*Artifact, error) {
	asm, err := assemble(m.dialect, info)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", info.Name, err)
	}

	if m.vertex == 0 {
		vs, err := m.ctx.CompileShader(VertexShader, m.dialect.VertexShader())
		if err != nil {
			return nil, err
		}
		m.vertex = vs
	}

	fs, err := m.ctx.CompileShader(FragmentShader, asm.Text)
	if err != nil {
		return nil, withSource(err, asm.Text)
	}
	prog, err := m.ctx.LinkProgram(m.vertex, fs)
	m.ctx.DeleteShader(fs)
	if err != nil {
		return nil, withSource(err, asm.Text)
	}

	a := &Artifact{
		Info:         info,
		Program:      prog,
		Text:         asm.Text,
		uniforms:     asm.Uniforms,
		locations:    make(map[string]Location, len(asm.Uniforms)),
		position:     m.ctx.AttribLocation(prog, "position"),
		textureCoord: m.ctx.AttribLocation(prog, "textureCoord"),
	}
	for _, u := range asm.Uniforms {
		a.locations[u.Name] = m.ctx.UniformLocation(prog, u.Name)
	}
	onnx.Logger().Debug("program built", "name", info.Name, "program", prog, "routines", len(asm.Routines))
	return a, nil
}

// withSource attaches the fragment shader text to a CompileError that lacks
// it.
func withSource(err error, text string) error {
	var ce *CompileError
	if errors.As(err, &ce) && ce.Source == "" {
		ce.Source = text
	}
	return err
}

// BuildAll builds every pass of op. Either all passes are registered or,
// on failure, none is and already linked programs are deleted.
func (m *ProgramManager) BuildAll(op OperatorID, infos []*ProgramInfo) ([]*Artifact, error) {
	built := make([]*Artifact, 0, len(infos))
	for i, info := range infos {
		a, err := m.Build(info)
		if err != nil {
			for _, b := range built {
				m.ctx.DeleteProgram(b.Program)
			}
			return nil, fmt.Errorf("pass %d: %w", i, err)
		}
		built = append(built, a)
	}

	m.Release(op)
	for i, a := range built {
		m.artifacts[artifactKey{op, i}] = a
	}
	m.passes[op] = len(built)
	return built, nil
}

// Release deletes the programs of op.
func (m *ProgramManager) Release(op OperatorID) {
	n, ok := m.passes[op]
	if !ok {
		return
	}
	for i := 0; i < n; i++ {
		key := artifactKey{op, i}
		if a := m.artifacts[key]; a != nil {
			m.ctx.DeleteProgram(a.Program)
		}
		delete(m.artifacts, key)
	}
	delete(m.passes, op)
}

// Run executes one pass: the output texture becomes the render target, the
// inputs are bound to the samplers in declaration order, uniforms are set
// and the quad is drawn.
func (m *ProgramManager) Run(a *Artifact, rd *RunData) error {
	if len(rd.Inputs) != len(a.Info.Samplers) {
		return fmt.Errorf("%s: %d input textures for %d samplers", a.Info.Name, len(rd.Inputs), len(a.Info.Samplers))
	}
	for _, in := range rd.Inputs {
		if in.released {
			return fmt.Errorf("%s: input texture %d: %w", a.Info.Name, in.Texture, ErrReleased)
		}
	}

	m.ctx.UseProgram(a.Program)
	out := rd.Output
	if err := m.ctx.AttachFramebuffer(out.Texture, out.Width, out.Height); err != nil {
		return fmt.Errorf("%s: %w", a.Info.Name, err)
	}

	unit := 0
	for _, u := range a.uniforms {
		loc := a.locations[u.Name]
		if u.IsSampler() {
			idx := indexOf(a.Info.Samplers, u.Name)
			if idx < 0 {
				return fmt.Errorf("%s: sampler %s has no input", a.Info.Name, u.Name)
			}
			m.ctx.BindTexture(rd.Inputs[idx].Texture, unit, loc)
			unit++
			continue
		}
		v, ok := rd.Uniforms[u.Name]
		if !ok {
			return fmt.Errorf("%s: missing value for uniform %s", a.Info.Name, u.Name)
		}
		if err := m.setUniform(loc, u, v); err != nil {
			return fmt.Errorf("%s: %w", a.Info.Name, err)
		}
	}

	m.ctx.BindVertexAttributes(a.position, a.textureCoord)
	return m.ctx.Draw()
}

func (m *ProgramManager) setUniform(loc Location, u glsl.Variable, v any) error {
	switch x := v.(type) {
	case float32:
		m.ctx.Uniform1f(loc, x)
	case float64:
		m.ctx.Uniform1f(loc, float32(x))
	case int:
		m.ctx.Uniform1i(loc, int32(x))
	case int32:
		m.ctx.Uniform1i(loc, x)
	case bool:
		var i int32
		if x {
			i = 1
		}
		m.ctx.Uniform1i(loc, i)
	case []float32:
		m.ctx.Uniform1fv(loc, x)
	case []int32:
		m.ctx.Uniform1iv(loc, x)
	case []int:
		vals := make([]int32, len(x))
		for i, n := range x {
			vals[i] = int32(n)
		}
		m.ctx.Uniform1iv(loc, vals)
	default:
		return fmt.Errorf("uniform %s %s: unsupported value type %T", u.Type, u.Name, v)
	}
	return nil
}

// Dispose deletes every program and the shared vertex shader.
func (m *ProgramManager) Dispose() {
	for _, a := range m.artifacts {
		m.ctx.DeleteProgram(a.Program)
	}
	m.artifacts = make(map[artifactKey]*Artifact)
	m.passes = make(map[OperatorID]int)
	if m.vertex != 0 {
		m.ctx.DeleteShader(m.vertex)
		m.vertex = 0
	}
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
