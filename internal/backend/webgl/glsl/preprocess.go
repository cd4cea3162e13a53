package glsl

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	uniformRe   = regexp.MustCompile(`(?m)^\s*uniform (?:\w+ )?(\w+) (\w+)(\[\d+\])?;`)
	attributeRe = regexp.MustCompile(`(?m)^\s*attribute (\w+) (\w+);`)
)

// Variable is an extracted uniform or attribute declaration.
type Variable struct {
	Type        string
	Name        string
	ArraySuffix string // "[N]" for arrays, empty otherwise
}

// IsArray reports whether the variable was declared with an array suffix.
func (v Variable) IsArray() bool { return v.ArraySuffix != "" }

// IsSampler reports whether the variable is a 2-D sampler.
func (v Variable) IsSampler() bool { return v.Type == "sampler2D" }

// Declaration renders the canonical uniform declaration.
func (v Variable) Declaration() string {
	return "uniform " + v.Type + " " + v.Name + v.ArraySuffix + ";"
}

// ExtractUniforms collects the uniform declarations of src in source order
// and returns src with the declarations removed.
func ExtractUniforms(src string) ([]Variable, string) {
	var vars []Variable
	for _, m := range uniformRe.FindAllStringSubmatch(src, -1) {
		vars = append(vars, Variable{Type: m[1], Name: m[2], ArraySuffix: m[3]})
	}
	return vars, uniformRe.ReplaceAllString(src, "")
}

// ExtractAttributes collects the attribute declarations of src.
func ExtractAttributes(src string) []Variable {
	var vars []Variable
	for _, m := range attributeRe.FindAllStringSubmatch(src, -1) {
		vars = append(vars, Variable{Type: m[1], Name: m[2]})
	}
	return vars
}

// Samplers returns the names of the sampler uniforms in declaration order.
func Samplers(vars []Variable) []string {
	var names []string
	for _, v := range vars {
		if v.IsSampler() {
			names = append(names, v.Name)
		}
	}
	return names
}

// EntryPoint describes the main() generated for process()-only programs.
type EntryPoint struct {
	// Rank of the output index vector handed to process(). Scalars use 1.
	Rank int
	// PackedExtent is the true size of the last output axis when the output
	// holds four elements per texel, zero for unpacked outputs.
	PackedExtent int
}

// Program is the input of Assemble.
type Program struct {
	Source  string
	HasMain bool
	Entry   EntryPoint
}

// Assembly is the result of Assemble.
type Assembly struct {
	Text     string
	Uniforms []Variable
	Routines []string
}

// Assemble turns operator source into a complete fragment shader.
// The output is a pure function of its inputs.
func Assemble(d Dialect, lib *Library, p Program) (*Assembly, error) {
	uniforms, body := ExtractUniforms(p.Source)

	if !p.HasMain {
		if !lib.has("toVec") {
			return nil, &AssemblyError{Routine: "toVec", Reason: "generated main requires the toVec routine"}
		}
		body = strings.TrimRight(body, " \t\n") + "\n" + Main(d, p.Entry)
	}

	routines, err := lib.Resolve(body)
	if err != nil {
		return nil, err
	}

	unit, err := Expand(Unit{Dialect: d, Uniforms: uniforms, Routines: routines, Body: body})
	if err != nil {
		return nil, err
	}

	names := make([]string, len(routines))
	for i, r := range routines {
		names[i] = r.Name
	}
	return &Assembly{Text: Render(unit), Uniforms: uniforms, Routines: names}, nil
}

func (l *Library) has(name string) bool {
	_, ok := l.routines.Get(name)
	return ok
}

// Main generates the entry point that maps the current output texel to an
// index vector, evaluates process() and writes the result.
func Main(d Dialect, e EntryPoint) string {
	rank := e.Rank
	if rank < 1 {
		rank = 1
	}
	var b strings.Builder
	fmt.Fprintf(&b, "void main() {\n  int indices[%d];\n  toVec(TexCoords, indices);\n", rank)

	if e.PackedExtent <= 0 {
		fmt.Fprintf(&b, "  vec4 result = vec4(process(indices));\n  %s = result;\n}\n", d.Output())
		return b.String()
	}

	last := rank - 1
	fmt.Fprintf(&b, "  int base = indices[%d] * 4;\n  vec4 result = vec4(0.0);\n", last)
	fmt.Fprintf(&b, "  indices[%d] = base;\n  result.r = process(indices);\n", last)
	for lane, channel := range []string{"g", "b", "a"} {
		offset := lane + 1
		fmt.Fprintf(&b, "  if (base + %d < %d) {\n    indices[%d] = base + %d;\n    result.%s = process(indices);\n  }\n",
			offset, e.PackedExtent, last, offset, channel)
	}
	fmt.Fprintf(&b, "  %s = result;\n}\n", d.Output())
	return b.String()
}
