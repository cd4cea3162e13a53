package glsl

import "strings"

// Unit is the structured form of a shader before emission.
type Unit struct {
	Dialect  Dialect
	Uniforms []Variable
	Routines []Routine
	Body     string
}

// Render emits the shader text: version line, precision qualifiers, the
// interpolated texture coordinate, the output declaration, uniforms, routines
// in order and finally the body. Render has no side effects.
func Render(u Unit) string {
	var b strings.Builder
	line := func(s string) {
		if s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}

	line(u.Dialect.VersionLine())
	line("precision highp float;")
	line("precision highp int;")
	line("precision highp sampler2D;")
	line(u.Dialect.VaryingFragment() + " vec2 TexCoords;")
	line(u.Dialect.OutputDeclaration())
	b.WriteByte('\n')

	for _, v := range u.Uniforms {
		line(v.Declaration())
	}
	if len(u.Uniforms) > 0 {
		b.WriteByte('\n')
	}

	for _, r := range u.Routines {
		line(strings.TrimSpace(r.Body))
		b.WriteByte('\n')
	}

	line(strings.TrimSpace(u.Body))
	return b.String()
}
