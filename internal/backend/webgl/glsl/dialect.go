// Package glsl assembles fragment shader source for the WebGL backend.
//
// Operator code is written against a small library of routines. Assembly
// strips uniform declarations, appends a generated entry point when the
// operator only provides process(), pulls in every referenced routine in
// dependency order, expands @inline routines at their call sites and renders
// the final text for the target dialect.
package glsl

import "fmt"

// Dialect selects the shading language version.
type Dialect int

// Supported dialects.
const (
	// WebGL1 targets GLSL ES 1.00.
	WebGL1 Dialect = 1
	// WebGL2 targets GLSL ES 3.00.
	WebGL2 Dialect = 2
)

// ParseDialect accepts "webgl" and "webgl2" (also "1" and "2").
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "webgl", "webgl1", "1":
		return WebGL1, nil
	case "webgl2", "2", "":
		return WebGL2, nil
	default:
		return 0, fmt.Errorf("unknown WebGL dialect %q", s)
	}
}

// String returns the context name of the dialect.
func (d Dialect) String() string {
	switch d {
	case WebGL1:
		return "webgl"
	case WebGL2:
		return "webgl2"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// VersionLine is the first line of every shader, empty for GLSL ES 1.00.
func (d Dialect) VersionLine() string {
	if d == WebGL2 {
		return "#version 300 es"
	}
	return ""
}

// Texture2D is the sampling built-in.
func (d Dialect) Texture2D() string {
	if d == WebGL2 {
		return "texture"
	}
	return "texture2D"
}

// Output is the fragment output variable.
func (d Dialect) Output() string {
	if d == WebGL2 {
		return "outputColor"
	}
	return "gl_FragColor"
}

// Attribute is the vertex input qualifier.
func (d Dialect) Attribute() string {
	if d == WebGL2 {
		return "in"
	}
	return "attribute"
}

// VaryingVertex is the vertex-stage qualifier of interpolated outputs.
func (d Dialect) VaryingVertex() string {
	if d == WebGL2 {
		return "out"
	}
	return "varying"
}

// VaryingFragment is the fragment-stage qualifier of interpolated inputs.
func (d Dialect) VaryingFragment() string {
	if d == WebGL2 {
		return "in"
	}
	return "varying"
}

// OutputDeclaration declares the fragment output, empty for GLSL ES 1.00.
func (d Dialect) OutputDeclaration() string {
	if d == WebGL2 {
		return "out vec4 outputColor;"
	}
	return ""
}

// VertexShader returns the constant full-screen quad vertex stage.
func (d Dialect) VertexShader() string {
	version := d.VersionLine()
	if version != "" {
		version += "\n"
	}
	return version + `precision highp float;
` + d.Attribute() + ` vec3 position;
` + d.Attribute() + ` vec2 textureCoord;

` + d.VaryingVertex() + ` vec2 TexCoords;

void main()
{
    gl_Position = vec4(position, 1.0);
    TexCoords = textureCoord;
}
`
}
