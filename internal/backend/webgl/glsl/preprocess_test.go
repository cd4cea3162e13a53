package glsl

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractUniforms(t *testing.T) {
	src := `
uniform sampler2D A;
  uniform highp float alpha;
uniform int axes[3];
float process(int indices[2]) { return alpha; }
`
	vars, body := ExtractUniforms(src)
	want := []Variable{
		{Type: "sampler2D", Name: "A"},
		{Type: "float", Name: "alpha"},
		{Type: "int", Name: "axes", ArraySuffix: "[3]"},
	}
	if diff := cmp.Diff(want, vars); diff != "" {
		t.Errorf("uniforms mismatch (-want +got):\n%s", diff)
	}
	assert.NotContains(t, body, "uniform")
	assert.Contains(t, body, "float process")
	assert.Equal(t, []string{"A"}, Samplers(vars))
	assert.True(t, vars[2].IsArray())
	assert.Equal(t, "uniform int axes[3];", vars[2].Declaration())
}

func TestExtractAttributes(t *testing.T) {
	vars := ExtractAttributes(WebGL1.VertexShader())
	assert.Equal(t, []Variable{{Type: "vec3", Name: "position"}, {Type: "vec2", Name: "textureCoord"}}, vars)
	assert.Empty(t, ExtractAttributes(WebGL2.VertexShader()), "GLSL ES 3.00 uses in qualifiers")
}

func toVecLibrary() *Library {
	lib := NewLibrary()
	lib.Add(Routine{Name: "coordsToOffset", Body: "int coordsToOffset(vec2 c, int w, int h) { return 0; }"})
	lib.Add(Routine{Name: "toVec", Body: "void toVec(vec2 c, out int i[2]) { int o = coordsToOffset(c, 2, 2); }", Deps: []string{"coordsToOffset"}})
	return lib
}

func TestAssembleDeterministic(t *testing.T) {
	p := Program{
		Source: "uniform sampler2D A;\nfloat process(int indices[2]) { return 1.0; }",
		Entry:  EntryPoint{Rank: 2},
	}
	for _, d := range []Dialect{WebGL1, WebGL2} {
		first, err := Assemble(d, toVecLibrary(), p)
		require.NoError(t, err)
		second, err := Assemble(d, toVecLibrary(), p)
		require.NoError(t, err)
		if diff := cmp.Diff(first.Text, second.Text); diff != "" {
			t.Errorf("%v: assembly not deterministic:\n%s", d, diff)
		}
		assert.Equal(t, []string{"coordsToOffset", "toVec"}, first.Routines)
	}
}

func TestAssembleDialects(t *testing.T) {
	p := Program{Source: "float process(int indices[2]) { return 1.0; }", Entry: EntryPoint{Rank: 2}}

	v2, err := Assemble(WebGL2, toVecLibrary(), p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v2.Text, "#version 300 es\n"), "version must be the first line")
	assert.Contains(t, v2.Text, "in vec2 TexCoords;")
	assert.Contains(t, v2.Text, "out vec4 outputColor;")
	assert.Contains(t, v2.Text, "outputColor = result;")
	assert.NotContains(t, v2.Text, "gl_FragColor")

	v1, err := Assemble(WebGL1, toVecLibrary(), p)
	require.NoError(t, err)
	assert.NotContains(t, v1.Text, "#version")
	assert.Contains(t, v1.Text, "varying vec2 TexCoords;")
	assert.Contains(t, v1.Text, "gl_FragColor = result;")
}

func TestAssembleOrder(t *testing.T) {
	p := Program{
		Source: "uniform float alpha;\nfloat process(int indices[2]) { return alpha; }",
		Entry:  EntryPoint{Rank: 2},
	}
	a, err := Assemble(WebGL2, toVecLibrary(), p)
	require.NoError(t, err)

	idx := func(s string) int {
		i := strings.Index(a.Text, s)
		require.GreaterOrEqual(t, i, 0, "missing %q", s)
		return i
	}
	assert.Less(t, idx("precision highp float;"), idx("uniform float alpha;"))
	assert.Less(t, idx("uniform float alpha;"), idx("int coordsToOffset"))
	assert.Less(t, idx("int coordsToOffset"), idx("void toVec"))
	assert.Less(t, idx("void toVec"), idx("float process"))
	assert.Less(t, idx("float process"), idx("void main()"))
	assert.Equal(t, 1, strings.Count(a.Text, "uniform float alpha;"))
}

func TestAssembleWithMain(t *testing.T) {
	p := Program{Source: "void main() { gl_FragColor = vec4(1.0); }", HasMain: true}
	a, err := Assemble(WebGL1, NewLibrary(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(a.Text, "void main()"))
	assert.Empty(t, a.Routines)
}

func TestAssembleWithoutToVec(t *testing.T) {
	_, err := Assemble(WebGL2, NewLibrary(), Program{Source: "float process(int i[1]) { return 0.0; }", Entry: EntryPoint{Rank: 1}})
	assert.ErrorIs(t, err, ErrAssembly)
}

func TestMainPacked(t *testing.T) {
	text := Main(WebGL2, EntryPoint{Rank: 2, PackedExtent: 6})
	assert.Contains(t, text, "int base = indices[1] * 4;")
	assert.Contains(t, text, "result.r = process(indices);")
	assert.Contains(t, text, "if (base + 3 < 6)")
	assert.Contains(t, text, "vec4 result = vec4(0.0);")
	assert.Equal(t, 4, strings.Count(text, "process(indices)"))

	scalar := Main(WebGL1, EntryPoint{Rank: 0})
	assert.Contains(t, scalar, "int indices[1];")
}
