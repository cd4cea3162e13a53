package webgl

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// NewRoutineLibrary returns the routines available to the fragment shader of
// info: coordinate conversion for the output texture and index, fetch and
// broadcast helpers for every sampler. Routines are only emitted when the
// operator source references them.
func NewRoutineLibrary(d glsl.Dialect, info *ProgramInfo) *glsl.Library {
	lib := glsl.NewLibrary()

	lib.Add(glsl.Routine{Name: "getChannel", Body: `
float getChannel(vec4 color, int lane) {
  return lane == 0 ? color.r : lane == 1 ? color.g : lane == 2 ? color.b : color.a;
}`})
	lib.Add(glsl.Routine{Name: "coordsToOffset", Body: `
int coordsToOffset(vec2 coords, int width, int height) {
  int x = int(floor(coords.s * float(width)));
  int y = int(floor(coords.t * float(height)));
  return y * width + x;
}`})
	lib.Add(glsl.Routine{Name: "offsetToCoords", Body: `
vec2 offsetToCoords(int offset, int width, int height) {
  int t = offset / width;
  int s = offset - t * width;
  return (vec2(float(s), float(t)) + vec2(0.5)) / vec2(float(width), float(height));
}`})
	lib.Add(glsl.Routine{Name: "getColorAsFloat", Body: `
@inline float getColorAsFloat(vec4 color) {
  return color.r;
}`})

	if out := info.OutputLayout; out != nil {
		lib.Add(glsl.Routine{Name: "toVec", Body: toVecSource(out), Deps: []string{"coordsToOffset"}})
	}

	outRank := 1
	if info.OutputLayout != nil {
		outRank = len(info.OutputLayout.ShaderShape())
	}
	for i, name := range info.Samplers {
		if i >= len(info.InputLayouts) {
			break
		}
		addSamplerRoutines(lib, d, name, info.InputLayouts[i], outRank)
	}
	return lib
}

func toVecSource(out *TextureLayout) string {
	strides := out.ShaderStrides()
	rank := len(strides)

	var b strings.Builder
	fmt.Fprintf(&b, "void toVec(vec2 texCoords, out int c[%d]) {\n", rank)
	fmt.Fprintf(&b, "  int offset = coordsToOffset(texCoords, %d, %d);\n", out.Width, out.Height)
	for i := 0; i < rank-1; i++ {
		fmt.Fprintf(&b, "  c[%d] = offset / %d;\n  offset -= c[%d] * %d;\n", i, strides[i], i, strides[i])
	}
	fmt.Fprintf(&b, "  c[%d] = offset;\n}", rank-1)
	return b.String()
}

// logicalShape is the index space of a sampler as seen by operator code.
func logicalShape(l *TextureLayout) tensor.Shape {
	if len(l.UnpackedShape) == 0 {
		return tensor.Shape{1}
	}
	return l.UnpackedShape
}

// dotIndices renders sum(arr[i] * strides[i]).
func dotIndices(arr string, strides []int) string {
	terms := make([]string, 0, len(strides))
	for i, s := range strides {
		switch s {
		case 0:
			continue
		case 1:
			terms = append(terms, fmt.Sprintf("%s[%d]", arr, i))
		default:
			terms = append(terms, fmt.Sprintf("%s[%d] * %d", arr, i, s))
		}
	}
	if len(terms) == 0 {
		return "0"
	}
	return strings.Join(terms, " + ")
}

func addSamplerRoutines(lib *glsl.Library, d glsl.Dialect, name string, l *TextureLayout, outRank int) {
	shape := logicalShape(l)
	strides := shape.ComputeStrides()
	rank := len(shape)

	lib.Add(glsl.Routine{
		Name: "indicesToOffset_" + name,
		Body: fmt.Sprintf("int indicesToOffset_%s(int indices[%d]) {\n  return %s;\n}", name, rank, dotIndices("indices", strides)),
	})

	transposed := append([]int(nil), strides...)
	if rank >= 2 {
		transposed[rank-1], transposed[rank-2] = transposed[rank-2], transposed[rank-1]
	}
	lib.Add(glsl.Routine{
		Name: "indicesToOffset_" + name + "_T",
		Body: fmt.Sprintf("int indicesToOffset_%s_T(int indices[%d]) {\n  return %s;\n}", name, rank, dotIndices("indices", transposed)),
	})

	var b strings.Builder
	fmt.Fprintf(&b, "void offsetToIndices_%s(int offset, out int indices[%d]) {\n", name, rank)
	for i := 0; i < rank-1; i++ {
		fmt.Fprintf(&b, "  indices[%d] = offset / %d;\n  offset -= indices[%d] * %d;\n", i, strides[i], i, strides[i])
	}
	fmt.Fprintf(&b, "  indices[%d] = offset;\n}", rank-1)
	lib.Add(glsl.Routine{Name: "offsetToIndices_" + name, Body: b.String()})

	if l.IsPacked() {
		stored := l.ShaderStrides()
		last := rank - 1
		b.Reset()
		fmt.Fprintf(&b, "vec4 _%s_texel(int indices[%d]) {\n  int offset = ", name, rank)
		for i := 0; i < last; i++ {
			if stored[i] != 0 {
				fmt.Fprintf(&b, "indices[%d] * %d + ", i, stored[i])
			}
		}
		fmt.Fprintf(&b, "(indices[%d] / 4) * %d;\n", last, stored[last])
		fmt.Fprintf(&b, "  return %s(%s, offsetToCoords(offset, %d, %d));\n}", d.Texture2D(), name, l.Width, l.Height)
		lib.Add(glsl.Routine{Name: "_" + name + "_texel", Body: b.String(), Deps: []string{"offsetToCoords"}})

		lib.Add(glsl.Routine{
			Name: "_" + name,
			Body: fmt.Sprintf("float _%s(int indices[%d]) {\n  int lane = indices[%d] - (indices[%d] / 4) * 4;\n  return getChannel(_%s_texel(indices), lane);\n}",
				name, rank, last, last, name),
			Deps: []string{"getChannel", "_" + name + "_texel"},
		})
	} else {
		lib.Add(glsl.Routine{
			Name: "_" + name,
			Body: fmt.Sprintf("float _%s(int indices[%d]) {\n  vec2 coords = offsetToCoords(indicesToOffset_%s(indices), %d, %d);\n  float value = getColorAsFloat(%s(%s, coords));\n  return value;\n}",
				name, rank, name, l.Width, l.Height, d.Texture2D(), name),
			Deps: []string{"offsetToCoords", "indicesToOffset_" + name, "getColorAsFloat"},
		})
	}

	b.Reset()
	fmt.Fprintf(&b, "float _%s_T(int indices[%d]) {\n  int swapped[%d];\n", name, rank, rank)
	for i := 0; i < rank; i++ {
		src := i
		if rank >= 2 && i == rank-1 {
			src = rank - 2
		} else if rank >= 2 && i == rank-2 {
			src = rank - 1
		}
		fmt.Fprintf(&b, "  swapped[%d] = indices[%d];\n", i, src)
	}
	fmt.Fprintf(&b, "  return _%s(swapped);\n}", name)
	lib.Add(glsl.Routine{Name: "_" + name + "_T", Body: b.String(), Deps: []string{"_" + name}})

	lib.Add(glsl.Routine{Name: "bcastIndices_" + name, Body: broadcastSource("bcastIndices_"+name, shape, outRank, 0)})
	lib.Add(glsl.Routine{Name: "bcastMatmulIndices_" + name, Body: broadcastSource("bcastMatmulIndices_"+name, shape, outRank, 2)})
}

// broadcastSource maps output indices to the indices of an input of the given
// shape, right-aligned, with size-1 dimensions pinned to zero. The last
// `skip` input dimensions are left at zero for the caller to fill in.
func broadcastSource(fn string, shape tensor.Shape, outRank, skip int) string {
	rank := len(shape)
	var b strings.Builder
	fmt.Fprintf(&b, "void %s(int outIndices[%d], out int indices[%d]) {\n", fn, outRank, rank)
	for i := 0; i < rank; i++ {
		j := outRank - rank + i
		if i >= rank-skip || j < 0 || shape[i] == 1 {
			fmt.Fprintf(&b, "  indices[%d] = 0;\n", i)
			continue
		}
		fmt.Fprintf(&b, "  indices[%d] = outIndices[%d];\n", i, j)
	}
	b.WriteString("}")
	return b.String()
}
