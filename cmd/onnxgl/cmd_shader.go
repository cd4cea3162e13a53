package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxgl/internal/backend/webgl"
	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/envconfig"
	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// parseInput reads an input description of the form [dtype:]shape[=values],
// for example "1,3,8,8", "int32:2=4,-1" or "bool:3". Inputs without values
// are zero filled.
func parseInput(text string) (*tensor.Tensor, error) {
	dtype := tensor.Float32
	if prefix, rest, ok := strings.Cut(text, ":"); ok {
		dt, known := tensor.ParseDataType(prefix)
		if !known {
			return nil, fmt.Errorf("input %q: unknown element type %q", text, prefix)
		}
		dtype, text = dt, rest
	}
	shapeText, valuesText, hasValues := strings.Cut(text, "=")

	shape, err := tensor.ParseShape(shapeText)
	if err != nil {
		return nil, err
	}
	if !hasValues {
		return tensor.New(shape, dtype)
	}

	fields := strings.Split(valuesText, ",")
	switch dtype {
	case tensor.Float32:
		vals := make([]float32, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", text, err)
			}
			vals[i] = float32(v)
		}
		return tensor.FromFloat32(shape, vals)
	case tensor.Int32:
		vals := make([]int32, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", text, err)
			}
			vals[i] = int32(v)
		}
		return tensor.FromInt32(shape, vals)
	case tensor.Bool:
		vals := make([]bool, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseBool(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", text, err)
			}
			vals[i] = v
		}
		return tensor.FromBool(shape, vals)
	default:
		return nil, fmt.Errorf("input %q: %v inputs cannot carry values", text, dtype)
	}
}

// ShaderHandler runs one operator on an offline context and prints the
// assembled fragment shader of every pass.
func ShaderHandler(cmd *cobra.Command, args []string) error {
	inputSpecs, _ := cmd.Flags().GetStringArray("input")
	attrSpecs, _ := cmd.Flags().GetStringArray("attr")
	dialectName, _ := cmd.Flags().GetString("dialect")
	packed, _ := cmd.Flags().GetBool("packed")
	opset, _ := cmd.Flags().GetInt("opset")
	maxSize, _ := cmd.Flags().GetInt("max")
	domain, _ := cmd.Flags().GetString("domain")

	dialect, err := glsl.ParseDialect(dialectName)
	if err != nil {
		return err
	}

	inputs := make([]*tensor.Tensor, len(inputSpecs))
	for i, text := range inputSpecs {
		if inputs[i], err = parseInput(text); err != nil {
			return err
		}
	}

	attrs := make(onnx.Attributes, len(attrSpecs))
	for _, text := range attrSpecs {
		name, attr, err := onnx.ParseAttribute(text)
		if err != nil {
			return err
		}
		attrs[name] = attr
	}

	node := &onnx.Node{OpType: args[0], Domain: domain, Attributes: attrs}
	in, err := webgl.Inspect(node, inputs, webgl.InspectOptions{
		Dialect:        dialect,
		MaxTextureSize: maxSize,
		Packed:         packed,
		Opset:          opset,
	})
	if err != nil {
		return err
	}
	onnx.Logger().Debug("inspected operator", "op", args[0], "summary", in.String())

	out := cmd.OutOrStdout()
	for i, a := range in.Passes {
		fmt.Fprintf(out, "// pass %d/%d: %s -> %s texture %dx%d\n", i+1, len(in.Passes),
			a.Info.Name, a.Info.OutputLayout.Shape, a.Info.OutputLayout.Width, a.Info.OutputLayout.Height)
		fmt.Fprintln(out, a.Text)
	}
	if len(in.Passes) == 0 {
		fmt.Fprintln(out, "// no shader passes: the operator runs on the CPU or as a texture view")
	}
	fmt.Fprintf(out, "// outputs: %v\n", in.Outputs)
	return nil
}

func newShaderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shader OPERATOR",
		Short: "Print the fragment shaders generated for an operator",
		Example: "  onnxgl shader Relu --input 2,3\n" +
			"  onnxgl shader Conv --input 1,3,8,8 --input 4,3,3,3 --attr pads=1,1,1,1 --packed\n" +
			"  onnxgl shader Reshape --input 2,6 --input int32:2=3,-1",
		Args: cobra.ExactArgs(1),
		RunE: ShaderHandler,
	}
	cmd.Flags().StringArrayP("input", "i", nil, "Input as [dtype:]shape[=values], repeatable")
	cmd.Flags().StringArrayP("attr", "a", nil, "Attribute as name=value, repeatable")
	cmd.Flags().String("dialect", envconfig.WebGLContext(), "Shader dialect, webgl2 or webgl")
	cmd.Flags().Bool("packed", envconfig.Packed(true), "Use packed kernels")
	cmd.Flags().Int("opset", 13, "Default domain opset version")
	cmd.Flags().String("domain", "", "Operator domain")
	cmd.Flags().Int("max", defaultMaxTextureSize(), "Maximum texture dimension")
	return cmd
}
