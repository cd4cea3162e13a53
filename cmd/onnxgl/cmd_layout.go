package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxgl/internal/backend/webgl"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// LayoutHandler prints the texture layout chosen for a tensor shape.
func LayoutHandler(cmd *cobra.Command, args []string) error {
	shape, err := tensor.ParseShape(args[0])
	if err != nil {
		return err
	}
	packed, _ := cmd.Flags().GetBool("packed")
	breakAxis, _ := cmd.Flags().GetInt("break-axis")
	maxSize, _ := cmd.Flags().GetInt("max")

	var prefs *webgl.WidthHeightPrefs
	if breakAxis >= 0 {
		prefs = &webgl.WidthHeightPrefs{BreakAxis: breakAxis}
	}
	channels := 1
	if packed {
		channels = 4
	}

	l, err := webgl.NewTextureLayout(webgl.LayoutStrategy{MaxTextureSize: maxSize}, shape, channels, prefs)
	if err != nil {
		return err
	}

	table := newTable(cmd.OutOrStdout(), "FIELD", "VALUE")
	table.AppendBulk([][]string{
		{"shape", shape.String()},
		{"stored shape", l.Shape.String()},
		{"strides", fmt.Sprint(l.Strides)},
		{"texture", fmt.Sprintf("%dx%d", l.Width, l.Height)},
		{"channels", strconv.Itoa(l.Channels)},
		{"texels", strconv.Itoa(l.Texels())},
	})
	table.Render()
	return nil
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "layout SHAPE",
		Short:   "Show the texture layout of a tensor shape",
		Example: "  onnxgl layout 1,3,224,224\n  onnxgl layout 64,64 --packed --break-axis 1",
		Args:    cobra.ExactArgs(1),
		RunE:    LayoutHandler,
	}
	cmd.Flags().Bool("packed", false, "Pack four elements of the last axis per texel")
	cmd.Flags().Int("break-axis", -1, "Split rows and columns at this axis")
	cmd.Flags().Int("max", defaultMaxTextureSize(), "Maximum texture dimension")
	return cmd
}
