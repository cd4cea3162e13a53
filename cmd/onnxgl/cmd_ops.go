package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxgl/internal/backend/webgl"
)

// OpsHandler lists the operators the WebGL backend resolves.
func OpsHandler(cmd *cobra.Command, _ []string) error {
	table := newTable(cmd.OutOrStdout(), "OPERATOR", "DOMAIN", "OPSET")
	for _, op := range webgl.SupportedOperators() {
		domain := op.Domain
		if domain == "" {
			domain = "ai.onnx"
		}
		opset := strconv.Itoa(op.MinOpset) + "+"
		if op.MaxOpset != 0 {
			opset = strconv.Itoa(op.MinOpset) + "-" + strconv.Itoa(op.MaxOpset)
		}
		table.Append([]string{op.OpType, domain, opset})
	}
	table.Render()
	return nil
}

func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ops",
		Aliases: []string{"operators"},
		Short:   "List supported operators",
		Args:    cobra.NoArgs,
		RunE:    OpsHandler,
	}
}
