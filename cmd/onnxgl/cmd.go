package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/onnxgl/internal/backend/webgl"
	"github.com/born-ml/onnxgl/internal/envconfig"
	"github.com/born-ml/onnxgl/internal/onnx"
)

const version = "v0.1.0-dev"

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func setupLogging(cmd *cobra.Command, _ []string) {
	l := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: envconfig.LogLevel()}))
	onnx.SetLogger(l)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}

// NewCLI creates the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:              "onnxgl",
		Short:            "Inspect the WebGL backend of the ONNX runtime",
		SilenceUsage:     true,
		SilenceErrors:    true,
		PersistentPreRun: setupLogging,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				versionHandler(cmd, args)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	envVars := envconfig.AsMap()
	shaderCmd := newShaderCmd()
	layoutCmd := newLayoutCmd()
	appendEnvDocs(shaderCmd, []envconfig.EnvVar{
		envVars["ONNXGL_DEBUG"],
		envVars["ONNXGL_WEBGL_CONTEXT"],
		envVars["ONNXGL_PACKED"],
		envVars["ONNXGL_MAX_TEXTURE_SIZE"],
	})
	appendEnvDocs(layoutCmd, []envconfig.EnvVar{envVars["ONNXGL_MAX_TEXTURE_SIZE"]})

	rootCmd.AddCommand(
		shaderCmd,
		layoutCmd,
		newOpsCmd(),
		newEnvCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "onnxgl version %s\n", version)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}
}

// EnvHandler prints the configuration variables and their current values.
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	table := newTable(cmd.OutOrStdout(), "NAME", "VALUE", "DESCRIPTION")
	for _, name := range names {
		v := vars[name]
		table.Append([]string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}
	table.Render()
	return nil
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show configuration variables",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}
}

func defaultMaxTextureSize() int {
	if n := int(envconfig.MaxTextureSize()); n > 0 {
		return n
	}
	return webgl.DefaultMaxTextureSize()
}
