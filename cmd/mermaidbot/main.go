package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	flagProvider string
	flagRenderer string
	flagContract string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mermaidbot",
	Short: "Chat with a model to design Mermaid flowcharts",
	Long: `mermaidbot turns a conversation about a workflow or system into a Mermaid
flowchart, renders it and lets you refine it turn by turn.

Configuration comes from MERMAIDBOT_* environment variables; the flags below
override them.`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "completion provider: gemini, vertex, ollama or mock")
	rootCmd.PersistentFlags().StringVar(&flagRenderer, "renderer", "", "diagram renderer: browser, kroki or none")
	rootCmd.PersistentFlags().StringVar(&flagContract, "contract", "", "behavioral contract YAML file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
