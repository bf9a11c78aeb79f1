package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// DefaultAPIURL — адрес API по умолчанию (переопределяется CIRCLE_API_URL).
const DefaultAPIURL = "http://localhost:8080"

// NewRootCmd создаёт корневую команду circlectl.
func NewRootCmd(version string) *cobra.Command {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "circlectl",
		Short:         "circlectl — CIRCLE cloud task dispatch client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := DefaultAPIURL
	if v := os.Getenv("CIRCLE_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output {
		return NewOutputTo(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr(), jsonOutput)
	}

	rootCmd.AddCommand(
		NewInstanceCmd(clientFn, outputFn),
		NewTaskCmd(clientFn, outputFn),
		NewTopologyCmd(clientFn, outputFn),
	)

	return rootCmd
}
