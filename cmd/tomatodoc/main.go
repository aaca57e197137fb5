package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leafwise/tomatodoc/internal/version"
)

func main() {
	// .env is optional; prod injects real environment variables.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "tomatodoc",
		Short: "Tomato leaf disease assistant",
		Long: "TomatoDoc answers tomato disease questions from a curated knowledge base,\n" +
			"backed by a vector index and an optional leaf image classifier.",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tomatodoc %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
