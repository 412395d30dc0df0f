package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aihub/docqa/app/bootstrap"
	apperrors "github.com/aihub/docqa/internal/errors"
)

// version is set at build time with -ldflags "-X github.com/aihub/docqa/internal/cli.version=..."
var version = "dev"

// newApp builds the application; tests replace it with an offline stub.
var newApp = bootstrap.Init

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about a document",
	Long: `docqa extracts text from an uploaded document, splits it into chunks,
embeds them, retrieves the passages most similar to a question and asks a
language model to answer from those passages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports errors on stderr.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func printError(w io.Writer, err error) {
	label := color.New(color.FgRed, color.Bold)
	if e, ok := apperrors.As(err); ok {
		label.Fprintf(w, "error [%s]: ", e.Kind)
	} else {
		label.Fprint(w, "error: ")
	}
	fmt.Fprintln(w, err.Error())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
