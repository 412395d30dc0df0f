package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aihub/docqa/internal/knowledge"
)

var formatsJSON bool

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported document media types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		types := knowledge.NewExtractor(knowledge.ExtractorOptions{}).SupportedMediaTypes()
		w := cmd.OutOrStdout()
		if formatsJSON {
			data, err := json.Marshal(types)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
			return nil
		}
		for _, mt := range types {
			fmt.Fprintln(w, mt)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "docqa version %s\n", version)
	},
}

func init() {
	formatsCmd.Flags().BoolVar(&formatsJSON, "json", false, "output as a JSON array")
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(versionCmd)
}
