package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/knowledge"
	"github.com/aihub/docqa/internal/pipeline"
)

var (
	askFile       string
	askQuery      string
	askType       string
	askK          int
	askStrategy   string
	askChunkSize  int
	askOverlap    int
	askCredential string
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question about a document",
	Long: `Runs the full pipeline on one document: extract, chunk, embed, index,
retrieve the k most similar chunks and synthesize an answer citing them.
The credential defaults to $OPENAI_API_KEY.`,
	Args: cobra.NoArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "document to read")
	askCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question to answer")
	askCmd.Flags().StringVar(&askType, "type", "", "media type (detected when omitted)")
	askCmd.Flags().IntVar(&askK, "k", 2, "number of chunks to retrieve (1-5)")
	askCmd.Flags().StringVar(&askStrategy, "strategy", string(knowledge.DefaultStrategy), "stuff, map_reduce, refine or map_rerank")
	askCmd.Flags().IntVar(&askChunkSize, "chunk-size", knowledge.DefaultChunkSize, "chunk size in characters")
	askCmd.Flags().IntVar(&askOverlap, "overlap", knowledge.DefaultChunkOverlap, "chunk overlap in characters")
	askCmd.Flags().StringVar(&askCredential, "credential", "", "OpenAI API key (default $OPENAI_API_KEY)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	_ = askCmd.MarkFlagRequired("file")
	_ = askCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(askCmd)
}

type sourceJSON struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

type answerJSON struct {
	Answer   string       `json:"answer"`
	Strategy string       `json:"strategy"`
	Sources  []sourceJSON `json:"sources"`
	Retries  int          `json:"retries"`
}

func runAsk(cmd *cobra.Command, _ []string) error {
	content, err := os.ReadFile(askFile)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidConfig, "cannot read "+askFile, err)
	}

	app, err := newApp()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.Shutdown()

	opts := pipeline.DefaultOptions()
	if cfg := app.Config(); cfg != nil {
		opts = pipeline.OptionsFromConfig(cfg.Pipeline)
	}
	flags := cmd.Flags()
	if flags.Changed("k") {
		opts.TopK = askK
	}
	if flags.Changed("chunk-size") {
		opts.ChunkSize = askChunkSize
	}
	if flags.Changed("overlap") {
		opts.ChunkOverlap = askOverlap
	}
	if flags.Changed("strategy") {
		if opts.Strategy, err = knowledge.ParseStrategy(askStrategy); err != nil {
			return err
		}
	}
	opts.Credential = askCredential
	if opts.Credential == "" {
		opts.Credential = envOr("OPENAI_API_KEY", "")
	}

	name := filepath.Base(askFile)
	req := pipeline.Request{
		Document: knowledge.Document{
			Name:      name,
			MediaType: knowledge.ResolveMediaType(askType, name, content),
			Content:   content,
		},
		Query:   askQuery,
		Options: opts,
	}

	outcome, err := app.Orchestrator().Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	if askJSON {
		return outputAnswerJSON(cmd, outcome)
	}
	outputAnswerText(cmd, outcome)
	return nil
}

func outputAnswerJSON(cmd *cobra.Command, outcome *pipeline.Outcome) error {
	out := answerJSON{
		Answer:   outcome.Answer.Text,
		Strategy: string(outcome.Answer.Strategy),
		Sources:  make([]sourceJSON, len(outcome.Answer.Sources)),
		Retries:  outcome.Retries,
	}
	for i, src := range outcome.Answer.Sources {
		out.Sources[i] = sourceJSON{Seq: src.Seq, Text: src.Text}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func outputAnswerText(cmd *cobra.Command, outcome *pipeline.Outcome) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, outcome.Answer.Text)
	fmt.Fprintln(w)

	if len(outcome.Answer.Sources) == 0 {
		fmt.Fprintln(w, "No source passages.")
		return
	}
	color.New(color.FgCyan, color.Bold).Fprintln(w, "Sources:")
	for i, src := range outcome.Answer.Sources {
		// Format: [N] chunk #seq (chars start-end)
		fmt.Fprintf(w, "  [%d] chunk #%d (chars %d-%d)\n", i+1, src.Seq, src.Start, src.End)
		for _, line := range strings.Split(strings.TrimSpace(src.Text), "\n") {
			fmt.Fprintf(w, "      %s\n", line)
		}
		fmt.Fprintln(w)
	}
}
