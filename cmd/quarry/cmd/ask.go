package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/cite"
	"github.com/quarry-search/quarry/internal/engine"
	"github.com/quarry-search/quarry/internal/output"
)

// timeRounding keeps displayed durations readable.
const timeRounding = time.Millisecond

// askOptions holds CLI flags for ask.
type askOptions struct {
	k              int
	sources        []string
	mode           string
	semanticWeight float64
	keywordWeight  float64
	minScore       float64
	agentic        bool
	rerankTopK     int
	queryLang      string
	responseLang   string
	model          string
	temperature    float64
	maxTokens      int
	format         string
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with cited sources",
		Long: `Answer a question over the indexed documents.

The question is searched across every selected index, matching passages
are cited with document and page, and a language model assembles the
answer from the cited context.

Examples:
  quarry ask "What is the valve torque specification?"
  quarry ask "Summarize the maintenance schedule" --sources manual.pdf
  quarry ask "How does priming work?" --k 20 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return runAsk(cmd, question, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "n", 0, "Number of passages to retrieve (default from config)")
	cmd.Flags().StringSliceVarP(&opts.sources, "sources", "s", nil, "Restrict to these documents (repeatable)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, semantic, keyword")
	cmd.Flags().Float64Var(&opts.semanticWeight, "semantic-weight", 0, "Semantic weight override")
	cmd.Flags().Float64Var(&opts.keywordWeight, "keyword-weight", 0, "Keyword weight override")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Minimum fused score")
	cmd.Flags().BoolVar(&opts.agentic, "agentic", false, "Force multi-step decomposition")
	cmd.Flags().IntVar(&opts.rerankTopK, "rerank-top-k", 0, "Candidates surviving the reranker cut")
	cmd.Flags().StringVar(&opts.queryLang, "query-language", "", "Language of the question (e.g. de); non-English adds an original-language match")
	cmd.Flags().StringVar(&opts.responseLang, "response-language", "", "Force the answer language")
	cmd.Flags().StringVar(&opts.model, "model", "", "Chat model override")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature override")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Response token limit override")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, opts askOptions) error {
	cleanup := setupCommandLogging()
	defer cleanup()

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	queryOpts := engine.QueryOptions{
		K:                opts.k,
		SearchMode:       opts.mode,
		ActiveSources:    opts.sources,
		RerankTopK:       opts.rerankTopK,
		QueryLanguage:    opts.queryLang,
		ResponseLanguage: opts.responseLang,
		Model:            opts.model,
		MaxTokens:        opts.maxTokens,
	}
	flags := cmd.Flags()
	if flags.Changed("semantic-weight") {
		queryOpts.SemanticWeight = &opts.semanticWeight
	}
	if flags.Changed("keyword-weight") {
		queryOpts.KeywordWeight = &opts.keywordWeight
	}
	if flags.Changed("min-score") {
		queryOpts.MinScore = &opts.minScore
	}
	if flags.Changed("agentic") {
		queryOpts.UseAgentic = &opts.agentic
	}
	if flags.Changed("temperature") {
		queryOpts.Temperature = &opts.temperature
	}

	resp, err := eng.Query(cmd.Context(), question, queryOpts)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return renderAnswer(output.NewAuto(cmd.OutOrStdout()), resp)
}

func renderAnswer(out *output.Writer, resp *engine.Response) error {
	out.Status("", resp.Answer)
	out.Newline()

	if len(resp.SubQueries) > 0 {
		out.Status("", "Sub-queries:")
		for _, sq := range resp.SubQueries {
			out.Statusf("", "  - %q", sq)
		}
		out.Newline()
	}

	if len(resp.Citations) > 0 {
		out.Status("", "Sources:")
		for _, c := range resp.Citations {
			renderCitation(out, c)
		}
		out.Newline()
	}

	out.Statusf("", "%d passages, %d tokens, %s",
		resp.NumChunksUsed, resp.TotalTokens, resp.ResponseTime.Round(timeRounding))
	return nil
}

func renderCitation(out *output.Writer, c cite.Citation) {
	label := fmt.Sprintf("[%d] %s (%s", c.ID, c.Source, c.Location())
	if c.SimilarityPercentage > 0 {
		label += fmt.Sprintf(", %.0f%%", c.SimilarityPercentage)
	}
	label += ")"
	if c.ContentType == cite.ContentImage {
		label += " [image]"
	}
	out.Status("", label)

	snippet := strings.TrimSpace(c.Snippet)
	if snippet != "" {
		for _, line := range strings.Split(snippet, "\n") {
			out.Status("", "    "+line)
		}
	}
}
