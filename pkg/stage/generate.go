package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
)

const generateSystemPrompt = `You are a marketing analyst. Given a campaign record,
infer its target audience and creative theme from the campaign name.
Respond with a single JSON object: {"audience": "...", "theme": "..."}.
If the campaign name cannot be interpreted, respond with
{"error": "short reason"}.`

// enrichment is the structured response expected from the generate step.
type enrichment struct {
	Audience string `json:"audience"`
	Theme    string `json:"theme"`
	Error    string `json:"error"`
}

// generateStage enriches each record through an external text-generation
// service. Calls run on a bounded result pool; a record's failure is flagged
// in the output rather than aborting the batch, and results are reassembled
// in the original record order. The run fails only when every call failed in
// transport, which means the service is unreachable.
type generateStage struct {
	log     *slog.Logger
	llm     LLMClient
	pool    pond.ResultPool[enrichment]
	flagged int
}

func newGenerateStage(cfg Config) (*generateStage, error) {
	llm := cfg.LLM
	if llm == nil {
		llm = NewAnthropicLLMClient(
			cfg.Logger,
			cfg.Settings.APIKey,
			anthropic.Model(cfg.Settings.GenerateModel),
			cfg.Settings.GenerateMaxTokens,
		)
	}
	return &generateStage{
		log:  cfg.Logger,
		llm:  llm,
		pool: pond.NewResultPool[enrichment](cfg.Settings.MaxConcurrency),
	}, nil
}

func (s *generateStage) Run(ctx context.Context, d dataset.Dataset) (dataset.Dataset, error) {
	if d.Schema.Name != schema.Campaigns.Name {
		return dataset.Dataset{}, fmt.Errorf("expected %s dataset, got %s", schema.Campaigns.Name, d.Schema.Name)
	}
	if d.NumRows() == 0 {
		return dataset.New(schema.EnrichedCampaigns), nil
	}

	tasks := make([]pond.Result[enrichment], len(d.Rows))
	for i, row := range d.Rows {
		row := row
		tasks[i] = s.pool.SubmitErr(func() (enrichment, error) {
			return s.enrichRecord(ctx, row)
		})
	}

	out := dataset.New(schema.EnrichedCampaigns)
	out.Rows = make([]dataset.Row, len(d.Rows))
	s.flagged = 0
	transportFailures := 0
	for i, task := range tasks {
		result, err := task.Wait()

		enriched := make(dataset.Row, len(d.Rows[i])+3)
		for k, v := range d.Rows[i] {
			enriched[k] = v
		}
		switch {
		case err != nil:
			s.flagged++
			transportFailures++
			enriched["enrichment_error"] = err.Error()
			s.log.Warn("record enrichment failed", "record", i+1, "error", err)
		case result.Error != "":
			s.flagged++
			enriched["enrichment_error"] = result.Error
			s.log.Warn("record enrichment flagged", "record", i+1, "reason", result.Error)
		default:
			enriched["audience"] = result.Audience
			enriched["theme"] = result.Theme
		}
		out.Rows[i] = enriched
	}

	// Records the model itself flagged prove the service is up; only a full
	// set of transport failures means it is unreachable.
	if transportFailures == len(d.Rows) {
		return dataset.Dataset{}, fmt.Errorf("all %d records failed enrichment, text-generation service unreachable", len(d.Rows))
	}

	if err := out.Validate(); err != nil {
		return dataset.Dataset{}, fmt.Errorf("enriched dataset invalid: %w", err)
	}

	s.log.Info("enriched campaign records", "rows", out.NumRows(), "flagged", s.flagged)
	return out, nil
}

func (s *generateStage) Flagged() int { return s.flagged }

func (s *generateStage) enrichRecord(ctx context.Context, row dataset.Row) (enrichment, error) {
	prompt, err := promptForRow(row)
	if err != nil {
		return enrichment{}, err
	}

	response, err := s.llm.Complete(ctx, generateSystemPrompt, prompt)
	if err != nil {
		return enrichment{}, err
	}

	return parseEnrichment(response)
}

func promptForRow(row dataset.Row) (string, error) {
	name, err := row.String("name")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Campaign name: %s\n", name)
	if channel, ok := row["channel"].(string); ok {
		fmt.Fprintf(&b, "Channel: %s\n", channel)
	}
	if budget, ok := row["budget"].(float64); ok {
		fmt.Fprintf(&b, "Budget: %.2f\n", budget)
	}
	return b.String(), nil
}

// parseEnrichment extracts the JSON object from the response, tolerating
// surrounding prose and markdown code fences.
func parseEnrichment(response string) (enrichment, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return enrichment{}, fmt.Errorf("no JSON object in response")
	}
	var e enrichment
	if err := json.Unmarshal([]byte(jsonStr), &e); err != nil {
		return enrichment{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if e.Error == "" && e.Audience == "" && e.Theme == "" {
		return enrichment{}, fmt.Errorf("response carries no enrichment fields")
	}
	return e, nil
}

func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
