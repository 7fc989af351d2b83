package mining

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"brokle/internal/config"
	"brokle/internal/core/domain/ruleupgrade"
)

// AnthropicPatchGenerator implements ruleupgrade.PatchGenerator by asking
// the same Anthropic Messages API the grading pipeline scores with to draft
// a rubric-clause patch for each rule candidate — reusing the client
// construction idiom from internal/infrastructure/scoring.AnthropicClient
// rather than a second bespoke HTTP client.
type AnthropicPatchGenerator struct {
	client anthropic.Client
	model  string
	logger *slog.Logger
}

func NewAnthropicPatchGenerator(cfg config.ScoringConfig, logger *slog.Logger) *AnthropicPatchGenerator {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &AnthropicPatchGenerator{
		client: anthropic.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// GeneratePatches drafts one patch per candidate, describing the rubric
// clause change the mined pattern suggests. The model's reply is the diff
// text itself; this is deliberately not structured JSON — a rubric patch
// is prose-shaped (add/clarify a scoring clause), not a data record.
func (g *AnthropicPatchGenerator) GeneratePatches(ctx context.Context, candidates []ruleupgrade.RuleCandidate) ([]ruleupgrade.GeneratedPatch, error) {
	patches := make([]ruleupgrade.GeneratedPatch, 0, len(candidates))
	for _, c := range candidates {
		diff, err := g.draftPatch(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("draft patch for rule %s: %w", c.RuleID, err)
		}
		patches = append(patches, ruleupgrade.GeneratedPatch{
			PatchID:     "patch-" + c.RuleID,
			RuleID:      c.RuleID,
			Description: c.Description,
			Diff:        diff,
		})
	}
	return patches, nil
}

func (g *AnthropicPatchGenerator) draftPatch(ctx context.Context, c ruleupgrade.RuleCandidate) (string, error) {
	prompt := fmt.Sprintf(
		"A grading rubric question (%s) has been consistently re-scored by human reviewers. "+
			"Observed pattern: %s (confidence %.2f). Propose a concise rubric clause addition or "+
			"clarification that would address this pattern. Reply with the clause text only.",
		c.QuestionID, c.Description, c.Confidence,
	)

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
