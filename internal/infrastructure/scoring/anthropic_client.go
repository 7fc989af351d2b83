// Package scoring provides the concrete grading.ScoringService adapter used
// in production: a vision-capable Anthropic Messages API client. The core
// workflow depends only on grading.ScoringService; this is one swappable
// implementation of it (SPEC_FULL.md §B).
package scoring

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"brokle/internal/config"
	"brokle/internal/core/domain/grading"
)

// AnthropicClient implements grading.ScoringService against the Anthropic
// Messages API, grounded on the SDK usage in the wolfeidau-go-mcp-evals
// retrieval example (client construction via option.RequestOption, streaming
// via Messages.NewStreaming + Message.Accumulate) and the text-extraction
// pattern in the internal-ai-assessment example (walking response.Content
// for "text" blocks).
type AnthropicClient struct {
	client  anthropic.Client
	model   string
	storage grading.FileStorage
	logger  *slog.Logger
}

// NewAnthropicClient builds a client from ScoringConfig. storage is used to
// resolve ImageRef.FileID to bytes for vision calls; pass nil only in tests
// that exercise the text-only paths.
func NewAnthropicClient(cfg config.ScoringConfig, storage grading.FileStorage, logger *slog.Logger) *AnthropicClient {
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

	return &AnthropicClient{
		client:  anthropic.NewClient(opts...),
		model:   model,
		storage: storage,
		logger:  logger,
	}
}

const maxScoringTokens = 8192

func (c *AnthropicClient) imageBlocks(ctx context.Context, images []grading.ImageRef) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(images))
	for _, img := range images {
		data, err := c.storage.Download(ctx, img.FileID)
		if err != nil {
			return nil, fmt.Errorf("download page image %s: %w", img.FileID, err)
		}
		mediaType := img.ContentType
		if mediaType == "" {
			mediaType = "image/png"
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)))
	}
	return blocks, nil
}

func (c *AnthropicClient) call(ctx context.Context, blocks []anthropic.ContentBlockParamUnion, prompt string, stream grading.StreamCallback) (string, error) {
	content := append([]anthropic.ContentBlockParamUnion{}, blocks...)
	content = append(content, anthropic.NewTextBlock(prompt))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxScoringTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(content...)},
	}

	if stream == nil {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		return textOf(msg), nil
	}

	s := c.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}
	var out strings.Builder
	for s.Next() {
		event := s.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("accumulate stream event: %w", err)
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok && delta.Delta.Text != "" {
			out.WriteString(delta.Delta.Text)
			stream("output", delta.Delta.Text)
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	if out.Len() == 0 {
		return textOf(&message), nil
	}
	return out.String(), nil
}

func textOf(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// decodeOrExtract unmarshals raw into v, falling back to a best-effort
// brace-walk extraction when the model wraps its JSON reply in prose. Mirrors
// internal/workflow/grading's own decodeOrExtract, kept local since these are
// two independent packages in the teacher's per-package-helper style.
func decodeOrExtract(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	start, end := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return json.Unmarshal([]byte(raw), v)
	}
	body := raw[start : end+1]
	if !gjson.Valid(body) {
		return json.Unmarshal([]byte(raw), v)
	}
	return json.Unmarshal([]byte(body), v)
}

func (c *AnthropicClient) ParseRubric(ctx context.Context, images []grading.ImageRef, stream grading.StreamCallback) (grading.RawRubricResponse, error) {
	blocks, err := c.imageBlocks(ctx, images)
	if err != nil {
		return nil, err
	}
	prompt := `Read the attached rubric pages and return ONLY a JSON object matching:
{"total_questions": int, "total_score": number, "confession": {"confidence": number 0-1, "risks": [string]},
 "questions": [{"question_id": string, "max_score": number, "standard_answer": string,
   "scoring_points": [{"point_id": string, "score": number, "expected_value": string}]}]}
No prose, no markdown fences.`

	raw, err := c.call(ctx, blocks, prompt, stream)
	if err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}
	var out grading.RawRubricResponse
	if err := decodeOrExtract(raw, &out); err != nil {
		return nil, fmt.Errorf("decode rubric response: %w", err)
	}
	return out, nil
}

func (c *AnthropicClient) ReviseRubricQuestions(ctx context.Context, images []grading.ImageRef, selected []grading.RubricQuestionSelector, notes string) ([]grading.RawQuestionJSON, error) {
	blocks, err := c.imageBlocks(ctx, images)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(selected))
	var noteLines strings.Builder
	for _, s := range selected {
		ids = append(ids, s.QuestionID)
		if s.Notes != "" {
			fmt.Fprintf(&noteLines, "- %s: %s\n", s.QuestionID, s.Notes)
		}
	}
	prompt := fmt.Sprintf(`Re-read the rubric pages and re-extract ONLY these question_id values: %s.
Reviewer notes:
%s
Return ONLY a JSON array of question objects, same shape as before (question_id, max_score, standard_answer, scoring_points).`,
		strings.Join(ids, ", "), noteLines.String())
	if notes != "" {
		prompt += "\nOverall reviewer notes: " + notes
	}

	raw, err := c.call(ctx, blocks, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("revise rubric questions: %w", err)
	}
	var out []grading.RawQuestionJSON
	if err := decodeOrExtract(raw, &out); err != nil {
		return nil, fmt.Errorf("decode revised rubric questions: %w", err)
	}
	return out, nil
}

func (c *AnthropicClient) GradeStudent(ctx context.Context, images []grading.ImageRef, studentKey string, rubric *grading.ParsedRubric, pageIndices []int, stream grading.StreamCallback) (grading.RawStudentGradingResult, error) {
	blocks, err := c.imageBlocks(ctx, images)
	if err != nil {
		return nil, err
	}
	rubricCtx := ""
	if rubric != nil {
		rubricCtx = grading.BuildRubricContext(*rubric)
	}
	prompt := fmt.Sprintf(`Grade student %q against this rubric:
%s

Return ONLY a JSON object matching:
{"status": "graded", "total_score": number, "max_score": number, "confidence": number 0-1,
 "overall_feedback": string, "question_details": [{"question_id": string, "score": number, "max_score": number,
 "confidence": number, "feedback": string, "scoring_point_results": [{"point_id": string, "awarded": number, "max_points": number, "evidence": string}]}]}`,
		studentKey, rubricCtx)

	raw, err := c.call(ctx, blocks, prompt, stream)
	if err != nil {
		return nil, fmt.Errorf("grade student %s: %w", studentKey, err)
	}
	var out grading.RawStudentGradingResult
	if err := decodeOrExtract(raw, &out); err != nil {
		return nil, fmt.Errorf("decode grading result for %s: %w", studentKey, err)
	}
	return out, nil
}

func (c *AnthropicClient) GradeSingleQuestion(ctx context.Context, image grading.ImageRef, questionID string, pageIndex int, reviewerNotes string) (grading.RawQuestionResult, error) {
	blocks, err := c.imageBlocks(ctx, []grading.ImageRef{image})
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`Re-grade only question_id %q on this page. Reviewer notes: %s
Return ONLY a JSON object: {"question_id": string, "score": number, "max_score": number, "confidence": number, "feedback": string}`,
		questionID, reviewerNotes)

	raw, err := c.call(ctx, blocks, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("regrade question %s: %w", questionID, err)
	}
	var out grading.RawQuestionResult
	if err := decodeOrExtract(raw, &out); err != nil {
		return nil, fmt.Errorf("decode regrade result for %s: %w", questionID, err)
	}
	return out, nil
}

func (c *AnthropicClient) AnalyzeWithVision(ctx context.Context, images []grading.ImageRef, prompt string, stream grading.StreamCallback) (string, error) {
	blocks, err := c.imageBlocks(ctx, images)
	if err != nil {
		return "", err
	}
	out, err := c.call(ctx, blocks, prompt, stream)
	if err != nil {
		return "", fmt.Errorf("analyze with vision: %w", err)
	}
	return out, nil
}
