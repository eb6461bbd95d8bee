package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/resilience"
	"github.com/sells-group/expert-registry/pkg/anthropic"
)

const (
	extractionTemperature = 0.1
	screeningTemperature  = 0.2
	maxResponseTokens     = 8192
)

// Options configures the anthropic-backed collaborators.
type Options struct {
	Model string
	Retry resilience.RetryConfig
}

// AnthropicExtractor implements Extractor and Screener against the
// Anthropic messages API.
type AnthropicExtractor struct {
	client anthropic.Client
	model  string
	retry  resilience.RetryConfig
}

// NewAnthropicExtractor builds the collaborator. An empty model falls
// back to Sonnet.
func NewAnthropicExtractor(client anthropic.Client, opts Options) *AnthropicExtractor {
	m := opts.Model
	if m == "" {
		m = "claude-sonnet-4-5-20250929"
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	return &AnthropicExtractor{client: client, model: m, retry: retry}
}

// Extract parses one email into structured profiles. A schema-invalid
// response gets exactly one repair round trip; a second invalid response
// surfaces as a resilience.SchemaError.
func (e *AnthropicExtractor) Extract(ctx context.Context, req ExtractRequest) (*model.Extraction, error) {
	if strings.TrimSpace(req.EmailText) == "" {
		return nil, eris.New("extract: empty email text")
	}

	userPrompt := buildExtractionPrompt(req)
	raw, usage, err := e.complete(ctx, extractionSystemPrompt, []anthropic.Message{
		{Role: "user", Content: userPrompt},
	}, extractionTemperature)
	if err != nil {
		return nil, eris.Wrap(err, "extract: extraction request")
	}
	usage.LogCost(e.model, "extraction")

	extraction, valErr := parseExtraction(raw)
	if valErr == nil {
		return extraction, nil
	}

	zap.L().Warn("extraction response failed validation, attempting repair",
		zap.String("error", valErr.Error()))

	repaired, usage, err := e.complete(ctx, extractionSystemPrompt, []anthropic.Message{
		{Role: "user", Content: userPrompt},
		{Role: "assistant", Content: raw},
		{Role: "user", Content: buildRepairPrompt(raw, valErr.Error())},
	}, extractionTemperature)
	if err != nil {
		return nil, eris.Wrap(err, "extract: repair request")
	}
	usage.LogCost(e.model, "extraction_repair")

	extraction, valErr = parseExtraction(repaired)
	if valErr != nil {
		return nil, resilience.NewSchemaError("extraction response invalid after repair", valErr)
	}
	return extraction, nil
}

// Screen grades one expert against the project hypothesis and rubric.
func (e *AnthropicExtractor) Screen(ctx context.Context, req ScreenRequest) (*model.ScreeningResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, eris.New("extract: screen: empty expert name")
	}

	raw, usage, err := e.complete(ctx, screeningSystemPrompt, []anthropic.Message{
		{Role: "user", Content: buildScreeningPrompt(req)},
	}, screeningTemperature)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: screening request for %s", req.Name)
	}
	usage.LogCost(e.model, "screening")

	result, valErr := parseScreening(raw)
	if valErr != nil {
		return nil, resilience.NewSchemaError("screening response invalid", valErr)
	}
	return result, nil
}

func (e *AnthropicExtractor) complete(ctx context.Context, system string, msgs []anthropic.Message, temp float64) (string, anthropic.TokenUsage, error) {
	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       e.model,
			MaxTokens:   maxResponseTokens,
			System:      anthropic.BuildCachedSystemBlocks(system),
			Messages:    msgs,
			Temperature: &temp,
		})
	})
	if err != nil {
		return "", anthropic.TokenUsage{}, err
	}
	return resp.Text(), resp.Usage, nil
}

// extractJSON strips markdown code fences and any surrounding prose,
// returning the outermost JSON object.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", eris.New("no JSON object found in response")
	}
	return s[start : end+1], nil
}

func parseExtraction(raw string) (*model.Extraction, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var extraction model.Extraction
	if err := json.Unmarshal([]byte(payload), &extraction); err != nil {
		return nil, eris.Wrap(err, "unmarshal extraction")
	}
	if err := validateExtraction(&extraction); err != nil {
		return nil, err
	}
	return &extraction, nil
}

func validateExtraction(x *model.Extraction) error {
	var problems []string
	for i, p := range x.Profiles {
		if strings.TrimSpace(p.FullName) == "" {
			problems = append(problems, fmt.Sprintf("experts[%d]: full_name is required and missing or empty", i))
		}
		if p.OverallConfidence != "" && !validConfidence(p.OverallConfidence) {
			problems = append(problems, fmt.Sprintf("experts[%d]: overall_confidence must be low, medium, or high (got %q)", i, p.OverallConfidence))
		}
		if p.ConflictStatus != "" && !validConflictStatus(p.ConflictStatus) {
			problems = append(problems, fmt.Sprintf("experts[%d]: conflict_status must be cleared, pending, or conflict (got %q)", i, p.ConflictStatus))
		}
	}
	if len(problems) > 0 {
		return eris.New(strings.Join(problems, "; "))
	}
	return nil
}

func parseScreening(raw string) (*model.ScreeningResult, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var result model.ScreeningResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, eris.Wrap(err, "unmarshal screening result")
	}

	switch result.Grade {
	case model.GradeStrong, model.GradeMixed, model.GradeWeak:
	default:
		return nil, eris.Errorf("grade must be strong, mixed, or weak (got %q)", result.Grade)
	}
	if result.Score < 0 || result.Score > 100 {
		return nil, eris.Errorf("score must be 0-100 (got %d)", result.Score)
	}
	if result.Confidence != "" && !validConfidence(result.Confidence) {
		return nil, eris.Errorf("confidence must be low, medium, or high (got %q)", result.Confidence)
	}
	return &result, nil
}

func validConfidence(c model.Confidence) bool {
	switch c {
	case model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh:
		return true
	}
	return false
}

func validConflictStatus(c model.ConflictStatus) bool {
	switch c {
	case model.ConflictCleared, model.ConflictPending, model.ConflictConfirmed:
		return true
	}
	return false
}
