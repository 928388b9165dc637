// Package extract asks an LLM to pull the recommendation fields out of a
// report's text and validates the answer into a fixed-shape record.
package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cda-harvester/internal/model"
	"github.com/sells-group/cda-harvester/pkg/anthropic"
)

const systemPrompt = "Extract data from pharmaceutical documents. Return only valid JSON."

const promptTemplate = `Extract the following information from this Canadian Drug Agency "Recommendation and Reasons" document.
Focus on accuracy and extract information exactly as requested.
Return as JSON:

{
    "brand_name": "Brand/trade name of the drug",
    "generic_name": "Generic/chemical name of the drug",
    "therapeutic_area": "Medical/therapeutic area or disease category",
    "indication": "Specific medical indication/condition being treated",
    "sponsor": "Pharmaceutical company/sponsor name",
    "submission_date": "Date when submission was made (YYYY-MM-DD if possible)",
    "recommendation_date": "Date of recommendation (YYYY-MM-DD if possible)",
    "recommendation_type": "Type of recommendation (e.g., 'Reimburse', 'Do not reimburse', etc.)",
    "rationale": "Extract specifically from Summary section: 'Which Patients Are Eligible for Coverage?' and 'What Are the Conditions for Reimbursement?' - combine both sections"
}

If any field is not found, use "Not specified".
For rationale, look specifically in the Summary section for patient eligibility and reimbursement conditions.

Document text:
`

// ErrMalformed marks a response that could not be shaped into a record.
var ErrMalformed = eris.New("extract: malformed response")

// Extractor turns document text into a record. A nil record with a nil error
// means nothing usable was extracted.
type Extractor interface {
	Extract(ctx context.Context, text, docID string) (*model.ExtractedRecord, error)
}

// Options configures the LLM extractor.
type Options struct {
	Model       string
	MaxChars    int
	MaxTokens   int64
	Temperature float64
}

// LLM is an Extractor backed by the Anthropic Messages API.
type LLM struct {
	client anthropic.Client
	opts   Options
	now    func() time.Time
}

// New creates an LLM extractor.
func New(client anthropic.Client, opts Options) *LLM {
	if opts.MaxChars <= 0 {
		opts.MaxChars = 4000
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	return &LLM{client: client, opts: opts, now: time.Now}
}

// Extract implements Extractor. Service failures and malformed answers are
// logged and reported as an empty result; only cancellation is an error.
func (l *LLM) Extract(ctx context.Context, text, docID string) (*model.ExtractedRecord, error) {
	log := zap.L().With(zap.String("document", docID))

	if strings.TrimSpace(text) == "" {
		log.Debug("extract: empty text, skipping")
		return nil, nil
	}

	temp := l.opts.Temperature
	resp, err := l.client.Complete(ctx, anthropic.Prompt{
		Model:       l.opts.Model,
		System:      systemPrompt,
		User:        BuildPrompt(text, l.opts.MaxChars),
		MaxTokens:   l.opts.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, eris.Wrap(ctxErr, "extract: cancelled")
		}
		log.Error("extract: llm request failed", zap.Error(err))
		return nil, nil
	}
	resp.Usage.Log(l.opts.Model, docID)
	if resp.Truncated() {
		log.Warn("extract: answer hit the token limit", zap.Int64("max_tokens", l.opts.MaxTokens))
	}

	rec, err := ParseRecord(resp.Text)
	if err != nil {
		log.Error("extract: discarding response", zap.Error(err))
		return nil, nil
	}

	rec.DocumentLink = docID
	rec.ExtractionDate = l.now().Format(time.RFC3339)
	log.Info("extract: fields extracted", zap.String("brand", rec.Brand()))
	return rec, nil
}

// BuildPrompt appends the first maxChars characters of text to the
// instruction template.
func BuildPrompt(text string, maxChars int) string {
	r := []rune(text)
	if len(r) > maxChars {
		r = r[:maxChars]
	}
	return promptTemplate + string(r)
}

// ParseRecord validates an LLM answer into a record. Every extracted field
// must be a string, a number, null or absent; missing values become
// model.NotSpecified.
func ParseRecord(raw string) (*model.ExtractedRecord, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return nil, eris.Wrap(ErrMalformed, "empty response")
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "decode json: %v", err)
	}
	if obj == nil {
		return nil, eris.Wrap(ErrMalformed, "not a json object")
	}

	rec := &model.ExtractedRecord{}
	for _, name := range model.ExtractedFields {
		var val string
		switch v := obj[name].(type) {
		case nil:
		case string:
			val = strings.TrimSpace(v)
		case json.Number:
			val = v.String()
		default:
			return nil, eris.Wrapf(ErrMalformed, "field %s has type %T", name, v)
		}
		if val == "" {
			val = model.NotSpecified
		}
		rec.SetField(name, val)
	}
	return rec, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
