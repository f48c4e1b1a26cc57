package llm

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/logging"
)

// GeminiLLM answers every prompt with one JSON object. The model handle is
// configured once and shared by concurrent callers.
type GeminiLLM struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

type LLMOption func(*genai.GenerativeModel)

// WithResponseSchema constrains output to schema.
func WithResponseSchema(schema *genai.Schema) LLMOption {
	return func(m *genai.GenerativeModel) { m.ResponseSchema = schema }
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, opts ...LLMOption) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, goerr.New("gemini api key is empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, goerr.Wrap(err, "create gemini client", goerr.V("model", modelName))
	}

	m := cl.GenerativeModel(modelName)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0)
	for _, opt := range opts {
		opt(m)
	}
	return &GeminiLLM{client: cl, model: m, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate sends systemPrompt as the system instruction. A blocked prompt or
// a candidate stopped for safety is an error; an empty candidate is "".
func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := *g.model
	if systemPrompt != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", goerr.Wrap(err, "gemini generate", goerr.V("model", g.modelName))
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", goerr.New("prompt blocked", goerr.V("model", g.modelName), goerr.V("reason", fb.BlockReason.String()))
	}
	if u := resp.UsageMetadata; u != nil {
		logging.From(ctx).Debug("gemini usage",
			"model", g.modelName,
			"prompt_tokens", u.PromptTokenCount,
			"output_tokens", u.CandidatesTokenCount,
		)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", goerr.New("response stopped by safety filter", goerr.V("model", g.modelName))
	}

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// ContactSchema is the response shape for contact extraction. Optional
// fields are nullable so the model can leave them out instead of guessing.
func ContactSchema() *genai.Schema {
	nullable := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Nullable: true, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"contacts": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":    {Type: genai.TypeString},
						"role":    nullable("party role, e.g. Monitor or Applicant"),
						"firm":    nullable("law firm or organisation"),
						"email":   nullable(""),
						"phone":   nullable(""),
						"address": nullable(""),
					},
					Required: []string{"name"},
				},
			},
			"document_metadata": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"case_name":     nullable(""),
					"court_file_no": nullable(""),
					"filing_date":   nullable("as written in the filing"),
				},
			},
		},
		Required: []string{"contacts", "document_metadata"},
	}
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
