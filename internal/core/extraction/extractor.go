// Package extraction asks a language model for the contacts and case
// metadata in a filing.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

const defaultMaxInputChars = 120000

// Result is one parsed extraction.
type Result struct {
	Contacts []models.Contact
	Metadata models.DocumentMetadata
}

type Extractor struct {
	llm           core.LLMProvider
	maxInputChars int
}

func NewExtractor(llm core.LLMProvider, maxInputChars int) *Extractor {
	if maxInputChars <= 0 {
		maxInputChars = defaultMaxInputChars
	}
	return &Extractor{llm: llm, maxInputChars: maxInputChars}
}

// Extract makes one model call. Output that is not a JSON object fails with
// core.ErrExtractionFormat; nothing is guessed from partial output.
func (e *Extractor) Extract(ctx context.Context, md string) (*Result, error) {
	input := truncateAtLine(md, e.maxInputChars)

	raw, err := e.llm.Generate(ctx, systemPrompt, input)
	if err != nil {
		return nil, goerr.Wrap(err, "extraction model call")
	}
	return Parse(raw)
}

// Parse decodes model output into a Result.
func Parse(raw string) (*Result, error) {
	cleaned := cleanJSONResponse(raw)

	var out struct {
		Contacts         []map[string]any `json:"contacts"`
		DocumentMetadata map[string]any   `json:"document_metadata"`
	}
	if !strings.HasPrefix(cleaned, "{") {
		return nil, formatError(raw, "output is not a JSON object")
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, formatError(raw, err.Error())
	}

	res := &Result{Contacts: make([]models.Contact, 0, len(out.Contacts))}
	for _, c := range out.Contacts {
		if c == nil {
			continue
		}
		res.Contacts = append(res.Contacts, models.Contact{
			Name:    models.Deref(field(c, "name")),
			Role:    field(c, "role"),
			Firm:    field(c, "firm"),
			Email:   field(c, "email"),
			Phone:   field(c, "phone"),
			Address: field(c, "address"),
		})
	}
	if m := out.DocumentMetadata; m != nil {
		res.Metadata = models.DocumentMetadata{
			CaseName:    field(m, "case_name"),
			CourtFileNo: field(m, "court_file_no"),
			FilingDate:  field(m, "filing_date"),
		}
	}
	return res, nil
}

// field normalises a model value. Missing, null, empty, "null" and "N/A"
// all mean absent.
func field(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64, bool:
		s = fmt.Sprint(t)
	default:
		return nil
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "n/a", "none":
		return nil
	}
	return &s
}

func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}
	return strings.TrimSpace(response)
}

func formatError(raw, reason string) error {
	return goerr.Wrap(core.ErrExtractionFormat, reason, goerr.V("sample", truncate(raw, 200)))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// truncateAtLine keeps at most max runes, cutting back to the last line
// break when there is one.
func truncateAtLine(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if i := strings.LastIndex(cut, "\n"); i > 0 {
		return cut[:i]
	}
	return cut
}

const systemPrompt = `You extract contact information from Canadian court filings.
Return exactly one JSON object and nothing else, with this shape:

{
  "contacts": [
    {"name": string, "role": string|null, "firm": string|null,
     "email": string|null, "phone": string|null, "address": string|null}
  ],
  "document_metadata": {
    "case_name": string|null, "court_file_no": string|null, "filing_date": string|null
  }
}

Rules:
- Include every lawyer, monitor, trustee, receiver or party representative listed.
- "role" is the capacity the person acts in, for example "Counsel to the Monitor".
- Use null for any field that does not appear in the document. Never invent values.
- Copy names, emails and phone numbers exactly as written.`
