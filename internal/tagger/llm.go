package tagger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/hyperjump/wakeru/internal/models"
)

// DefaultLLMLabels follows the OntoNotes label set used by common NER pipelines.
var DefaultLLMLabels = []string{
	"PERSON", "NORP", "FAC", "ORG", "GPE", "LOC", "PRODUCT", "EVENT", "WORK_OF_ART",
	"LAW", "LANGUAGE", "DATE", "TIME", "PERCENT", "MONEY", "QUANTITY", "ORDINAL", "CARDINAL",
}

const systemPrompt = `You are a named entity recognizer. You only output JSON.`

var promptTemplate = template.Must(template.New("ner").Parse(`Find every named entity mention in the text below.
Use only these labels: {{.Labels}}.
Return a JSON object {"entities": [{"text": "...", "label": "..."}]} listing mentions in the order they appear.
Copy "text" exactly as written in the document. Repeat an entity each time it is mentioned. Return {"entities": []} if there are none.

Text:
"""
{{.Text}}
"""`))

type promptData struct {
	Labels string
	Text   string
}

func renderPrompt(labels []string, text string) (string, error) {
	if len(labels) == 0 {
		labels = DefaultLLMLabels
	}
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, promptData{Labels: strings.Join(labels, ", "), Text: text}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

type llmResponse struct {
	Entities []struct {
		Text  string `json:"text"`
		Label string `json:"label"`
	} `json:"entities"`
}

// parseEntities decodes a model reply, tolerating a surrounding markdown code fence.
// Mentions with an empty span or label are dropped.
func parseEntities(reply string) ([]models.RawEntityMention, error) {
	body := strings.TrimSpace(reply)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if i := strings.IndexByte(body, '{'); i > 0 {
		body = body[i:]
	}
	var resp llmResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("parse entities: %w", err)
	}
	out := make([]models.RawEntityMention, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		if strings.TrimSpace(e.Text) == "" || e.Label == "" {
			continue
		}
		out = append(out, models.RawEntityMention{Text: e.Text, Label: strings.ToUpper(e.Label)})
	}
	return out, nil
}
