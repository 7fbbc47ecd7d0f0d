package llm

import (
	"encoding/json"

	"google.golang.org/genai"
)

// The structured-output demand sent with every request. The Gemini and
// Ollama forms must stay in sync with wireResult.

func geminiResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"nextStep":    {Type: genai.TypeInteger, Description: "conversation step, 1 to 4"},
			"response":    {Type: genai.TypeString, Description: "text shown to the user"},
			"mermaidCode": {Type: genai.TypeString, Description: "full Mermaid source when the diagram changed"},
		},
		Required:         []string{"nextStep", "response"},
		PropertyOrdering: []string{"nextStep", "response", "mermaidCode"},
	}
}

var jsonResponseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "nextStep": {"type": "integer"},
    "response": {"type": "string"},
    "mermaidCode": {"type": "string"}
  },
  "required": ["nextStep", "response"]
}`)
