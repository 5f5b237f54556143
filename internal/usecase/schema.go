package usecase

import "RecoGateway/pkg/schema"

// responseSchema is the contract of every MergedRecommendation returned to a caller.
var responseSchema = schema.MustCompile("recommendation_response", `{
  "type": "object",
  "required": ["decision", "contracts", "position", "confidence", "rationale"],
  "properties": {
    "decision": {
      "type": "object",
      "required": ["direction", "strategy"],
      "properties": {
        "direction": {"type": "string", "enum": ["CALL", "PUT"]},
        "strategy": {"type": "string"}
      }
    },
    "contracts": {"type": "array"},
    "position": {
      "type": "object",
      "required": ["contracts", "notional"],
      "properties": {
        "contracts": {"type": "number"},
        "notional": {"type": "number"},
        "est_max_loss": {"type": "number"}
      }
    },
    "confidence": {"type": "number"},
    "disclosure": {"type": "string"},
    "rationale": {
      "type": "object",
      "required": ["summary", "layers"],
      "properties": {
        "summary": {"type": "string"},
        "layers": {"type": "object"},
        "compliance": {"type": "object"}
      }
    }
  }
}`)

// ValidateResponse checks a serialized MergedRecommendation.
func ValidateResponse(body []byte) error {
	return responseSchema.Validate(body)
}
