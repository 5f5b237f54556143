package downstream

import "RecoGateway/pkg/schema"

// Contracts of the downstream services. They check presence and primitive types only;
// business constraints such as the direction enum belong to the merged response check.
var (
	chainSnapshotSchema = schema.MustCompile("chain_snapshot", `{"type": "object"}`)

	signalSnapshotSchema = schema.MustCompile("signal_snapshot", `{"type": "object"}`)

	rawRecommendationSchema = schema.MustCompile("raw_recommendation", `{
  "type": "object",
  "required": ["decision", "contracts", "position", "confidence"],
  "properties": {
    "decision": {
      "type": "object",
      "required": ["direction", "strategy"],
      "properties": {
        "direction": {"type": "string"},
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
        "est_max_loss": {"type": ["number", "null"]}
      }
    },
    "confidence": {"type": "number"},
    "disclosure": {"type": ["string", "null"]}
  }
}`)

	rationaleSchema = schema.MustCompile("rationale", `{
  "type": "object",
  "required": ["summary", "layers"],
  "properties": {
    "summary": {"type": "string"},
    "layers": {"type": "object"},
    "compliance": {"type": "object"}
  }
}`)
)
