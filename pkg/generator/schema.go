package generator

// responseSchema is the wire contract every generation response must satisfy
// before the payload is handed to the normalizer. Payload shape beyond "some
// JSON value" is deliberately unconstrained here: services wrap their answers
// in assorted envelopes and the normalizer owns unwrapping them.
var responseSchema = map[string]any{
	"type":     "object",
	"required": []any{"status", "payload"},
	"properties": map[string]any{
		"status": map[string]any{
			"type": "string",
			"enum": []any{"completed", "failed"},
		},
		"payload": map[string]any{},
		"error": map[string]any{
			"type": "string",
		},
	},
}
