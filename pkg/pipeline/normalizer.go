package pipeline

import "github.com/genflowhq/genflow/pkg/models"

// maxUnwrapDepth bounds envelope unwrapping so a malformed or self-similar
// payload can never loop the normalizer.
const maxUnwrapDepth = 5

// envelopeKind tags the wrapper shapes the generation service is known to
// wrap answers in. Matchers are tried in this fixed priority order.
type envelopeKind int

const (
	envelopeNone envelopeKind = iota
	envelopeArrayOfOne
	envelopeRoleContent
	envelopePayload
	envelopeContent
)

// Normalize strips known wrapper shapes from a step's raw response to recover
// the canonical content object. It unwraps at most maxUnwrapDepth envelopes,
// re-checking for the step's expected marker fields after every unwrap and
// stopping as soon as markers appear, so legitimately nested structures are
// never over-unwrapped.
//
// The second return value reports whether markers were found. When false the
// caller must treat the (deepest reached) payload as ambiguous: still stored,
// flagged for operator follow-up, never silently discarded.
func Normalize(step string, raw any) (map[string]any, bool) {
	current := raw

	for depth := 0; depth < maxUnwrapDepth; depth++ {
		if payload, ok := asObject(current); ok && hasMarkers(step, payload) {
			return payload, true
		}

		kind, inner := matchEnvelope(step, current)
		if kind == envelopeNone {
			break
		}

		current = inner
	}

	payload, ok := asObject(current)
	if !ok {
		// Non-object leaf (string, number, array). Keep it under a generic
		// key so the component is still inspectable.
		return map[string]any{"value": current}, false
	}

	return payload, hasMarkers(step, payload)
}

// matchEnvelope tries each envelope matcher in priority order and returns the
// wrapped value, or envelopeNone when the current value is not a recognized
// wrapper.
func matchEnvelope(step string, value any) (envelopeKind, any) {
	if list, ok := value.([]any); ok && len(list) == 1 {
		return envelopeArrayOfOne, list[0]
	}

	obj, ok := asObject(value)
	if !ok {
		return envelopeNone, nil
	}

	if role, _ := obj["role"].(string); role == "assistant" {
		if content, exists := obj["content"]; exists {
			return envelopeRoleContent, content
		}
	}

	// The payload and content unwraps only apply while the outer object lacks
	// the step's marker fields; hasMarkers was already checked by the caller.
	if payload, exists := obj["payload"]; exists {
		if _, isObj := asObject(payload); isObj {
			return envelopePayload, payload
		}
	}

	if content, exists := obj["content"]; exists {
		return envelopeContent, content
	}

	return envelopeNone, nil
}

func hasMarkers(step string, payload map[string]any) bool {
	def, ok := models.StepByName(step)
	if !ok {
		return false
	}

	for _, marker := range def.Markers {
		value, exists := payload[marker]
		if !exists {
			continue
		}

		// A present but empty list (e.g. topics: []) does not count as a
		// marker; the wrapper may carry hollow fields of its own.
		if list, isList := value.([]any); isList && len(list) == 0 {
			continue
		}

		return true
	}

	return false
}

func asObject(value any) (map[string]any, bool) {
	obj, ok := value.(map[string]any)

	return obj, ok
}
