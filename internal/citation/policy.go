// Package citation decides when retrieved sources may be shown to the user.
package citation

import "github.com/wolfman30/medibot/internal/intent"

// Suppression reasons recorded on the assistant reply.
const (
	ReasonEmergencyOverride  = "emergency_override"
	ReasonNoSources          = "no_high_confidence_sources"
	ReasonAmbiguousSymptoms  = "ambiguous_symptoms"
	ReasonLowRetrievalSignal = "low_rag_confidence"
)

// MinRetrievalConfidence is the retrieval confidence below which retrieved
// context is discarded before synthesis.
const MinRetrievalConfidence = 0.35

// SuppressionReason returns the reason citations must be withheld for a
// reply, or "" when they may be shown. Rules are evaluated in order.
func SuppressionReason(message string, emergency bool, chunkCount int) string {
	switch {
	case emergency:
		return ReasonEmergencyOverride
	case chunkCount == 0:
		return ReasonNoSources
	case intent.IsMedicationQuery(message):
		return ""
	case intent.IsInformational(message):
		return ""
	case !intent.HasExplicitCondition(message):
		return ReasonAmbiguousSymptoms
	default:
		return ""
	}
}

// BelowConfidenceGate reports whether retrieval was too weak to ground a reply.
func BelowConfidenceGate(confidence float64) bool {
	return confidence < MinRetrievalConfidence
}
