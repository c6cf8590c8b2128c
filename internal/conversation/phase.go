package conversation

import (
	"strings"

	"github.com/wolfman30/medibot/internal/intent"
	"github.com/wolfman30/medibot/internal/safety"
)

// phaseInformational is narrower than intent.IsInformational; it only
// decides whether a red message is treated as a risk assessment.
var phaseInformational = []string{
	"what is", "what are", "symptoms of", "causes of",
	"how does", "how do i", "explain", "tell me about",
}

// NextPhase runs the phase transition for one turn. Precedence is
// escalated, closed, opening, risk_assessment, clarification, then
// info_gathering.
func NextPhase(message string, analysis Analysis, escalated bool) Phase {
	switch {
	case escalated:
		return PhaseEscalated
	case intent.IsGoodbye(message):
		return PhaseClosed
	case intent.IsGreeting(message):
		return PhaseOpening
	case analysis.RiskLevel == safety.RiskRed && !containsAny(strings.ToLower(message), phaseInformational):
		return PhaseRiskAssessment
	case intent.IsVagueFollowup(message):
		return PhaseClarification
	default:
		return PhaseInfoGathering
	}
}

// RatchetPhase forces every turn after a recorded clarification into the
// answering phase so clarification is asked at most once.
func RatchetPhase(next Phase, clarificationAsked bool) Phase {
	if clarificationAsked {
		return PhaseAnswering
	}
	return next
}
