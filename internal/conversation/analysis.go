package conversation

import (
	"github.com/wolfman30/medibot/internal/routing"
	"github.com/wolfman30/medibot/internal/safety"
)

// Analyze runs the safety classifier and domain router over a message.
func Analyze(message string) Analysis {
	signal := safety.Assess(message)
	domain, reason := routing.Infer(message)

	matches := routing.InferAll(message)
	all := make([]string, 0, len(matches))
	for _, m := range matches {
		all = append(all, m.Domain)
	}

	return Analysis{
		RiskLevel:          signal.Level,
		RiskReason:         signal.Reason,
		RiskTrigger:        signal.Trigger,
		PrimaryDomain:      domain,
		DomainReason:       reason,
		AllDomains:         all,
		EmergencyDetected:  signal.Emergency(),
		RequiresEscalation: signal.Emergency(),
	}
}

// threadState is what earlier turns of a conversation contribute to the
// current one.
type threadState struct {
	lockedDomain       string
	lastDomain         string
	slots              Slots
	clarificationAsked bool
}

// foldThread summarises prior interactions, oldest first.
func foldThread(prior []Interaction) threadState {
	st := threadState{slots: Slots{}}
	for _, mi := range prior {
		if st.lockedDomain == "" && !routing.IsGeneral(mi.PrimaryDomain) {
			st.lockedDomain = mi.PrimaryDomain
		}
		if !routing.IsGeneral(mi.PrimaryDomain) {
			st.lastDomain = mi.PrimaryDomain
		}
		st.slots = st.slots.Merge(mi.Slots)
		if mi.Phase == PhaseClarification {
			st.clarificationAsked = true
		}
	}
	return st
}
