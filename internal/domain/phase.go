package domain

import "fmt"

// Phase is the interaction stage of a session. The numbering is part of the
// behavioral contract sent to the model, so the values must not change.
type Phase int

const (
	PhaseInput    Phase = 1
	PhaseClarify  Phase = 2
	PhaseOutput   Phase = 3
	PhaseComplete Phase = 4
)

var phaseNames = map[Phase]string{
	PhaseInput:    "input",
	PhaseClarify:  "clarify",
	PhaseOutput:   "output",
	PhaseComplete: "complete",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// AllPhases lists the phases in lifecycle order.
func AllPhases() []Phase {
	return []Phase{PhaseInput, PhaseClarify, PhaseOutput, PhaseComplete}
}

// ParsePhase converts a raw step number returned by a provider.
func ParsePhase(n int) (Phase, error) {
	p := Phase(n)
	if !p.Valid() {
		return 0, &InvalidPhaseError{Value: n}
	}
	return p, nil
}

// Advance returns the phase the session moves to after a completion result.
// The model decides the phase; nothing is inferred from the response text.
// On an unknown value the current phase is returned together with an InvalidPhaseError.
func Advance(current Phase, result CompletionResult) (Phase, error) {
	next, err := ParsePhase(int(result.NextPhase))
	if err != nil {
		return current, err
	}
	return next, nil
}
