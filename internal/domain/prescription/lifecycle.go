package prescription

import (
	"github.com/hospital/appointments/internal/platform/apperr"
)

type Action string

const (
	ActionIssue    Action = "issue"
	ActionDispense Action = "dispense"
	ActionExpire   Action = "expire"
)

// Effect is a side effect the service performs after a transition is stored.
type Effect string

const EffectNotifyIssued Effect = "notify_issued"

var transitions = map[Action]struct {
	from    Status
	to      Status
	effects []Effect
}{
	ActionIssue:    {from: StatusDraft, to: StatusIssued, effects: []Effect{EffectNotifyIssued}},
	ActionDispense: {from: StatusIssued, to: StatusDispensed},
	ActionExpire:   {from: StatusIssued, to: StatusExpired},
}

// Transition returns the state reached by action from state from and the
// effects it requests.
func Transition(from Status, action Action) (Status, []Effect, error) {
	t, ok := transitions[action]
	if !ok {
		return from, nil, apperr.Validation("unknown action %q", action)
	}
	if from != t.from {
		return from, nil, apperr.Transition("cannot %s a %s prescription: it must be %s", action, from, t.from)
	}
	effects := make([]Effect, len(t.effects))
	copy(effects, t.effects)
	return t.to, effects, nil
}
