package scheduling

import (
	"strings"

	"github.com/hospital/appointments/internal/platform/apperr"
)

// Action is a user or system request to move an appointment.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// Effect is a side effect requested by a transition. The service performs
// effects after the state change is stored; their failure is logged only.
type Effect string

const (
	EffectCreateCalendarEvent Effect = "create_calendar_event"
	EffectDeleteCalendarEvent Effect = "delete_calendar_event"
	EffectNotifyConfirmation  Effect = "notify_confirmation"
	EffectCancelTasks         Effect = "cancel_tasks"
)

type rule struct {
	from    []Status
	to      Status
	effects []Effect
}

var rules = map[Action]rule{
	ActionConfirm: {
		from:    []Status{StatusDraft},
		to:      StatusConfirmed,
		effects: []Effect{EffectCreateCalendarEvent, EffectNotifyConfirmation},
	},
	ActionStart: {
		from: []Status{StatusConfirmed},
		to:   StatusInProgress,
	},
	ActionComplete: {
		from: []Status{StatusConfirmed, StatusInProgress},
		to:   StatusDone,
	},
	ActionCancel: {
		from:    []Status{StatusDraft, StatusConfirmed, StatusInProgress},
		to:      StatusCancelled,
		effects: []Effect{EffectDeleteCalendarEvent, EffectCancelTasks},
	},
}

// Transition computes the state reached by applying action in state from and
// the effects the move requests. It has no side effects.
func Transition(from Status, action Action) (Status, []Effect, error) {
	r, ok := rules[action]
	if !ok {
		return from, nil, apperr.Validation("unknown action %q", action)
	}
	for _, s := range r.from {
		if s == from {
			effects := make([]Effect, len(r.effects))
			copy(effects, r.effects)
			return r.to, effects, nil
		}
	}
	return from, nil, apperr.Transition("cannot %s a %s appointment: it must be %s", action, from, joinStates(r.from))
}

// Allowed lists the actions valid in state s.
func Allowed(s Status) []Action {
	var out []Action
	for _, a := range []Action{ActionConfirm, ActionStart, ActionComplete, ActionCancel} {
		if _, _, err := Transition(s, a); err == nil {
			out = append(out, a)
		}
	}
	return out
}

func joinStates(states []Status) string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
}
