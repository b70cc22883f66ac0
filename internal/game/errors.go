package game

import (
	"errors"
	"fmt"
)

// Reason is the code sent to a client whose action was rejected.
type Reason string

const (
	ReasonInvalidCard         Reason = "invalid_card"
	ReasonNotYourTurn         Reason = "not_your_turn"
	ReasonMustDrawOrCallBluff Reason = "must_draw_or_call_bluff"
	ReasonCannotCallBluff     Reason = "cannot_call_bluff"
	ReasonInvalidAction       Reason = "invalid_action"
	ReasonCannotStart         Reason = "cannot_start"
)

// ErrRejected matches every *Rejection.
var ErrRejected = errors.New("game: action rejected")

// Rejection is a recoverable refusal. Game state is unchanged when one is
// returned.
type Rejection struct {
	Reason Reason
	Text   string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("game: rejected (%s): %s", r.Reason, r.Text)
}

func (r *Rejection) Is(target error) bool {
	return target == ErrRejected
}

func reject(reason Reason, format string, args ...any) error {
	return &Rejection{Reason: reason, Text: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
