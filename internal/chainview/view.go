// Package chainview projects the on-chain lifecycle of payment channels onto
// the actions each side may take locally. It never changes the lifecycle
// itself.
package chainview

import (
	"errors"
	"fmt"
)

// ErrActionNotPermitted is returned by View.Require for an action the
// channel's lifecycle state does not license.
var ErrActionNotPermitted = errors.New("action not permitted")

// State is the local projection of a channel's lifecycle.
type State uint8

const (
	StateUnopened State = iota
	StateOpened
	StateChallenged
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpened:
		return "opened"
	case StateChallenged:
		return "challenged"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Action is a local operation gated by the lifecycle.
type Action uint8

const (
	// provider
	ActionServe Action = iota
	ActionAcceptVoucher

	// client
	ActionFund
	ActionChallenge
	ActionWait
	ActionWithdraw
)

func (a Action) String() string {
	switch a {
	case ActionServe:
		return "serve"
	case ActionAcceptVoucher:
		return "accept-voucher"
	case ActionFund:
		return "fund"
	case ActionChallenge:
		return "challenge"
	case ActionWait:
		return "wait"
	case ActionWithdraw:
		return "withdraw"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Facts are what the escrow reports about one channel. Several flags may be
// set at once since the contract keeps every address it has seen in each of
// its lists.
type Facts struct {
	Opened     bool
	Challenged bool
	Closed     bool
	// TimeLeft is the number of seconds left in the challenge period. It is
	// only meaningful when Challenged is set.
	TimeLeft uint64
}

// View is the immutable set of permitted actions derived from Facts.
type View struct {
	facts Facts
	state State
}

// NewView derives the view of facts. Closed takes precedence over
// Challenged, which takes precedence over Opened.
func NewView(facts Facts) View {
	v := View{facts: facts}
	switch {
	case facts.Closed:
		v.state = StateClosed
	case facts.Challenged:
		v.state = StateChallenged
	case facts.Opened:
		v.state = StateOpened
	default:
		v.state = StateUnopened
	}
	return v
}

// State returns the projected lifecycle state.
func (v View) State() State { return v.state }

// Facts returns the facts the view was built from.
func (v View) Facts() Facts { return v.facts }

// TimeLeft returns the remaining challenge period in seconds, or zero outside
// the Challenged state.
func (v View) TimeLeft() uint64 {
	if v.state != StateChallenged {
		return 0
	}
	return v.facts.TimeLeft
}

// Active reports whether the channel still carries service: opened, or
// challenged with time left.
func (v View) Active() bool {
	return v.state == StateOpened || (v.state == StateChallenged && v.facts.TimeLeft > 0)
}

// Allows reports whether a is permitted.
func (v View) Allows(a Action) bool {
	switch a {
	case ActionServe, ActionAcceptVoucher:
		return v.Active()
	case ActionFund:
		return v.state == StateUnopened
	case ActionChallenge:
		return v.state == StateOpened
	case ActionWait:
		return v.state == StateChallenged && v.facts.TimeLeft > 0
	case ActionWithdraw:
		return v.state == StateChallenged && v.facts.TimeLeft == 0
	default:
		return false
	}
}

// Require returns ErrActionNotPermitted if a is not permitted.
func (v View) Require(a Action) error {
	if !v.Allows(a) {
		return fmt.Errorf("%w: cannot %s a channel that is %s", ErrActionNotPermitted, a, v)
	}
	return nil
}

func (v View) String() string {
	if v.state == StateChallenged {
		return fmt.Sprintf("%s (%ds left)", v.state, v.facts.TimeLeft)
	}
	return v.state.String()
}
