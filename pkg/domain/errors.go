package domain

import "errors"

// ErrConfigInvalid is returned when the declarative component tree is
// malformed. Fatal at tree construction.
var ErrConfigInvalid = errors.New("config invalid")

// ErrLoadFailure is returned when a component implementation cannot be
// resolved: version mismatch, missing entry point, or library not found.
// It is isolated to the offending component.
var ErrLoadFailure = errors.New("load failure")

// ErrDecisionTimeout is returned when a component fails to reply within its
// per-call or window deadline. Treated as "no vote", never fatal.
var ErrDecisionTimeout = errors.New("decision timeout")

// ErrRoundLimitExceeded terminates a Session that hit its round safety valve.
var ErrRoundLimitExceeded = errors.New("round limit exceeded")

// ErrSessionTimeout terminates a Session that hit its time safety valve.
var ErrSessionTimeout = errors.New("session timeout")

// ErrSessionClosed is returned when a Proposal arrives on a terminal Session.
var ErrSessionClosed = errors.New("session closed")

// ErrControlTimeout is returned when a control command went unanswered within
// its timeout. Recoverable.
var ErrControlTimeout = errors.New("control timeout")

// ErrBusy is returned when the target of a control command is already serving
// another command. Recoverable.
var ErrBusy = errors.New("component busy")

// ErrComponentNotFound is returned when a control command addresses an
// instance name that is not registered.
var ErrComponentNotFound = errors.New("component not found")

// ErrNotControllable is returned when the addressed instance does not accept
// control commands.
var ErrNotControllable = errors.New("component does not accept control commands")
