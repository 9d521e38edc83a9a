package entity

import "fmt"

// OverwritePolicy controls what happens when a transfer target already exists.
type OverwritePolicy int

const (
	// PolicyNewerWins overwrites only when the source is newer (or differs in
	// size); a strictly newer destination becomes a Conflict.
	PolicyNewerWins OverwritePolicy = iota
	// PolicyAlways overwrites unconditionally.
	PolicyAlways
	// PolicyNever leaves existing destination entries untouched.
	PolicyNever
	// PolicyPromptOnConflict defers every overwrite to the caller as a
	// Conflict decision.
	PolicyPromptOnConflict
)

func (p OverwritePolicy) String() string {
	switch p {
	case PolicyNewerWins:
		return "newer-wins"
	case PolicyAlways:
		return "always"
	case PolicyNever:
		return "never"
	case PolicyPromptOnConflict:
		return "prompt"
	default:
		return "unknown"
	}
}

// ParseOverwritePolicy parses the CLI/profile spelling of a policy.
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch s {
	case "newer-wins", "newer":
		return PolicyNewerWins, nil
	case "always":
		return PolicyAlways, nil
	case "never":
		return PolicyNever, nil
	case "prompt":
		return PolicyPromptOnConflict, nil
	default:
		return PolicyNewerWins, fmt.Errorf("unknown overwrite policy %q", s)
	}
}

// SyncAction is the action chosen for one path when reconciling two trees.
type SyncAction int

const (
	ActionCopy SyncAction = iota
	ActionOverwrite
	ActionSkip
	// ActionConflict means the destination changed in a way the diff module
	// refuses to resolve on its own; the caller must decide.
	ActionConflict
)

func (a SyncAction) String() string {
	switch a {
	case ActionCopy:
		return "copy"
	case ActionOverwrite:
		return "overwrite"
	case ActionSkip:
		return "skip"
	case ActionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// SyncDecision pairs a transfer task with the action the diff module chose
// for it. Reason is a short human-readable justification.
type SyncDecision struct {
	Task   TransferTask
	Action SyncAction
	Reason string
}

func (d SyncDecision) String() string {
	return fmt.Sprintf("%s %s (%s)", d.Action, d.Task.SourcePath, d.Reason)
}
