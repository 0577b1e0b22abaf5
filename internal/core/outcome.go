package core

// Status classifies what a dispatch did to the state.
type Status string

const (
	// StatusApplied means every effect of the command was committed.
	StatusApplied Status = "applied"
	// StatusPartial means the command was committed with some effect skipped
	// (a movement recorded for an unknown product).
	StatusPartial Status = "partial"
	// StatusIgnored means the command left the state unchanged.
	StatusIgnored Status = "ignored"
	// StatusRejected means a blocking rule refused the transition.
	StatusRejected Status = "rejected"
)

// Reason names why a command was ignored, rejected or only partially applied.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonUnknownCommand Reason = "unknown_command"
	ReasonNotFound       Reason = "not_found"
	ReasonDuplicateID    Reason = "duplicate_id"
	ReasonUnknownProduct Reason = "unknown_product"
	ReasonRuleViolation  Reason = "rule_violation"
)

// Outcome reports the effect of a single command.
type Outcome struct {
	Status  Status   `json:"status"`
	Reason  Reason   `json:"reason,omitempty"`
	Detail  string   `json:"detail,omitempty"`
	Changes []Change `json:"changes,omitempty"`
	Result  Result   `json:"result"`
}

// Accepted reports whether the command produced a committed transition.
func (o Outcome) Accepted() bool {
	return o.Status == StatusApplied || o.Status == StatusPartial
}

func applied(changes []Change) Outcome {
	return Outcome{Status: StatusApplied, Changes: changes}
}

func ignored(reason Reason, detail string) Outcome {
	return Outcome{Status: StatusIgnored, Reason: reason, Detail: detail}
}
