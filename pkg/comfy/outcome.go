package comfy

// OutcomeKind is the terminal state of a polling loop.
type OutcomeKind int

const (
	// OutcomeCompleted means the expected output node published an artifact.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeFailed means the workflow reached a terminal error or produced
	// no usable output.
	OutcomeFailed
	// OutcomeTimedOut means the total polling budget elapsed without a
	// terminal state. Never treated as success.
	OutcomeTimedOut
)

// PollOutcome is the tri-state result of polling one submission to its end.
type PollOutcome struct {
	Kind     OutcomeKind
	Artifact string // artifact file name, set when Kind == OutcomeCompleted
	Reason   string // failure diagnostic, set when Kind != OutcomeCompleted
}

func Completed(artifact string) PollOutcome {
	return PollOutcome{Kind: OutcomeCompleted, Artifact: artifact}
}

func Failed(reason string) PollOutcome {
	return PollOutcome{Kind: OutcomeFailed, Reason: reason}
}

func TimedOut(reason string) PollOutcome {
	return PollOutcome{Kind: OutcomeTimedOut, Reason: reason}
}
