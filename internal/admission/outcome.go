package admission

// OutcomeKind classifies what happened to a submitted event.
type OutcomeKind string

const (
	// OutcomeSuccess: a reply was generated and handed to delivery.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeLimitReached: the free tier is exhausted; the upsell message
	// was sent instead of a generated reply.
	OutcomeLimitReached OutcomeKind = "limit_reached"
	// OutcomeDeferred: the event was buffered for a later drain; the caller
	// gets no eventual result.
	OutcomeDeferred OutcomeKind = "deferred"
	// OutcomeFailed: the pipeline aborted; Err carries the cause.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the result of submitting one inbound event.
type Outcome struct {
	Kind  OutcomeKind
	Reply string
	Err   error
}

func success(reply string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Reply: reply}
}

func limitReached(upsell string) Outcome {
	return Outcome{Kind: OutcomeLimitReached, Reply: upsell}
}

func failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}
