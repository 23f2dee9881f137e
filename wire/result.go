package wire

import "context"

// Outcome is the result of a Rewrite call. It may contain pending nodes
// still waiting on a deferred codec call; Bytes looks each one up through
// the codec's Resolve without waiting, so it yields the rewritten bytes
// once the caller has already invoked the codec lifecycle's Finish for
// this direction (every future is completed before Finish returns).
type Outcome struct {
	root node
}

// Bytes materializes the rewritten message. Call it only after Finish has
// been invoked for this direction's lifecycle scope, if the installed
// codec has one; called earlier, it returns the codec's error for a token
// that has no settled result yet.
func (o *Outcome) Bytes(ctx context.Context) ([]byte, error) {
	return o.root.resolve(ctx)
}
