// Package streaming implements the streaming execution loop (component G)
// and the Source/Sink contracts it drives (component H).
package streaming

import (
	"context"
	"fmt"

	"github.com/novatechflow/streamcore/pkg/offset"
)

// Schema is deliberately opaque: the core never inspects it, only threads
// it between a Source and the query engine.
type Schema interface{}

// Batch is one unit of work produced by a Source: the offset it advances
// to, and an opaque plan fragment bound to the data between the
// previously committed offset and endOffset.
type Batch struct {
	EndOffset offset.Offset
	Plan      interface{}
}

// Source is one input to a streaming query. String must return a stable
// identity: the same external source always renders the same string, and
// it is used both to key StreamProgress and to order a query's
// CompositeOffset.
type Source interface {
	fmt.Stringer
	// GetNextBatch returns a Batch whose EndOffset is strictly greater than
	// lastCommittedOffset, or nil if there is no new data. lastCommittedOffset
	// is nil on the very first call for a source with no recorded progress.
	GetNextBatch(ctx context.Context, lastCommittedOffset offset.Offset) (*Batch, error)
	Schema() Schema
}

// Sliceable is optionally implemented by test sources that can serve an
// arbitrary offset range directly, bypassing GetNextBatch's replay
// semantics.
type Sliceable interface {
	GetSlice(ctx context.Context, start, end offset.Offset) (interface{}, error)
}

// Sink is the output of a streaming query. AddBatch must be transactional:
// on success, CurrentOffset equals endOffset and the data is durable; on
// failure, neither changes.
type Sink interface {
	// CurrentOffset returns the offset last successfully committed, or a
	// zero CompositeOffset and false if nothing has ever been committed.
	CurrentOffset() (offset.CompositeOffset, bool)
	AddBatch(ctx context.Context, endOffset offset.CompositeOffset, data interface{}) error
}

// PlanRewriter substitutes every source's StreamingRelation with its new
// Batch's plan fragment, remapping output attribute references so the
// rest of the plan still sees the original schema identities. The query
// planner itself is a black box outside this package's scope.
type PlanRewriter func(batches map[Source]*Batch) (interface{}, error)

// PlanExecutor executes a rewritten plan and returns the resulting
// dataset, handed to Sink.AddBatch.
type PlanExecutor func(ctx context.Context, plan interface{}) (interface{}, error)

// QueryException captures an uncaught failure from the execution loop.
type QueryException struct {
	Message     string
	Cause       error
	StartOffset offset.CompositeOffset
	EndOffset   *offset.CompositeOffset
}

func (e *QueryException) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

func (e *QueryException) Unwrap() error { return e.Cause }
