package creation

import (
	"fmt"

	"github.com/jacentio/mailtree/store"
)

// ErrorKind classifies why a request was not created.
type ErrorKind int

const (
	// KindInvalidName means the name contains the delimiter or was rejected by the store.
	KindInvalidName ErrorKind = iota + 1
	// KindNameTooLong means the full mailbox name exceeds the store limit.
	KindNameTooLong
	// KindParentNotFound means the parent reference resolved to nothing.
	KindParentNotFound
	// KindAlreadyExists means a mailbox already owns the resolved path.
	KindAlreadyExists
	// KindCycleDetected means the batch's in-batch references form a cycle.
	KindCycleDetected
	// KindGenericCreationError covers every server-side failure.
	KindGenericCreationError
)

// Wire-level error types.
const (
	WireInvalidArguments = "invalidArguments"
	WireAnErrorOccurred  = "anErrorOccurred"
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidName:
		return "InvalidName"
	case KindNameTooLong:
		return "NameTooLong"
	case KindParentNotFound:
		return "ParentNotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindCycleDetected:
		return "CycleDetected"
	case KindGenericCreationError:
		return "GenericCreationError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// WireType maps the kind to its protocol error type. Client-correctable
// kinds are "invalidArguments"; everything else is "anErrorOccurred".
func (k ErrorKind) WireType() string {
	switch k {
	case KindInvalidName, KindNameTooLong, KindParentNotFound, KindAlreadyExists, KindCycleDetected:
		return WireInvalidArguments
	default:
		return WireAnErrorOccurred
	}
}

// Result is the outcome of one request: Created or NotCreated.
type Result interface {
	isResult()
}

// Created reports a successfully created mailbox.
type Created struct {
	Mailbox store.Mailbox
}

// NotCreated reports a request that produced no mailbox.
type NotCreated struct {
	Kind        ErrorKind
	Description string
}

func (Created) isResult()    {}
func (NotCreated) isResult() {}

const cycleDescription = "The created mailboxes introduce a cycle."

// BatchResult maps every creation id of a batch to its Result.
type BatchResult struct {
	ids     []CreationID
	results map[CreationID]Result
}

func newBatchResult(batch Batch) *BatchResult {
	return &BatchResult{
		ids:     batch.IDs(),
		results: make(map[CreationID]Result, len(batch)),
	}
}

// cycleResult marks every request of batch as NotCreated with KindCycleDetected.
func cycleResult(batch Batch) *BatchResult {
	r := newBatchResult(batch)
	for _, id := range r.ids {
		r.results[id] = NotCreated{Kind: KindCycleDetected, Description: cycleDescription}
	}
	return r
}

func (r *BatchResult) record(id CreationID, result Result) {
	r.results[id] = result
}

// complete fills any id left without an outcome so the result stays total.
func (r *BatchResult) complete() {
	for _, id := range r.ids {
		if _, ok := r.results[id]; !ok {
			r.results[id] = NotCreated{
				Kind:        KindGenericCreationError,
				Description: fmt.Sprintf("An error occurred when creating the mailbox '%s'", id),
			}
		}
	}
}

// Len returns the number of outcomes.
func (r *BatchResult) Len() int {
	return len(r.results)
}

// IDs returns the creation ids in batch order.
func (r *BatchResult) IDs() []CreationID {
	return append([]CreationID(nil), r.ids...)
}

// Get returns the outcome recorded for id.
func (r *BatchResult) Get(id CreationID) (Result, bool) {
	result, ok := r.results[id]
	return result, ok
}

// Created returns the successful outcomes keyed by creation id.
func (r *BatchResult) Created() map[CreationID]Created {
	created := make(map[CreationID]Created)
	for id, result := range r.results {
		if c, ok := result.(Created); ok {
			created[id] = c
		}
	}
	return created
}

// NotCreated returns the failed outcomes keyed by creation id.
func (r *BatchResult) NotCreated() map[CreationID]NotCreated {
	notCreated := make(map[CreationID]NotCreated)
	for id, result := range r.results {
		if n, ok := result.(NotCreated); ok {
			notCreated[id] = n
		}
	}
	return notCreated
}
