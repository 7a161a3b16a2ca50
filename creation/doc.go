// Package creation processes batches of mailbox creation requests.
//
// A batch maps client-chosen creation ids to requests. A request may name
// its parent either by persistent [store.MailboxID] or by the creation id of
// another request in the same batch, so a batch describes a small forest that
// has to be created from the roots down:
//
//	batch := creation.Batch{
//	    {CreationID: "g", Name: "a"},
//	    {CreationID: "p", Name: "b", ParentRef: "g"},
//	    {CreationID: "c", Name: "c", ParentRef: "p"},
//	}
//	result := processor.Process(ctx, store.NewSession("alice"), batch)
//	// "c" is created at a/b/c
//
// # Processing
//
// [SortFromRootToLeaf] orders the batch so that every in-batch parent precedes
// its children; ties keep batch order. A batch whose in-batch references form
// a cycle is rejected as a whole before any store call, and every request maps
// to a [NotCreated] with [KindCycleDetected].
//
// [Processor] then handles requests one at a time. Each request either ends
// [Created] or [NotCreated]; a failure never stops later requests. A child of
// a request that failed is still attempted and ends with [KindParentNotFound].
//
// # Errors
//
// Per-request failures are reported as an [ErrorKind]. [ErrorKind.WireType]
// collapses the kinds to the two protocol buckets, "invalidArguments" and
// "anErrorOccurred".
package creation
