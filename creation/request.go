package creation

// CreationID is a client-assigned identifier scoped to one batch.
type CreationID string

// CreateRequest asks for one mailbox to be created.
type CreateRequest struct {
	// CreationID identifies the request within its batch.
	CreationID CreationID

	// Name is the leaf segment of the new mailbox.
	Name string

	// ParentRef is a persistent mailbox id or the CreationID of another
	// request in the batch. Empty for top-level mailboxes.
	ParentRef string
}

// HasParent reports whether the request names a parent.
func (r CreateRequest) HasParent() bool {
	return r.ParentRef != ""
}

// Batch is an ordered set of creation requests submitted together.
// Creation ids are unique within a batch.
type Batch []CreateRequest

// IDs returns the creation ids in batch order.
func (b Batch) IDs() []CreationID {
	ids := make([]CreationID, len(b))
	for i, req := range b {
		ids[i] = req.CreationID
	}
	return ids
}
