package creation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jacentio/mailtree/store"
)

// errAncestryTooDeep is returned when walking in-batch ancestors does not
// terminate within the batch size. SortFromRootToLeaf rejects the cycles
// that could cause it.
var errAncestryTooDeep = errors.New("creation: ancestry deeper than batch")

// MailboxReader looks mailboxes up by persistent id.
type MailboxReader interface {
	GetMailbox(ctx context.Context, id store.MailboxID) (*store.Mailbox, error)
}

// BatchState is the per-batch record of what has been created so far.
// It belongs to a single Process call and is discarded when the call returns.
type BatchState struct {
	created map[CreationID]createdMailbox
	names   map[store.MailboxID]string
}

type createdMailbox struct {
	id        store.MailboxID
	segment   string
	parentRef string
}

// NewBatchState returns an empty BatchState.
func NewBatchState() *BatchState {
	return &BatchState{
		created: make(map[CreationID]createdMailbox),
		names:   make(map[store.MailboxID]string),
	}
}

// Register records that the request cid created mailbox id named segment under parentRef.
func (s *BatchState) Register(cid CreationID, id store.MailboxID, segment, parentRef string) {
	s.created[cid] = createdMailbox{id: id, segment: segment, parentRef: parentRef}
}

// MailboxID returns the persistent id created for cid, if any.
func (s *BatchState) MailboxID(cid CreationID) (store.MailboxID, bool) {
	c, ok := s.created[cid]
	return c.id, ok
}

// Resolver turns a parent reference into the full name of the parent mailbox.
type Resolver struct {
	mailboxes MailboxReader
}

// NewResolver creates a Resolver reading persistent mailboxes from mailboxes.
func NewResolver(mailboxes MailboxReader) *Resolver {
	return &Resolver{mailboxes: mailboxes}
}

// Resolve returns the full delimiter-joined name of the mailbox ref designates.
//
// ref is first tried as a persistent mailbox id. Failing that, it is looked up
// among the requests of this batch that were already created, and the name is
// assembled by walking their parent references up to a top-level or persistent
// ancestor. Returns an error wrapping store.ErrParentNotFound if neither works.
// Store failures other than store.ErrNotFound are returned as-is.
func (r *Resolver) Resolve(ctx context.Context, ref string, state *BatchState, delimiter rune) (string, error) {
	var segments []string
	current := ref

	for depth := 0; ; depth++ {
		if depth > len(state.created) {
			return "", fmt.Errorf("%w: '%s': %w", store.ErrParentNotFound, ref, errAncestryTooDeep)
		}

		name, ok, err := r.persistentName(ctx, current, state)
		if err != nil {
			return "", err
		}
		if ok {
			segments = append(segments, name)
			break
		}

		created, ok := state.created[CreationID(current)]
		if !ok {
			return "", fmt.Errorf("%w: '%s'", store.ErrParentNotFound, ref)
		}
		segments = append(segments, created.segment)
		if created.parentRef == "" {
			break
		}
		current = created.parentRef
	}

	slices.Reverse(segments)
	return strings.Join(segments, string(delimiter)), nil
}

// persistentName resolves ref as a persistent id. ok is false when ref is
// not an id or names no live mailbox. Names are memoised per batch.
func (r *Resolver) persistentName(ctx context.Context, ref string, state *BatchState) (string, bool, error) {
	id, err := store.ParseMailboxID(ref)
	if err != nil {
		return "", false, nil
	}
	if name, ok := state.names[id]; ok {
		return name, true, nil
	}

	mb, err := r.mailboxes.GetMailbox(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup parent %s: %w", id, err)
	}
	state.names[id] = mb.Path.Name
	return mb.Path.Name, true, nil
}
