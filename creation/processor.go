package creation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jacentio/mailtree/store"
)

// TimerName labels the batch timer published through the MetricsSink.
const TimerName = "SetMailboxesCreationProcessor"

// MailboxStore creates and reads mailboxes.
type MailboxStore interface {
	MailboxReader

	// CreateMailbox creates a mailbox at path. An empty id with a nil error
	// means the store declined without saying why.
	CreateMailbox(ctx context.Context, path store.Path) (store.MailboxID, error)
}

// SubscriptionRegistry subscribes owners to mailboxes. id is the mailbox
// currently holding name.
type SubscriptionRegistry interface {
	Subscribe(ctx context.Context, session store.Session, name string, id store.MailboxID) error
}

// Timer measures one batch call.
type Timer interface {
	ObserveDuration() time.Duration
}

// MetricsSink starts batch timers.
type MetricsSink interface {
	StartTimer(name string) Timer
}

// Processor creates the mailboxes of a batch, parents before children.
// It keeps no state between calls and is safe for concurrent use when its
// collaborators are.
type Processor struct {
	mailboxes     MailboxStore
	subscriptions SubscriptionRegistry
	metrics       MetricsSink
	resolver      *Resolver
	logger        *slog.Logger
}

// NewProcessor creates a Processor. Nil subscriptions, metrics or logger fall
// back to no-op or default implementations.
func NewProcessor(mailboxes MailboxStore, subscriptions SubscriptionRegistry, metrics MetricsSink, logger *slog.Logger) *Processor {
	if subscriptions == nil {
		subscriptions = nopSubscriptions{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		mailboxes:     mailboxes,
		subscriptions: subscriptions,
		metrics:       metrics,
		resolver:      NewResolver(mailboxes),
		logger:        logger,
	}
}

// Process creates the mailboxes requested by batch on behalf of session.
//
// The returned BatchResult has exactly one outcome per request. If the
// in-batch parent references form a cycle nothing is created and every
// request is NotCreated with KindCycleDetected. Otherwise requests are
// handled one by one in SortFromRootToLeaf order, each independently.
func (p *Processor) Process(ctx context.Context, session store.Session, batch Batch) *BatchResult {
	timer := p.metrics.StartTimer(TimerName)
	defer timer.ObserveDuration()

	ordered, err := SortFromRootToLeaf(batch)
	if err != nil {
		return cycleResult(batch)
	}

	state := NewBatchState()
	result := newBatchResult(batch)
	for _, req := range ordered {
		result.record(req.CreationID, p.create(ctx, session, req, state))
	}
	result.complete()
	return result
}

func (p *Processor) create(ctx context.Context, session store.Session, req CreateRequest, state *BatchState) Result {
	delimiter := session.PathDelimiter()
	if strings.ContainsRune(req.Name, delimiter) {
		return NotCreated{
			Kind:        KindInvalidName,
			Description: fmt.Sprintf("The mailbox '%s' contains an illegal character: '%c'", req.Name, delimiter),
		}
	}

	path, err := p.mailboxPath(ctx, session, req, state)
	if err != nil {
		return p.notCreated(req, err)
	}

	id, err := p.mailboxes.CreateMailbox(ctx, path)
	if err != nil {
		return p.notCreated(req, err)
	}
	if id == "" {
		p.logger.Error("store returned no mailbox id",
			"creationId", req.CreationID,
			"mailbox", path.Name,
		)
		return genericError(req.CreationID)
	}

	mailbox, err := p.mailboxes.GetMailbox(ctx, id)
	if err != nil {
		return p.notCreated(req, fmt.Errorf("project mailbox %s: %w", id, err))
	}

	state.Register(req.CreationID, id, req.Name, req.ParentRef)
	if err := p.subscriptions.Subscribe(ctx, session, path.Name, id); err != nil {
		p.logger.Warn("failed to subscribe to created mailbox",
			"creationId", req.CreationID,
			"mailbox", path.Name,
			"error", err,
		)
	}
	return Created{Mailbox: *mailbox}
}

// mailboxPath returns the path req should be created at.
func (p *Processor) mailboxPath(ctx context.Context, session store.Session, req CreateRequest, state *BatchState) (store.Path, error) {
	if !req.HasParent() {
		return session.Root(req.Name), nil
	}
	parentName, err := p.resolver.Resolve(ctx, req.ParentRef, state, session.PathDelimiter())
	if err != nil {
		return store.Path{}, err
	}
	return session.Root(parentName).Child(req.Name), nil
}

// notCreated converts err into a NotCreated outcome. Only unclassified
// failures are logged; the others are client-correctable.
func (p *Processor) notCreated(req CreateRequest, err error) NotCreated {
	switch {
	case errors.Is(err, store.ErrNameTooLong):
		return NotCreated{Kind: KindNameTooLong, Description: "The mailbox name length is too long"}
	case errors.Is(err, store.ErrInvalidName):
		return NotCreated{
			Kind:        KindInvalidName,
			Description: fmt.Sprintf("The mailbox '%s' has an invalid name.", req.Name),
		}
	case errors.Is(err, store.ErrParentNotFound):
		return NotCreated{
			Kind:        KindParentNotFound,
			Description: fmt.Sprintf("The parent mailbox '%s' was not found.", req.ParentRef),
		}
	case errors.Is(err, store.ErrAlreadyExists):
		return NotCreated{
			Kind:        KindAlreadyExists,
			Description: fmt.Sprintf("The mailbox '%s' already exists.", req.CreationID),
		}
	default:
		p.logger.Error("failed to create mailbox",
			"creationId", req.CreationID,
			"error", err,
		)
		return genericError(req.CreationID)
	}
}

func genericError(cid CreationID) NotCreated {
	return NotCreated{
		Kind:        KindGenericCreationError,
		Description: fmt.Sprintf("An error occurred when creating the mailbox '%s'", cid),
	}
}

type nopSubscriptions struct{}

func (nopSubscriptions) Subscribe(context.Context, store.Session, string, store.MailboxID) error {
	return nil
}

type nopMetrics struct{}

func (nopMetrics) StartTimer(string) Timer { return nopTimer{} }

type nopTimer struct{}

func (nopTimer) ObserveDuration() time.Duration { return 0 }
