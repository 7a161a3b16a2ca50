// Package memory provides an in-memory implementation of the mailbox store
// used for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jacentio/mailtree/store"
)

// Store keeps mailboxes, path claims and subscriptions in process memory.
// It is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	maxNameLength int
	newID         func() store.MailboxID

	mailboxes     map[store.MailboxID]store.Mailbox
	paths         map[string]store.MailboxID
	children      map[store.MailboxID]map[store.MailboxID]struct{}
	subscriptions map[string]map[string]store.MailboxID
}

// New creates an empty Store enforcing cfg.MaxNameLength (0 means store.DefaultMaxNameLength).
func New(cfg store.Config) *Store {
	maxNameLength := cfg.MaxNameLength
	if maxNameLength < 1 {
		maxNameLength = store.DefaultMaxNameLength
	}
	return &Store{
		maxNameLength: maxNameLength,
		newID:         store.NewMailboxID,
		mailboxes:     make(map[store.MailboxID]store.Mailbox),
		paths:         make(map[string]store.MailboxID),
		children:      make(map[store.MailboxID]map[store.MailboxID]struct{}),
		subscriptions: make(map[string]map[string]store.MailboxID),
	}
}

// CreateMailbox creates a mailbox at path, following the same rules as store.Store.
func (s *Store) CreateMailbox(_ context.Context, path store.Path) (store.MailboxID, error) {
	if err := store.ValidatePath(path, s.maxNameLength); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var parentID store.MailboxID
	if parent, ok := path.Parent(); ok {
		id, exists := s.paths[parent.String()]
		if !exists {
			return "", fmt.Errorf("%w: '%s'", store.ErrParentNotFound, parent.Name)
		}
		parentID = id
	}
	if _, exists := s.paths[path.String()]; exists {
		return "", fmt.Errorf("%w: '%s'", store.ErrAlreadyExists, path.Name)
	}

	id := s.newID()
	now := time.Now().UTC().Format(time.RFC3339)
	s.mailboxes[id] = store.Mailbox{
		ID:        id,
		ParentID:  parentID,
		Path:      path,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.paths[path.String()] = id
	if parentID != "" {
		if s.children[parentID] == nil {
			s.children[parentID] = make(map[store.MailboxID]struct{})
		}
		s.children[parentID][id] = struct{}{}
	}
	return id, nil
}

// GetMailbox returns the mailbox with id, or store.ErrNotFound.
func (s *Store) GetMailbox(_ context.Context, id store.MailboxID) (*store.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return &mb, nil
}

// FindMailbox returns the mailbox at path, or store.ErrNotFound.
func (s *Store) FindMailbox(ctx context.Context, path store.Path) (*store.Mailbox, error) {
	s.mu.RLock()
	id, ok := s.paths[path.String()]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", store.ErrNotFound, path.Name)
	}
	return s.GetMailbox(ctx, id)
}

// Delete removes a mailbox. With Cascade, descendants and their subscriptions
// are removed too; with OrphanProtect alone, a mailbox with children is kept
// and store.ErrHasChildren returned.
func (s *Store) Delete(_ context.Context, id store.MailboxID, opts store.DeleteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if opts.OrphanProtect && !opts.Cascade && len(s.children[id]) > 0 {
		return store.ErrHasChildren
	}
	s.deleteLocked(id)
	return nil
}

func (s *Store) deleteLocked(id store.MailboxID) {
	for child := range s.children[id] {
		s.deleteLocked(child)
	}
	mb := s.mailboxes[id]
	delete(s.children, id)
	delete(s.mailboxes, id)
	delete(s.paths, mb.Path.String())
	if mb.ParentID != "" {
		delete(s.children[mb.ParentID], id)
	}
	s.unsubscribeLocked(mb.Path.User, mb.Path.Name, id)
}

// Subscribe records that the session owner is subscribed to name, held by id.
func (s *Store) Subscribe(_ context.Context, session store.Session, name string, id store.MailboxID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscriptions[session.User] == nil {
		s.subscriptions[session.User] = make(map[string]store.MailboxID)
	}
	s.subscriptions[session.User][name] = id
	return nil
}

// Unsubscribe removes user's subscription to name if it still refers to id.
func (s *Store) Unsubscribe(_ context.Context, user, name string, id store.MailboxID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsubscribeLocked(user, name, id)
	return nil
}

func (s *Store) unsubscribeLocked(user, name string, id store.MailboxID) {
	if s.subscriptions[user][name] == id {
		delete(s.subscriptions[user], name)
	}
}

// Subscriptions lists the names user is subscribed to, sorted.
func (s *Store) Subscriptions(_ context.Context, user string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.subscriptions[user]))
	for name := range s.subscriptions[user] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Len returns the number of live mailboxes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mailboxes)
}
