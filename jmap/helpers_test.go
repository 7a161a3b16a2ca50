package jmap_test

import (
	"context"
	"fmt"

	"github.com/jacentio/mailtree/store"
	"github.com/jacentio/mailtree/store/memory"
)

// scriptedStore is an in-memory store whose creates can be made to fail by name.
type scriptedStore struct {
	*memory.Store
	fail map[string]error
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{
		Store: memory.New(store.DefaultConfig()),
		fail:  make(map[string]error),
	}
}

func (s *scriptedStore) CreateMailbox(ctx context.Context, path store.Path) (store.MailboxID, error) {
	if err := s.fail[path.Name]; err != nil {
		return "", fmt.Errorf("create %q: %w", path.Name, err)
	}
	return s.Store.CreateMailbox(ctx, path)
}
