// Package store provides a DynamoDB data access layer for hierarchical mailboxes.
//
// Mailboxes live in a per-owner namespace and are addressed by a delimiter-joined
// path ("Inbox/Projects/2024"). The store assigns each mailbox a persistent
// [MailboxID] and keeps path uniqueness, parent existence and the parent/child
// relationship consistent inside a single DynamoDB transaction.
//
// # Key Features
//
//   - Parent validation on child creation (atomic)
//   - Path uniqueness within an owner's namespace
//   - Orphan protection (prevent deleting mailboxes with children)
//   - Cascading deletes via DynamoDB Streams + TTL
//   - Per-owner subscription bookkeeping
//   - Configurable write sharding for the relationship table
//
// # Tables
//
// Four tables back the store (names come from [Config]):
//
//	mailboxes       pk: id                 one record per mailbox
//	paths           pk: pk, sk: "PATH"     one record per live path, points at the mailbox id
//	relationships   pk: pk, sk: child_ref  parent -> child edges, sharded
//	subscriptions   pk: user, sk: name     owner subscriptions by mailbox name, with the mailbox id
//
// # Configuration
//
// Use [DefaultConfig] for small datasets (NumShards=1, single queries).
// Increase NumShards for parents with very many children:
//
//	cfg := store.DefaultConfig()
//	cfg.NumShards = 16
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - mailbox doesn't exist or is deleted
//   - [ErrParentNotFound] - parent path doesn't exist or is deleted
//   - [ErrAlreadyExists] - a mailbox with the same path already exists
//   - [ErrNameTooLong] - the full mailbox name exceeds Config.MaxNameLength
//   - [ErrInvalidName] - the name is empty or has an empty segment
//   - [ErrHasChildren] - cannot delete a mailbox with children
//   - [ErrInvalidID] - a string is not a well-formed mailbox id
package store
