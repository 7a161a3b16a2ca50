package store

// DefaultMaxNameLength bounds the full delimiter-joined mailbox name, in runes.
const DefaultMaxNameLength = 200

// Config holds configuration for the Store.
type Config struct {
	// MailboxTable is the name of the mailbox table.
	// Default: "mailtree_mailboxes"
	MailboxTable string

	// PathTable is the name of the path uniqueness table.
	// Default: "mailtree_paths"
	PathTable string

	// RelationshipTable is the name of the relationship table.
	// Default: "mailtree_relationships"
	RelationshipTable string

	// SubscriptionTable is the name of the subscription table.
	// Default: "mailtree_subscriptions"
	SubscriptionTable string

	// NumShards is the number of shards for the relationship table.
	// Higher values increase write throughput under one parent but require
	// more parallel queries when listing children.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// MaxNameLength is the longest accepted full mailbox name, in runes.
	// Default: DefaultMaxNameLength
	MaxNameLength int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		MailboxTable:      "mailtree_mailboxes",
		PathTable:         "mailtree_paths",
		RelationshipTable: "mailtree_relationships",
		SubscriptionTable: "mailtree_subscriptions",
		NumShards:         1,
		MaxNameLength:     DefaultMaxNameLength,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	defaults := DefaultConfig()
	if c.MailboxTable == "" {
		c.MailboxTable = defaults.MailboxTable
	}
	if c.PathTable == "" {
		c.PathTable = defaults.PathTable
	}
	if c.RelationshipTable == "" {
		c.RelationshipTable = defaults.RelationshipTable
	}
	if c.SubscriptionTable == "" {
		c.SubscriptionTable = defaults.SubscriptionTable
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
	if c.MaxNameLength < 1 {
		c.MaxNameLength = DefaultMaxNameLength
	}
}
