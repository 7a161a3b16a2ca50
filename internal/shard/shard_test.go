package shard

import (
	"strings"
	"testing"
)

// --- RelationshipPK Tests ---

func TestRelationshipPK_SingleShard(t *testing.T) {
	// With numShards=1, all records should go to shard "00"
	tests := []struct {
		parentRef string
		childRef  string
		expected  string
	}{
		{"mailbox#p1", "mailbox#c1", "mailbox#p1#00"},
		{"mailbox#p1", "mailbox#c2", "mailbox#p1#00"},
		{"mailbox#p2", "mailbox#c1", "mailbox#p2#00"},
	}

	for _, tt := range tests {
		result := RelationshipPK(tt.parentRef, tt.childRef, 1)
		if result != tt.expected {
			t.Errorf("RelationshipPK(%q, %q, 1) = %q, want %q",
				tt.parentRef, tt.childRef, result, tt.expected)
		}
	}
}

func TestRelationshipPK_ZeroShards(t *testing.T) {
	// Zero or negative shards should be treated as 1
	result := RelationshipPK("mailbox#p1", "mailbox#c1", 0)
	if result != "mailbox#p1#00" {
		t.Errorf("expected 'mailbox#p1#00', got %q", result)
	}

	result = RelationshipPK("mailbox#p1", "mailbox#c1", -1)
	if result != "mailbox#p1#00" {
		t.Errorf("expected 'mailbox#p1#00', got %q", result)
	}
}

func TestRelationshipPK_WithinShardRange(t *testing.T) {
	parentRef := "mailbox#p1"
	numShards := 16

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		childRef := "mailbox#" + string(rune('a'+i%26)) + string(rune('0'+i%10)) + strings.Repeat("x", i%7)
		pk := RelationshipPK(parentRef, childRef, numShards)

		valid := false
		for s := 0; s < numShards; s++ {
			if pk == ShardPK(parentRef, s) {
				valid = true
				break
			}
		}
		if !valid {
			t.Fatalf("RelationshipPK returned %q, outside of the %d shards", pk, numShards)
		}
		seen[pk] = true
	}

	if len(seen) < 2 {
		t.Errorf("expected children spread over several shards, got %d", len(seen))
	}
}

func TestRelationshipPK_Deterministic(t *testing.T) {
	a := RelationshipPK("mailbox#p1", "mailbox#c1", 64)
	b := RelationshipPK("mailbox#p1", "mailbox#c1", 64)
	if a != b {
		t.Errorf("expected deterministic result, got %q and %q", a, b)
	}
}

// --- ShardPK Tests ---

func TestShardPK_HexFormat(t *testing.T) {
	tests := []struct {
		shard    int
		expected string
	}{
		{0, "mailbox#p1#00"},
		{10, "mailbox#p1#0a"},
		{255, "mailbox#p1#ff"},
	}

	for _, tt := range tests {
		if got := ShardPK("mailbox#p1", tt.shard); got != tt.expected {
			t.Errorf("ShardPK(%d) = %q, want %q", tt.shard, got, tt.expected)
		}
	}
}

// --- PathPK Tests ---

func TestPathPK_Format(t *testing.T) {
	pk := PathPK("#private", "alice", "Inbox/Work")
	if len(pk) != 32 {
		t.Errorf("expected 32 hex characters, got %d (%q)", len(pk), pk)
	}
	if strings.Trim(pk, "0123456789abcdef") != "" {
		t.Errorf("expected lowercase hex, got %q", pk)
	}
}

func TestPathPK_Deterministic(t *testing.T) {
	if PathPK("#private", "alice", "Inbox") != PathPK("#private", "alice", "Inbox") {
		t.Error("expected identical inputs to produce identical keys")
	}
}

func TestPathPK_Distinct(t *testing.T) {
	tests := []struct {
		name string
		a, b [3]string
	}{
		{"different user", [3]string{"#private", "alice", "Inbox"}, [3]string{"#private", "bob", "Inbox"}},
		{"different namespace", [3]string{"#private", "alice", "Inbox"}, [3]string{"#shared", "alice", "Inbox"}},
		{"case sensitive", [3]string{"#private", "alice", "Inbox"}, [3]string{"#private", "alice", "inbox"}},
		{"separator in name", [3]string{"#private", "a", "b#c"}, [3]string{"#private", "a#b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := PathPK(tt.a[0], tt.a[1], tt.a[2])
			b := PathPK(tt.b[0], tt.b[1], tt.b[2])
			if a == b {
				t.Errorf("expected different keys, both were %q", a)
			}
		})
	}
}
