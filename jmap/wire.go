// Package jmap implements the wire envelope of the Mailbox/set create
// operation and an API Gateway handler serving it.
package jmap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jacentio/mailtree/creation"
)

// creationRefPrefix marks a parentId that refers to a creation id of the same request.
const creationRefPrefix = "#"

var errNotObject = errors.New("jmap: create must be an object")

// SetMailboxesRequest is the body of a Mailbox/set call. Only creates are supported.
type SetMailboxesRequest struct {
	AccountID string        `json:"accountId,omitempty"`
	Create    CreateEntries `json:"create"`
}

// CreateEntry is one creation request as it appears on the wire.
type CreateEntry struct {
	CreationID string
	Name       string
	ParentID   *string
}

// CreateEntries keeps the create map in the order the client wrote it.
type CreateEntries []CreateEntry

type createBody struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

// UnmarshalJSON decodes a JSON object keyed by creation id, preserving key
// order. A repeated key keeps its first position and its last value.
func (c *CreateEntries) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errNotObject
	}

	entries := CreateEntries{}
	seen := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var body createBody
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("create %q: %w", key, err)
		}

		entry := CreateEntry{CreationID: key, Name: body.Name, ParentID: body.ParentID}
		if i, dup := seen[key]; dup {
			entries[i] = entry
			continue
		}
		seen[key] = len(entries)
		entries = append(entries, entry)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*c = entries
	return nil
}

// MarshalJSON writes the entries back as an object in their stored order.
func (c CreateEntries) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.CreationID)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(createBody{Name: e.Name, ParentID: e.ParentID})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Batch converts the entries to a creation batch. A parentId of the form
// "#cid" naming another entry refers to that entry's creation id.
func (c CreateEntries) Batch() creation.Batch {
	ids := make(map[string]struct{}, len(c))
	for _, e := range c {
		ids[e.CreationID] = struct{}{}
	}

	batch := make(creation.Batch, 0, len(c))
	for _, e := range c {
		req := creation.CreateRequest{
			CreationID: creation.CreationID(e.CreationID),
			Name:       e.Name,
		}
		if e.ParentID != nil {
			req.ParentRef = *e.ParentID
			if ref, ok := strings.CutPrefix(req.ParentRef, creationRefPrefix); ok {
				if _, inBatch := ids[ref]; inBatch {
					req.ParentRef = ref
				}
			}
		}
		batch = append(batch, req)
	}
	return batch
}

// MailboxView is the client-facing projection of a created mailbox.
type MailboxView struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parentId"`
	Role      *string `json:"role"`
	SortOrder int     `json:"sortOrder"`
}

// SetError reports why one create failed.
type SetError struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// SetMailboxesResponse is the reply to a Mailbox/set call.
type SetMailboxesResponse struct {
	AccountID  string                 `json:"accountId"`
	Created    map[string]MailboxView `json:"created"`
	NotCreated map[string]SetError    `json:"notCreated"`
}

// NewResponse renders a batch result. Empty outcome maps are left nil so they
// encode as null.
func NewResponse(accountID string, result *creation.BatchResult) SetMailboxesResponse {
	resp := SetMailboxesResponse{AccountID: accountID}

	for cid, c := range result.Created() {
		if resp.Created == nil {
			resp.Created = make(map[string]MailboxView)
		}
		resp.Created[string(cid)] = newMailboxView(c)
	}
	for cid, nc := range result.NotCreated() {
		if resp.NotCreated == nil {
			resp.NotCreated = make(map[string]SetError)
		}
		resp.NotCreated[string(cid)] = SetError{
			Type:        nc.Kind.WireType(),
			Description: nc.Description,
		}
	}
	return resp
}

func newMailboxView(c creation.Created) MailboxView {
	view := MailboxView{
		ID:   c.Mailbox.ID.String(),
		Name: c.Mailbox.Path.Leaf(),
	}
	if c.Mailbox.ParentID != "" {
		parent := c.Mailbox.ParentID.String()
		view.ParentID = &parent
	}
	return view
}
