// Package stream provides DynamoDB Streams handlers for cascade deletes of mailboxes.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/mailtree/store"
)

// Store is the subset of store.Store the cascade handler needs.
type Store interface {
	QueryAllChildren(ctx context.Context, id store.MailboxID) ([]store.ChildRef, error)
	SetTTLByID(ctx context.Context, id store.MailboxID, ttl int64) error
	SetRelationshipTTL(ctx context.Context, childID, parentID store.MailboxID, ttl int64) error
	SetPathTTL(ctx context.Context, pk string, owner store.MailboxID, ttl int64) error
	Unsubscribe(ctx context.Context, user, name string, id store.MailboxID) error
}

// Handler processes mailbox table stream events for cascade deletes.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleCascadeDelete processes DynamoDB stream events to propagate TTL to children.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord handles a single stream record. Only MODIFY events that newly
// set a TTL on a mailbox are acted on.
func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
	newTTL := getNumberAttr(record.Change.NewImage, "ttl")
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	image := record.Change.NewImage
	id := store.MailboxID(getStringAttr(image, "id"))
	parentID := store.MailboxID(getStringAttr(image, "parent_id"))
	pathPK := getStringAttr(image, "path_pk")
	user := getStringAttr(image, "user")
	name := getStringAttr(image, "name")

	if id == "" {
		return fmt.Errorf("stream record %s: missing mailbox id", record.EventID)
	}

	h.logger.Info("processing cascade delete",
		"mailbox", id,
		"parent", parentID,
		"ttl", newTTL,
	)

	// 1. Query all children (including already-deleted ones - idempotent)
	children, err := h.store.QueryAllChildren(ctx, id)
	if err != nil {
		return fmt.Errorf("query children: %w", err)
	}

	// 2. Set same TTL on all children (triggers their cascade via stream)
	for _, child := range children {
		if err := h.store.SetTTLByID(ctx, child.ID, newTTL); err != nil {
			h.logger.Warn("failed to set TTL on child",
				"child", child.Ref,
				"error", err,
			)
		}
	}

	// 3. Release the link to the parent
	if parentID != "" {
		if err := h.store.SetRelationshipTTL(ctx, id, parentID, newTTL); err != nil {
			h.logger.Warn("failed to set relationship TTL",
				"mailbox", id,
				"parent", parentID,
				"error", err,
			)
		}
	}

	// 4. Release the path so it can be created again, unless a newer
	// mailbox has already claimed it
	if pathPK != "" {
		if err := h.store.SetPathTTL(ctx, pathPK, id, newTTL); err != nil {
			h.logger.Warn("failed to set path TTL",
				"pk", pathPK,
				"error", err,
			)
		}
	}

	// 5. Drop the owner's subscription
	if user != "" && name != "" {
		if err := h.store.Unsubscribe(ctx, user, name, id); err != nil {
			h.logger.Warn("failed to unsubscribe owner",
				"user", user,
				"mailbox", name,
				"error", err,
			)
		}
	}

	h.logger.Info("cascade delete completed",
		"mailbox", id,
		"childrenProcessed", len(children),
	)

	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
