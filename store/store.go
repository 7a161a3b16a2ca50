package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/mailtree/internal/shard"
)

// DynamoDBAPI is the subset of *dynamodb.Client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

const pathSortKey = "PATH"

// Store provides DynamoDB operations for hierarchical mailboxes.
type Store struct {
	client DynamoDBAPI
	config Config
	newID  func() MailboxID
}

// New creates a new Store instance.
func New(client DynamoDBAPI, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		newID:  NewMailboxID,
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// relationshipPK computes the sharded partition key for a relationship record.
func (s *Store) relationshipPK(parentRef, childRef string) string {
	return shard.RelationshipPK(parentRef, childRef, s.config.NumShards)
}

func pathKey(pk string) PK {
	return PK{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: pathSortKey},
	}
}

func pathPK(p Path) string {
	return shard.PathPK(p.Namespace, p.User, p.Name)
}

// CreateMailbox creates a mailbox at path and returns its new id.
//
// The parent path (everything before the last delimiter) must name a live
// mailbox, otherwise ErrParentNotFound is returned. The path claim, mailbox
// record and relationship record are written in one transaction.
func (s *Store) CreateMailbox(ctx context.Context, path Path) (MailboxID, error) {
	if err := ValidatePath(path, s.config.MaxNameLength); err != nil {
		return "", err
	}

	items := []types.TransactWriteItem{}
	now := time.Now()
	nowUnix := now.Unix()
	nowISO := now.UTC().Format(time.RFC3339)

	// Track item indices for error mapping
	parentCheckIndex := -1
	pathPutIndex := -1

	id := s.newID()

	// 1. Resolve the parent path and add its condition check
	var parentID MailboxID
	if parent, ok := path.Parent(); ok {
		rec, err := s.getPathRecord(ctx, pathPK(parent))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", fmt.Errorf("%w: '%s'", ErrParentNotFound, parent.Name)
			}
			return "", fmt.Errorf("resolve parent path: %w", err)
		}
		parentID = MailboxID(rec.MailboxID)

		parentCheckIndex = len(items)
		items = append(items, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:                 aws.String(s.config.PathTable),
				Key:                       pathKey(pathPK(parent)),
				ConditionExpression:       aws.String(ParentExistsCondition()),
				ExpressionAttributeNames:  ttlExprNames(),
				ExpressionAttributeValues: nowExprValues(nowUnix),
			},
		})
	}

	// 2. Claim the path
	claimPK := pathPK(path)
	claim, err := attributevalue.MarshalMap(pathRecord{
		PK:        claimPK,
		SK:        pathSortKey,
		MailboxID: id.String(),
		EntityRef: id.EntityRef(),
		Namespace: path.Namespace,
		User:      path.User,
		Name:      path.Name,
	})
	if err != nil {
		return "", fmt.Errorf("marshal path record: %w", err)
	}
	pathPutIndex = len(items)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(s.config.PathTable),
			Item:                      claim,
			ConditionExpression:       aws.String(PathAvailableCondition()),
			ExpressionAttributeNames:  ttlExprNames(),
			ExpressionAttributeValues: nowExprValues(nowUnix),
		},
	})

	// 3. Add the mailbox put
	record := mailboxRecord{
		ID:        id.String(),
		EntityRef: id.EntityRef(),
		Namespace: path.Namespace,
		User:      path.User,
		Name:      path.Name,
		Delimiter: string(path.delimiter()),
		PathPK:    claimPK,
		Version:   1,
		CreatedAt: nowISO,
		UpdatedAt: nowISO,
	}
	if parentID != "" {
		record.ParentID = parentID.String()
		record.ParentRef = parentID.EntityRef()
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return "", fmt.Errorf("marshal mailbox record: %w", err)
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.config.MailboxTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		},
	})

	// 4. Add relationship record if the mailbox has a parent
	if parentID != "" {
		parentRef := parentID.EntityRef()
		childRef := id.EntityRef()
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.config.RelationshipTable),
				Item: map[string]types.AttributeValue{
					"pk":         &types.AttributeValueMemberS{Value: s.relationshipPK(parentRef, childRef)},
					"child_ref":  &types.AttributeValueMemberS{Value: childRef},
					"parent_ref": &types.AttributeValueMemberS{Value: parentRef},
					"child_id":   &types.AttributeValueMemberS{Value: id.String()},
				},
			},
		})
	}

	// 5. Execute transaction
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err := s.mapCreateTransactionError(err, parentCheckIndex, pathPutIndex, path); err != nil {
		return "", err
	}
	return id, nil
}

// GetMailbox retrieves a mailbox by id, returning ErrNotFound if deleted or missing.
func (s *Store) GetMailbox(ctx context.Context, id MailboxID) (*Mailbox, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.MailboxTable),
		Key:            id.Key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil || IsDeleted(result.Item) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var record mailboxRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("unmarshal mailbox %s: %w", id, err)
	}
	return record.toMailbox(), nil
}

// FindMailbox retrieves the live mailbox at path, returning ErrNotFound if none.
func (s *Store) FindMailbox(ctx context.Context, path Path) (*Mailbox, error) {
	rec, err := s.getPathRecord(ctx, pathPK(path))
	if err != nil {
		return nil, err
	}
	return s.GetMailbox(ctx, MailboxID(rec.MailboxID))
}

func (s *Store) getPathRecord(ctx context.Context, pk string) (*pathRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.PathTable),
		Key:            pathKey(pk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil || IsDeleted(result.Item) {
		return nil, ErrNotFound
	}

	var rec pathRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal path record: %w", err)
	}
	return &rec, nil
}

// DeleteOptions configures delete behavior.
type DeleteOptions struct {
	// Cascade enables cascading delete of children via TTL.
	Cascade bool

	// OrphanProtect fails the delete if active children exist.
	OrphanProtect bool
}

// Delete deletes a mailbox by setting its TTL.
// The stream handler propagates the TTL to descendants and bookkeeping records.
func (s *Store) Delete(ctx context.Context, id MailboxID, opts DeleteOptions) error {
	if opts.OrphanProtect && !opts.Cascade {
		hasChildren, err := s.HasActiveChildren(ctx, id)
		if err != nil {
			return err
		}
		if hasChildren {
			return ErrHasChildren
		}
	}

	return s.SetTTLByID(ctx, id, time.Now().Unix())
}

// SetTTLByID marks a mailbox for deletion at ttl.
// This also increments the version to fail concurrent writers.
// Already-deleted mailboxes are left untouched.
func (s *Store) SetTTLByID(ctx context.Context, id MailboxID, ttl int64) error {
	return s.setTTL(ctx, s.config.MailboxTable, id.Key(), ttl, true, "")
}

// SetRelationshipTTL sets TTL on the relationship record linking child to parent.
func (s *Store) SetRelationshipTTL(ctx context.Context, childID, parentID MailboxID, ttl int64) error {
	childRef := childID.EntityRef()
	key := PK{
		"pk":        &types.AttributeValueMemberS{Value: s.relationshipPK(parentID.EntityRef(), childRef)},
		"child_ref": &types.AttributeValueMemberS{Value: childRef},
	}
	return s.setTTL(ctx, s.config.RelationshipTable, key, ttl, false, "")
}

// SetPathTTL sets TTL on a path record, releasing the path for re-creation.
// The record is only touched while it still points at owner; a path claimed
// again by a newer mailbox is left alone.
func (s *Store) SetPathTTL(ctx context.Context, pk string, owner MailboxID, ttl int64) error {
	return s.setTTL(ctx, s.config.PathTable, pathKey(pk), ttl, false, owner)
}

// setTTL sets ttl on the item at key unless it already has one. A non-empty
// owner additionally requires the item's mailbox_id to match.
func (s *Store) setTTL(ctx context.Context, table string, key PK, ttl int64, bumpVersion bool, owner MailboxID) error {
	names := ttlExprNames()
	values := map[string]types.AttributeValue{
		":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
	update := "SET #ttl = :ttl"
	if bumpVersion {
		names["#version"] = "version"
		values[":one"] = &types.AttributeValueMemberN{Value: "1"}
		update += ", #version = #version + :one"
	}
	condition := "attribute_not_exists(#ttl)"
	if owner != "" {
		values[":id"] = &types.AttributeValueMemberS{Value: owner.String()}
		condition += " AND " + OwnedByCondition()
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})

	// Ignore condition failure - already has TTL or owned by another mailbox
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// HasActiveChildren checks if a mailbox has any active (non-deleted) children.
func (s *Store) HasActiveChildren(ctx context.Context, id MailboxID) (bool, error) {
	now := time.Now().Unix()
	parentRef := id.EntityRef()

	// Fast path for single shard (default)
	if s.config.NumShards == 1 {
		return s.hasActiveChildrenInShard(ctx, shard.ShardPK(parentRef, 0), now)
	}

	// Multi-shard fan-out with early cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan bool, 1)
	errs := make(chan error, s.config.NumShards)
	var wg sync.WaitGroup

	for shardNum := 0; shardNum < s.config.NumShards; shardNum++ {
		wg.Add(1)
		go func(shardNum int) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			default:
			}

			has, err := s.hasActiveChildrenInShard(ctx, shard.ShardPK(parentRef, shardNum), now)
			if err != nil {
				errs <- err
				return
			}
			if has {
				select {
				case found <- true:
					cancel()
				default:
				}
			}
		}(shardNum)
	}

	go func() {
		wg.Wait()
		close(found)
		close(errs)
	}()

	if <-found {
		return true, nil
	}

	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return false, err
		}
	}

	return false, nil
}

func (s *Store) hasActiveChildrenInShard(ctx context.Context, shardPK string, now int64) (bool, error) {
	values := nowExprValues(now)
	values[":pk"] = &types.AttributeValueMemberS{Value: shardPK}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.RelationshipTable),
		KeyConditionExpression:    aws.String("pk = :pk"),
		FilterExpression:          aws.String(TTLFilterExpr()),
		ExpressionAttributeNames:  ttlExprNames(),
		ExpressionAttributeValues: values,
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(result.Items) > 0, nil
}

// QueryAllChildren returns all children of a mailbox (including deleted ones).
// This is used by cascade delete to propagate TTL to all children.
func (s *Store) QueryAllChildren(ctx context.Context, id MailboxID) ([]ChildRef, error) {
	parentRef := id.EntityRef()

	// Fast path for single shard (default)
	if s.config.NumShards == 1 {
		return s.queryChildrenInShard(ctx, shard.ShardPK(parentRef, 0))
	}

	// Multi-shard fan-out
	var mu sync.Mutex
	var allChildren []ChildRef
	var wg sync.WaitGroup
	errs := make(chan error, s.config.NumShards)

	for shardNum := 0; shardNum < s.config.NumShards; shardNum++ {
		wg.Add(1)
		go func(shardNum int) {
			defer wg.Done()

			children, err := s.queryChildrenInShard(ctx, shard.ShardPK(parentRef, shardNum))
			if err != nil {
				errs <- fmt.Errorf("shard %02x: %w", shardNum, err)
				return
			}

			mu.Lock()
			allChildren = append(allChildren, children...)
			mu.Unlock()
		}(shardNum)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return allChildren, nil
}

func (s *Store) queryChildrenInShard(ctx context.Context, shardPK string) ([]ChildRef, error) {
	var children []ChildRef

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.RelationshipTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: shardPK},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			children = append(children, unmarshalChildRef(item, shardPK))
		}
	}

	return children, nil
}

// mapCreateTransactionError maps DynamoDB transaction errors for CreateMailbox.
// parentCheckIndex is the index of the parent check item (-1 if none).
// pathPutIndex is the index of the path claim.
func (s *Store) mapCreateTransactionError(err error, parentCheckIndex, pathPutIndex int, path Path) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				switch i {
				case parentCheckIndex:
					if parent, ok := path.Parent(); ok {
						return fmt.Errorf("%w: '%s'", ErrParentNotFound, parent.Name)
					}
					return ErrParentNotFound
				case pathPutIndex:
					return fmt.Errorf("%w: '%s'", ErrAlreadyExists, path.Name)
				}
			}
		}
	}

	return fmt.Errorf("create mailbox '%s': %w", path.Name, err)
}

// unmarshalChildRef converts a relationship item to a ChildRef.
func unmarshalChildRef(item map[string]types.AttributeValue, shardPK string) ChildRef {
	ref := ChildRef{ShardPK: shardPK}

	if v, ok := item["child_ref"].(*types.AttributeValueMemberS); ok {
		ref.Ref = v.Value
	}
	if v, ok := item["child_id"].(*types.AttributeValueMemberS); ok {
		ref.ID = MailboxID(v.Value)
	}

	return ref
}
