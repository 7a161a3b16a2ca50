package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Subscribe records that the session owner is subscribed to the mailbox name,
// remembering which mailbox currently holds it. Subscribing twice is a no-op.
func (s *Store) Subscribe(ctx context.Context, session Session, name string, id MailboxID) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.SubscriptionTable),
		Item: map[string]types.AttributeValue{
			"pk":            &types.AttributeValueMemberS{Value: session.User},
			"sk":            &types.AttributeValueMemberS{Value: name},
			"namespace":     &types.AttributeValueMemberS{Value: session.Root(name).Namespace},
			"mailbox_id":    &types.AttributeValueMemberS{Value: id.String()},
			"subscribed_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("subscribe %s to '%s': %w", session.User, name, err)
	}
	return nil
}

// Unsubscribe removes user's subscription to name while it still refers to
// mailbox id. Missing subscriptions and subscriptions to a newer mailbox at
// the same name are ignored.
func (s *Store) Unsubscribe(ctx context.Context, user, name string, id MailboxID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.SubscriptionTable),
		Key: PK{
			"pk": &types.AttributeValueMemberS{Value: user},
			"sk": &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String(OwnedByCondition()),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id.String()},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unsubscribe %s from '%s': %w", user, name, err)
	}
	return nil
}

// Subscriptions lists the mailbox names user is subscribed to, in name order.
func (s *Store) Subscriptions(ctx context.Context, user string) ([]string, error) {
	var names []string

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.SubscriptionTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: user},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if v, ok := item["sk"].(*types.AttributeValueMemberS); ok {
				names = append(names, v.Value)
			}
		}
	}

	return names, nil
}
