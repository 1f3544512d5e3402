package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"insurance-bot/internal/domain"
)

const (
	skState           = "STATE#"
	skUpdate          = "UPDATE#"
	defaultSessionTTL = 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client keeps one live conversation record per session in a DynamoDB
// table. Items carry a ttl attribute so abandoned sessions expire.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// New creates a new repository Client. A non-positive ttl selects 24h.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Client{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func (c *Client) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// Get returns the live record for sessionID, or nil when none exists.
// Items whose ttl has passed are treated as absent because DynamoDB
// removes expired items lazily.
func (c *Client) Get(ctx context.Context, sessionID string) (*domain.ConversationRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("repository: Get: session id is required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Get get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	if expires, err := intAttr(out.Item, "ttl"); err == nil && int64(expires) <= c.now().Unix() {
		return nil, nil
	}
	rec, err := itemToRecord(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: Get decode: %w", err)
	}
	return rec, nil
}

// Save writes or replaces the record and pushes its expiry forward.
func (c *Client) Save(ctx context.Context, rec *domain.ConversationRecord) error {
	if rec == nil || strings.TrimSpace(rec.SessionID) == "" {
		return errors.New("repository: Save: record with session id is required")
	}
	now := c.now().UTC()
	rec.UpdatedAt = now
	item, err := recordItem(rec, now.Add(c.ttl).Unix())
	if err != nil {
		return fmt.Errorf("repository: Save encode: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

// Delete discards the record for sessionID. Deleting a missing record is
// not an error.
func (c *Client) Delete(ctx context.Context, sessionID string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(sessionID),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

// Claim records that updateID was accepted for sessionID. It reports false
// when the update was already claimed, which happens when the webhook is
// redelivered after a slow reply.
func (c *Client) Claim(ctx context.Context, sessionID string, updateID int) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, errors.New("repository: Claim: session id is required")
	}
	expires := c.now().Add(c.ttl).Unix()
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":  &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK":  &types.AttributeValueMemberS{Value: skUpdate + strconv.Itoa(updateID)},
			"ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var dup *types.ConditionalCheckFailedException
		if errors.As(err, &dup) {
			return false, nil
		}
		return false, fmt.Errorf("repository: Claim: %w", err)
	}
	return true, nil
}

func recordItem(rec *domain.ConversationRecord, ttl int64) (map[string]types.AttributeValue, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(rec.SessionID)},
		"SK":        &types.AttributeValueMemberS{Value: skState},
		"sessionId": &types.AttributeValueMemberS{Value: rec.SessionID},
		"stage":     &types.AttributeValueMemberS{Value: string(rec.Stage)},
		"record":    &types.AttributeValueMemberS{Value: string(raw)},
		"updatedAt": &types.AttributeValueMemberS{Value: rec.UpdatedAt.Format(time.RFC3339)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}, nil
}

func itemToRecord(item map[string]types.AttributeValue) (*domain.ConversationRecord, error) {
	raw, err := strAttr(item, "record")
	if err != nil {
		return nil, err
	}
	var rec domain.ConversationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("repository: unmarshal record: %w", err)
	}
	return &rec, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
