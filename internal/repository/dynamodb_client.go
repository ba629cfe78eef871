package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"layoutbot/internal/domain"
)

const (
	pkPrefixChat   = "CHAT#"
	skPrefixMsg    = "MSG#"
	defaultTTL     = 24 * time.Hour
	batchWriteSize = 25 // DynamoDB BatchWriteItem limit
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Client stores messages in a DynamoDB table keyed by chat (PK) and message (SK).
// Every item carries a ttl attribute so the table's native TTL expires rows even
// when no cleanup runs.
type Client struct {
	api       dynamodbAPI
	tableName string
	opts      Options
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts Options) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if opts.Horizon <= 0 {
		opts.Horizon = defaultTTL
	}
	return &Client{api: api, tableName: tableName, opts: opts}, nil
}

// chatPK returns the partition key for a chat.
func chatPK(chatID int64) string {
	return pkPrefixChat + strconv.FormatInt(chatID, 10)
}

// msgSK returns the sort key for a message within its chat.
func msgSK(messageID int64) string {
	return skPrefixMsg + strconv.FormatInt(messageID, 10)
}

func keyAttrs(key domain.MessageKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: chatPK(key.ChatID)},
		"SK": &types.AttributeValueMemberS{Value: msgSK(key.MessageID)},
	}
}

func (c *Client) Record(ctx context.Context, msg domain.InboundMessage) (*domain.StoredMessage, error) {
	if reason := skipReason(msg); reason != "" {
		logSkipped(c.opts.logger(), msg, reason)
		return nil, nil
	}
	row := newStoredMessage(msg, c.opts.now())
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                c.messageItem(row),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, fmt.Errorf("repository: Record: %w", err)
		}
		existing, ok, lookupErr := c.Lookup(ctx, row.Key())
		if lookupErr != nil {
			return nil, fmt.Errorf("repository: Record: %w", lookupErr)
		}
		if ok {
			return existing, nil
		}
		return nil, fmt.Errorf("repository: Record: conditional put failed but item missing: %w", err)
	}
	return &row, nil
}

func (c *Client) Lookup(ctx context.Context, key domain.MessageKey) (*domain.StoredMessage, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            keyAttrs(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("repository: Lookup get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, false, nil
	}
	m, err := itemToMessage(out.Item)
	if err != nil {
		return nil, false, fmt.Errorf("repository: Lookup unmarshal: %w", err)
	}
	return &m, true, nil
}

func (c *Client) ApplyTranslation(ctx context.Context, key domain.MessageKey, translated string, dir domain.Direction) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 keyAttrs(key),
		UpdateExpression:    aws.String("SET translatedText = :t, translationType = :d"),
		ConditionExpression: aws.String("attribute_exists(PK) AND attribute_exists(SK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: translated},
			":d": &types.AttributeValueMemberS{Value: string(dir)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: ApplyTranslation: %w", err)
	}
	return nil
}

// DeleteOlderThan scans for expired items and removes them in batches.
// Unprocessed items are left for the next run.
func (c *Client) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var (
		deleted  int64
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(c.tableName),
			FilterExpression:     aws.String("createdAt < :cutoff"),
			ProjectionExpression: aws.String("PK, SK"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff.UnixNano(), 10)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return deleted, fmt.Errorf("repository: DeleteOlderThan scan: %w", err)
		}
		n, err := c.deleteKeys(ctx, out.Items)
		deleted += n
		if err != nil {
			return deleted, err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return deleted, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (c *Client) deleteKeys(ctx context.Context, items []map[string]types.AttributeValue) (int64, error) {
	var deleted int64
	for start := 0; start < len(items); start += batchWriteSize {
		end := min(start+batchWriteSize, len(items))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]},
			}})
		}
		out, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{c.tableName: reqs},
		})
		if err != nil {
			return deleted, fmt.Errorf("repository: DeleteOlderThan batch delete: %w", err)
		}
		unprocessed := 0
		if out != nil {
			unprocessed = len(out.UnprocessedItems[c.tableName])
		}
		if unprocessed > 0 {
			c.opts.logger().Warn("dynamodb left items unprocessed", "table", c.tableName, "count", unprocessed)
		}
		deleted += int64(len(reqs) - unprocessed)
	}
	return deleted, nil
}

// SizeOnDisk is not meaningful for a managed table.
func (c *Client) SizeOnDisk(context.Context) (int64, error) {
	return 0, ErrSizeUnsupported
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)})
	if err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return nil }

func (c *Client) messageItem(m domain.StoredMessage) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: chatPK(m.ChatID)},
		"SK":              &types.AttributeValueMemberS{Value: msgSK(m.MessageID)},
		"messageId":       &types.AttributeValueMemberN{Value: strconv.FormatInt(m.MessageID, 10)},
		"chatId":          &types.AttributeValueMemberN{Value: strconv.FormatInt(m.ChatID, 10)},
		"userId":          &types.AttributeValueMemberN{Value: strconv.FormatInt(m.UserID, 10)},
		"originalText":    &types.AttributeValueMemberS{Value: m.OriginalText},
		"translatedText":  &types.AttributeValueMemberS{Value: m.TranslatedText},
		"translationType": &types.AttributeValueMemberS{Value: string(m.TranslationType)},
		"createdAt":       &types.AttributeValueMemberN{Value: strconv.FormatInt(m.CreatedAt.UnixNano(), 10)},
		"ttl":             &types.AttributeValueMemberN{Value: strconv.FormatInt(m.CreatedAt.Add(c.opts.Horizon).Unix(), 10)},
	}
}

// itemToMessage converts a DynamoDB attribute map to a StoredMessage.
func itemToMessage(item map[string]types.AttributeValue) (domain.StoredMessage, error) {
	messageID, err := intAttr(item, "messageId")
	if err != nil {
		return domain.StoredMessage{}, err
	}
	chatID, err := intAttr(item, "chatId")
	if err != nil {
		return domain.StoredMessage{}, err
	}
	original, err := strAttr(item, "originalText")
	if err != nil {
		return domain.StoredMessage{}, err
	}
	createdAt, err := intAttr(item, "createdAt")
	if err != nil {
		return domain.StoredMessage{}, err
	}
	userID, _ := intAttr(item, "userId")             // allow missing
	translated, _ := strAttr(item, "translatedText") // allow empty
	dir, _ := strAttr(item, "translationType")
	if dir == "" {
		dir = string(domain.DirectionNone)
	}

	return domain.StoredMessage{
		MessageID:       messageID,
		ChatID:          chatID,
		UserID:          userID,
		OriginalText:    original,
		TranslatedText:  translated,
		TranslationType: domain.Direction(dir),
		CreatedAt:       time.Unix(0, createdAt).UTC(),
	}, nil
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

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
