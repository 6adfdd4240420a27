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

	"content-transformer/internal/domain"
)

// Attribute names of a persisted transformation item. The table key schema is
// attrOwner (HASH) / attrCreatedAt (RANGE).
const (
	attrOwner          = "userId"
	attrCreatedAt      = "createdAt"
	attrRequestID      = "requestId"
	attrModelID        = "modelId"
	attrPrompt         = "prompt"
	attrResponse       = "response"
	attrLatencyMs      = "latencyMs"
	attrStatus         = "status"
	attrMode           = "mode"
	attrTargetLanguage = "targetLanguage"
	attrTTL            = "ttl"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a DynamoDB table holding transformation history.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*Client)

// WithTTL stamps every new item with a ttl attribute d in the future, so
// DynamoDB expires it. This is opt-in and trades the append-only history for
// bounded retention. Zero (the default) keeps records forever.
func WithTTL(d time.Duration) Option {
	return func(c *Client) {
		c.ttl = d
	}
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{api: api, tableName: tableName, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PutRecord writes rec unconditionally. An item with the same key is replaced.
func (c *Client) PutRecord(ctx context.Context, rec domain.TransformationRecord) error {
	if rec.Owner == "" || rec.CreatedAt == "" {
		return errors.New("repository: PutRecord: owner and createdAt are required")
	}
	if c.ttl > 0 && rec.TTL == 0 {
		rec.TTL = c.now().Add(c.ttl).Unix()
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      recordItem(rec),
	})
	if err != nil {
		return fmt.Errorf("repository: PutRecord: %w", err)
	}
	return nil
}

// QueryByOwner reads the owner's partition newest first. With a zero limit
// every page is drained; otherwise a single page is read and the cursor for
// the next one returned.
func (c *Client) QueryByOwner(ctx context.Context, owner string, page domain.PageRequest) (domain.HistoryPage, error) {
	if strings.TrimSpace(owner) == "" {
		return domain.HistoryPage{}, errors.New("repository: QueryByOwner: owner is required")
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": attrOwner,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if page.Cursor != "" {
		createdAt, err := decodeCursor(page.Cursor)
		if err != nil {
			return domain.HistoryPage{}, fmt.Errorf("repository: QueryByOwner: %w", err)
		}
		in.ExclusiveStartKey = map[string]types.AttributeValue{
			attrOwner:     &types.AttributeValueMemberS{Value: owner},
			attrCreatedAt: &types.AttributeValueMemberS{Value: createdAt},
		}
	}
	if page.Limit > 0 {
		in.Limit = aws.Int32(int32(page.Limit))
	}

	records := make([]domain.TransformationRecord, 0)
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return domain.HistoryPage{}, fmt.Errorf("repository: QueryByOwner query: %w", err)
		}
		for _, item := range out.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return domain.HistoryPage{}, fmt.Errorf("repository: QueryByOwner unmarshal: %w", err)
			}
			records = append(records, rec)
		}

		if len(out.LastEvaluatedKey) == 0 {
			return domain.HistoryPage{Records: records}, nil
		}
		if page.Limit > 0 {
			last, err := strAttr(out.LastEvaluatedKey, attrCreatedAt)
			if err != nil {
				return domain.HistoryPage{}, fmt.Errorf("repository: QueryByOwner last key: %w", err)
			}
			return domain.HistoryPage{Records: records, NextCursor: encodeCursor(last)}, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func recordItem(rec domain.TransformationRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrOwner:     &types.AttributeValueMemberS{Value: rec.Owner},
		attrCreatedAt: &types.AttributeValueMemberS{Value: rec.CreatedAt},
		attrRequestID: &types.AttributeValueMemberS{Value: rec.RequestID},
		attrModelID:   &types.AttributeValueMemberS{Value: rec.ModelID},
		attrPrompt:    &types.AttributeValueMemberS{Value: rec.Prompt},
		attrResponse:  &types.AttributeValueMemberS{Value: rec.Response},
		attrLatencyMs: &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.LatencyMs, 10)},
		attrStatus:    &types.AttributeValueMemberS{Value: rec.Status},
	}
	if rec.Mode != "" {
		item[attrMode] = &types.AttributeValueMemberS{Value: rec.Mode}
	}
	if rec.TargetLanguage != "" {
		item[attrTargetLanguage] = &types.AttributeValueMemberS{Value: rec.TargetLanguage}
	}
	if rec.TTL > 0 {
		item[attrTTL] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.TTL, 10)}
	}
	return item
}

// itemToRecord converts a DynamoDB attribute map to a TransformationRecord.
// Only the key attributes are required. Other attributes that are missing or
// mistyped decode to zero values.
func itemToRecord(item map[string]types.AttributeValue) (domain.TransformationRecord, error) {
	owner, err := strAttr(item, attrOwner)
	if err != nil {
		return domain.TransformationRecord{}, err
	}
	createdAt, err := strAttr(item, attrCreatedAt)
	if err != nil {
		return domain.TransformationRecord{}, err
	}
	prompt, _ := strAttr(item, attrPrompt)
	response, _ := strAttr(item, attrResponse)
	latency, _ := intAttr(item, attrLatencyMs)
	requestID, _ := strAttr(item, attrRequestID)
	modelID, _ := strAttr(item, attrModelID)
	status, _ := strAttr(item, attrStatus)
	mode, _ := strAttr(item, attrMode)
	language, _ := strAttr(item, attrTargetLanguage)
	ttl, _ := intAttr(item, attrTTL)

	return domain.TransformationRecord{
		Owner:          owner,
		CreatedAt:      createdAt,
		RequestID:      requestID,
		ModelID:        modelID,
		Prompt:         prompt,
		Response:       response,
		LatencyMs:      latency,
		Status:         status,
		Mode:           mode,
		TargetLanguage: language,
		TTL:            ttl,
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
