package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// requestItem represents a request in DynamoDB. Timestamps are Unix
// nanoseconds; the composite attributes feed the secondary indexes.
type requestItem struct {
	ID              string `dynamodbav:"id"`
	Applicant       string `dynamodbav:"applicant"`
	Status          string `dynamodbav:"status"`
	CurrentLevel    string `dynamodbav:"current_level,omitempty"`
	TargetSpace     string `dynamodbav:"target_space"`
	ApplicantStatus string `dynamodbav:"applicant_status"`
	LevelStatus     string `dynamodbav:"level_status,omitempty"`
	CreatedAt       int64  `dynamodbav:"created_at"`
	UpdatedAt       int64  `dynamodbav:"updated_at"`
	ApplyTime       *int64 `dynamodbav:"apply_time,omitempty"`
	Version         int64  `dynamodbav:"version"`
	Data            string `dynamodbav:"data"`
}

// RequestStore is a DynamoDB-backed implementation of promotion.Store.
// Writes are conditional puts on the item version.
type RequestStore struct {
	client       *dynamodb.Client
	tableName    string
	queryTimeout time.Duration
	retries      int
}

// NewRequestStore creates a new DynamoDB request store.
func NewRequestStore(client *Client) *RequestStore {
	s := &RequestStore{
		client:       client.DynamoDB(),
		tableName:    client.config.TableName,
		queryTimeout: client.config.QueryTimeout,
		retries:      client.config.CASRetries,
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = 30 * time.Second
	}
	if s.retries <= 0 {
		s.retries = 5
	}
	return s
}

// Create persists a new request.
func (s *RequestStore) Create(ctx context.Context, pr *promotion.PullRequest) error {
	if pr == nil || pr.ID == "" {
		return promotion.ErrInvalidRequest
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	av, err := marshalItem(pr, 1)
	if err != nil {
		return err
	}

	cond := expression.AttributeNotExists(expression.Name("id"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return promotion.ErrAlreadyExists
		}
		return s.wrapError(err)
	}

	return nil
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*promotion.PullRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	pr, _, err := s.load(ctx, id)
	return pr, err
}

// Mutate applies fn and puts the result on condition that the stored
// version is the one fn saw.
func (s *RequestStore) Mutate(ctx context.Context, id string, fn promotion.MutateFunc) (*promotion.PullRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	for attempt := 0; attempt <= s.retries; attempt++ {
		current, version, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == nil || next.ID != id {
			return nil, fmt.Errorf("%w: mutation changed the request id", promotion.ErrInvalidRequest)
		}

		av, err := marshalItem(next, version+1)
		if err != nil {
			return nil, err
		}

		expr, err := versionCondition(version)
		if err != nil {
			return nil, err
		}

		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(s.tableName),
			Item:                      av,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err == nil {
			return next, nil
		}
		if !isConditionFailed(err) {
			return nil, s.wrapError(err)
		}
	}

	return nil, fmt.Errorf("%w: request %s changed concurrently", promotion.ErrConflict, id)
}

// Delete removes the request if check accepts the current item.
func (s *RequestStore) Delete(ctx context.Context, id string, check func(current *promotion.PullRequest) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	for attempt := 0; attempt <= s.retries; attempt++ {
		current, version, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}

		expr, err := versionCondition(version)
		if err != nil {
			return err
		}

		_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       itemKey(id),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err == nil {
			return nil
		}
		if !isConditionFailed(err) {
			return s.wrapError(err)
		}
	}

	return fmt.Errorf("%w: request %s changed concurrently", promotion.ErrConflict, id)
}

// List returns requests matching the filter and the total before paging.
// Applicant and level filters query the matching index; anything else is a
// consistent table scan.
func (s *RequestStore) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var items []map[string]types.AttributeValue
	var err error

	index, keys := indexKeys(filter)
	if index == "" {
		items, err = s.scan(ctx)
	} else {
		items, err = s.query(ctx, index, keys)
	}
	if err != nil {
		return nil, 0, s.wrapError(err)
	}

	seen := make(map[string]struct{}, len(items))
	matched := []*promotion.PullRequest{}
	for _, av := range items {
		pr, _, err := unmarshalItem(av)
		if err != nil {
			return nil, 0, err
		}
		if _, dup := seen[pr.ID]; dup {
			continue
		}
		seen[pr.ID] = struct{}{}
		if filter.Matches(pr) {
			matched = append(matched, pr)
		}
	}

	total := len(matched)
	promotion.SortRequests(matched, filter.OrderBy, filter.Descending)
	return filter.Page(matched), total, nil
}

// indexKeys picks the secondary index serving filter and its hash keys.
func indexKeys(filter promotion.ListFilter) (string, []string) {
	statuses := filter.Status
	if len(statuses) == 0 {
		statuses = promotion.AllStatuses
	}

	var keys []string
	switch {
	case filter.Applicant != "":
		for _, st := range statuses {
			keys = append(keys, compositeKey(filter.Applicant, string(st)))
		}
		return ApplicantStatusIndex, keys
	case len(filter.Levels) > 0:
		for _, lvl := range filter.Levels {
			if lvl == promotion.LevelNone {
				return "", nil
			}
			for _, st := range statuses {
				keys = append(keys, compositeKey(string(lvl), string(st)))
			}
		}
		return LevelStatusIndex, keys
	default:
		return "", nil
	}
}

func (s *RequestStore) query(ctx context.Context, index string, keys []string) ([]map[string]types.AttributeValue, error) {
	hash := "applicant_status"
	if index == LevelStatusIndex {
		hash = "level_status"
	}

	var items []map[string]types.AttributeValue
	for _, key := range keys {
		expr, err := expression.NewBuilder().
			WithKeyCondition(expression.Key(hash).Equal(expression.Value(key))).
			Build()
		if err != nil {
			return nil, err
		}

		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			IndexName:                 aws.String(index),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			items = append(items, page.Items...)
		}
	}
	return items, nil
}

func (s *RequestStore) scan(ctx context.Context) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// load reads a request and its item version.
func (s *RequestStore) load(ctx context.Context, id string) (*promotion.PullRequest, int64, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, 0, s.wrapError(err)
	}

	if result.Item == nil {
		return nil, 0, promotion.ErrNotFound
	}

	return unmarshalItem(result.Item)
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func versionCondition(version int64) (expression.Expression, error) {
	cond := expression.Name("version").Equal(expression.Value(version))
	return expression.NewBuilder().WithCondition(cond).Build()
}

func compositeKey(a, b string) string {
	return a + "#" + b
}

// toItem converts a request to its DynamoDB item.
func toItem(pr *promotion.PullRequest, version int64) (*requestItem, error) {
	data, err := json.Marshal(pr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	item := &requestItem{
		ID:              pr.ID,
		Applicant:       pr.Applicant,
		Status:          string(pr.Status),
		CurrentLevel:    string(pr.CurrentLevel),
		TargetSpace:     string(pr.TargetSpace),
		ApplicantStatus: compositeKey(pr.Applicant, string(pr.Status)),
		CreatedAt:       pr.CreatedAt.UnixNano(),
		UpdatedAt:       pr.UpdatedAt.UnixNano(),
		Version:         version,
		Data:            string(data),
	}
	if pr.CurrentLevel != promotion.LevelNone {
		item.LevelStatus = compositeKey(string(pr.CurrentLevel), string(pr.Status))
	}
	if pr.ApplyTime != nil {
		at := pr.ApplyTime.UnixNano()
		item.ApplyTime = &at
	}
	return item, nil
}

func marshalItem(pr *promotion.PullRequest, version int64) (map[string]types.AttributeValue, error) {
	item, err := toItem(pr, version)
	if err != nil {
		return nil, err
	}
	return attributevalue.MarshalMap(item)
}

func unmarshalItem(av map[string]types.AttributeValue) (*promotion.PullRequest, int64, error) {
	var item requestItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, 0, err
	}

	var pr promotion.PullRequest
	if err := json.Unmarshal([]byte(item.Data), &pr); err != nil {
		return nil, 0, fmt.Errorf("unmarshal request: %w", err)
	}
	if pr.ReviewHistory == nil {
		pr.ReviewHistory = []promotion.ReviewRecord{}
	}
	return &pr, item.Version, nil
}

func isConditionFailed(err error) bool {
	var conditionFailed *types.ConditionalCheckFailedException
	return errors.As(err, &conditionFailed)
}

// wrapError wraps DynamoDB errors with domain errors.
func (s *RequestStore) wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return errors.Join(promotion.ErrStoreUnavailable, err)
}

// Ensure RequestStore implements promotion.Store
var _ promotion.Store = (*RequestStore)(nil)
