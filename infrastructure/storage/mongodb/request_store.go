package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// requestDocument is the MongoDB document representation of a request.
// Timestamps are Unix nanoseconds; BSON dates only keep milliseconds.
type requestDocument struct {
	ID           string `bson:"_id"`
	Applicant    string `bson:"applicant"`
	Status       string `bson:"status"`
	CurrentLevel string `bson:"current_level"`
	TargetSpace  string `bson:"target_space"`
	ProjectID    string `bson:"project_id"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
	ApplyTime    *int64 `bson:"apply_time,omitempty"`
	Version      int64  `bson:"version"`
	Data         string `bson:"data"`
}

// RequestStore is a MongoDB-backed implementation of promotion.Store.
// Writes are conditional on the document version read before fn ran.
type RequestStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
	retries      int
}

// NewRequestStore creates a new MongoDB request store.
func NewRequestStore(client *Client, collectionName string) *RequestStore {
	if collectionName == "" {
		collectionName = client.CollectionName()
	}
	s := &RequestStore{
		collection:   client.Collection(collectionName),
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

	doc, err := toDocument(pr, 1)
	if err != nil {
		return err
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
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

// Mutate applies fn and replaces the document if its version is unchanged,
// re-running fn against the newer document otherwise.
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

		doc, err := toDocument(next, version+1)
		if err != nil {
			return nil, err
		}

		result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": id, "version": version}, doc)
		if err != nil {
			return nil, s.wrapError(err)
		}
		if result.MatchedCount == 1 {
			return next, nil
		}
	}

	return nil, fmt.Errorf("%w: request %s changed concurrently", promotion.ErrConflict, id)
}

// Delete removes the request if check accepts the current document.
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

		result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "version": version})
		if err != nil {
			return s.wrapError(err)
		}
		if result.DeletedCount == 1 {
			return nil
		}
	}

	return fmt.Errorf("%w: request %s changed concurrently", promotion.ErrConflict, id)
}

// List returns requests matching the filter and the total before paging.
func (s *RequestStore) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	mongoFilter := buildFilter(filter)

	total, err := s.collection.CountDocuments(ctx, mongoFilter)
	if err != nil {
		return nil, 0, s.wrapError(err)
	}

	cursor, err := s.collection.Find(ctx, mongoFilter, buildFindOptions(filter))
	if err != nil {
		return nil, 0, s.wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	items := []*promotion.PullRequest{}
	for cursor.Next(ctx) {
		var doc requestDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, s.wrapError(err)
		}
		pr, err := fromDocument(&doc)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, pr)
	}

	if err := cursor.Err(); err != nil {
		return nil, 0, s.wrapError(err)
	}

	return items, int(total), nil
}

// load reads a request and its document version.
func (s *RequestStore) load(ctx context.Context, id string) (*promotion.PullRequest, int64, error) {
	var doc requestDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, 0, promotion.ErrNotFound
		}
		return nil, 0, s.wrapError(err)
	}

	pr, err := fromDocument(&doc)
	if err != nil {
		return nil, 0, err
	}
	return pr, doc.Version, nil
}

// buildFilter constructs a MongoDB filter from the domain filter.
func buildFilter(filter promotion.ListFilter) bson.M {
	mongoFilter := bson.M{}

	if filter.Applicant != "" {
		mongoFilter["applicant"] = filter.Applicant
	}

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		mongoFilter["status"] = bson.M{"$in": statuses}
	}

	if len(filter.Levels) > 0 {
		levels := make([]string, len(filter.Levels))
		for i, level := range filter.Levels {
			levels[i] = string(level)
		}
		mongoFilter["current_level"] = bson.M{"$in": levels}
	}

	if filter.TargetSpace != "" {
		mongoFilter["target_space"] = string(filter.TargetSpace)
	}

	timeRange := bson.M{}
	if !filter.FromTime.IsZero() {
		timeRange["$gte"] = filter.FromTime.UnixNano()
	}
	if !filter.ToTime.IsZero() {
		timeRange["$lte"] = filter.ToTime.UnixNano()
	}
	if len(timeRange) > 0 {
		mongoFilter[timeField(filter.TimeField)] = timeRange
	}

	return mongoFilter
}

// buildFindOptions constructs MongoDB find options from the domain filter.
func buildFindOptions(filter promotion.ListFilter) *options.FindOptions {
	opts := options.Find()

	sortField := "created_at"
	switch filter.OrderBy {
	case promotion.OrderByUpdatedAt:
		sortField = "updated_at"
	case promotion.OrderByApplyTime:
		sortField = "apply_time"
	}

	sortDir := 1
	if filter.Descending {
		sortDir = -1
	}
	opts.SetSort(bson.D{{Key: sortField, Value: sortDir}, {Key: "_id", Value: sortDir}})

	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	return opts
}

func timeField(tf promotion.TimeField) string {
	switch tf {
	case promotion.TimeFieldApplied:
		return "apply_time"
	case promotion.TimeFieldUpdated:
		return "updated_at"
	default:
		return "created_at"
	}
}

// toDocument converts a request to a MongoDB document.
func toDocument(pr *promotion.PullRequest, version int64) (*requestDocument, error) {
	data, err := json.Marshal(pr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	doc := &requestDocument{
		ID:           pr.ID,
		Applicant:    pr.Applicant,
		Status:       string(pr.Status),
		CurrentLevel: string(pr.CurrentLevel),
		TargetSpace:  string(pr.TargetSpace),
		CreatedAt:    pr.CreatedAt.UnixNano(),
		UpdatedAt:    pr.UpdatedAt.UnixNano(),
		Version:      version,
		Data:         string(data),
	}
	if pr.Snapshot != nil {
		doc.ProjectID = pr.Snapshot.ProjectID
	}
	if pr.ApplyTime != nil {
		at := pr.ApplyTime.UnixNano()
		doc.ApplyTime = &at
	}

	return doc, nil
}

// fromDocument converts a MongoDB document to a request.
func fromDocument(doc *requestDocument) (*promotion.PullRequest, error) {
	var pr promotion.PullRequest
	if err := json.Unmarshal([]byte(doc.Data), &pr); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if pr.ReviewHistory == nil {
		pr.ReviewHistory = []promotion.ReviewRecord{}
	}
	return &pr, nil
}

// wrapError wraps MongoDB errors with domain errors.
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
