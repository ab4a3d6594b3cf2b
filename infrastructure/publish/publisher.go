// Package publish writes approved project snapshots into the target data
// space. A Publisher is a notification.Notifier that reacts to
// promotion.approved and ignores every other event.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// ContentType of published documents.
const ContentType = "application/json"

var (
	// ErrInvalidKey indicates a path segment that cannot be used in an object key.
	ErrInvalidKey = errors.New("publish: invalid object key segment")

	// ErrMissingSnapshot indicates an approved event without a snapshot.
	ErrMissingSnapshot = errors.New("publish: approved event carries no snapshot")
)

// Bucket is a flat object store.
type Bucket interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Name identifies the bucket in logs.
	Name() string
}

// Document is the object written for an approved request.
type Document struct {
	RequestID   string                     `json:"request_id"`
	Title       string                     `json:"title,omitempty"`
	TargetSpace promotion.TargetSpace      `json:"target_space"`
	Applicant   string                     `json:"applicant"`
	ApprovedBy  string                     `json:"approved_by"`
	ApprovedAt  time.Time                  `json:"approved_at"`
	Comment     string                     `json:"comment,omitempty"`
	Snapshot    *promotion.ProjectSnapshot `json:"snapshot"`
}

// Publisher writes approved snapshots to a bucket.
type Publisher struct {
	bucket Bucket
	prefix string
}

// NewPublisher creates a publisher writing below prefix.
func NewPublisher(bucket Bucket, prefix string) *Publisher {
	return &Publisher{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Notify implements notification.Notifier.
func (p *Publisher) Notify(ctx context.Context, event *notification.Event) error {
	if event.Type != notification.EventApproved {
		return nil
	}

	var payload notification.ApprovedPayload
	if err := event.DecodePayload(&payload); err != nil {
		return fmt.Errorf("publish: decode payload: %w", err)
	}
	if payload.Snapshot == nil {
		return ErrMissingSnapshot
	}

	key, err := ObjectKey(p.prefix, payload.TargetSpace, payload.Snapshot.ProjectID, event.RequestID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(Document{
		RequestID:   event.RequestID,
		Title:       payload.Title,
		TargetSpace: payload.TargetSpace,
		Applicant:   payload.Applicant,
		ApprovedBy:  payload.Actor,
		ApprovedAt:  event.Timestamp,
		Comment:     payload.Comment,
		Snapshot:    payload.Snapshot,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("publish: encode document: %w", err)
	}

	start := time.Now()
	if err := p.bucket.Put(ctx, key, data, ContentType); err != nil {
		return fmt.Errorf("publish: %s: %w", p.bucket.Name(), err)
	}

	logging.Info().
		Add(logging.Component("publish")).
		Add(logging.RequestID(event.RequestID)).
		Add(logging.ProjectID(payload.Snapshot.ProjectID)).
		Add(logging.Str("bucket", p.bucket.Name())).
		Add(logging.Str("key", key)).
		Add(logging.Duration(time.Since(start))).
		Msg("approved snapshot published")
	return nil
}

// NotifyBatch implements notification.Notifier.
func (p *Publisher) NotifyBatch(ctx context.Context, events []*notification.Event) error {
	var errs []error
	for _, event := range events {
		if err := p.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements notification.Notifier. It closes the bucket when it
// holds a client.
func (p *Publisher) Close() error {
	if c, ok := p.bucket.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// ObjectKey returns "<prefix>/<space>/<projectId>/<requestId>.json".
func ObjectKey(prefix string, space promotion.TargetSpace, projectID, requestID string) (string, error) {
	if !space.IsValid() {
		return "", fmt.Errorf("%w: target space %q", ErrInvalidKey, space)
	}
	for _, seg := range []string{projectID, requestID} {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, seg)
		}
	}
	return path.Join(prefix, string(space), projectID, requestID+".json"), nil
}

var _ notification.Notifier = (*Publisher)(nil)
