package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

var (
	// ErrStoreRequired indicates the service was built without a store.
	ErrStoreRequired = errors.New("request store is required")

	// ErrNoSnapshotProvider indicates CreateFromProject was called without
	// a configured snapshot provider.
	ErrNoSnapshotProvider = errors.New("no snapshot provider configured")

	// ErrSnapshotUnavailable indicates the snapshot provider failed.
	ErrSnapshotUnavailable = errors.New("snapshot provider unavailable")

	// ErrAuthorizerUnavailable indicates the authorization collaborator failed.
	ErrAuthorizerUnavailable = errors.New("authorizer unavailable")

	errReplay = errors.New("idempotent replay")
)

// Error kinds reported by Kind.
const (
	KindNotFound           = "not_found"
	KindInvalidTransition  = "invalid_transition"
	KindCompletenessTooLow = "completeness_too_low"
	KindForbidden          = "forbidden"
	KindConflict           = "conflict"
	KindStoreUnavailable   = "store_unavailable"
	KindUnavailable        = "unavailable"
	KindInvalidInput       = "invalid_input"
	KindCanceled           = "canceled"
	KindInternal           = "internal"
)

// Kind classifies err into the caller-facing taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, promotion.ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, promotion.ErrCompletenessTooLow):
		return KindCompletenessTooLow
	case errors.Is(err, promotion.ErrNotFound):
		return KindNotFound
	case errors.Is(err, promotion.ErrForbidden):
		return KindForbidden
	case errors.Is(err, promotion.ErrConflict), errors.Is(err, promotion.ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, promotion.ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrSnapshotUnavailable), errors.Is(err, ErrNoSnapshotProvider), errors.Is(err, ErrAuthorizerUnavailable):
		return KindUnavailable
	case errors.Is(err, promotion.ErrInvalidSnapshot),
		errors.Is(err, promotion.ErrInvalidTargetSpace),
		errors.Is(err, promotion.ErrInvalidAction),
		errors.Is(err, promotion.ErrCommentRequired),
		errors.Is(err, promotion.ErrInvalidRequest):
		return KindInvalidInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// translate maps unclassified failures from the store to StoreUnavailable.
func translate(err error) error {
	if err == nil || Kind(err) != KindInternal {
		return err
	}
	return fmt.Errorf("%w: %w", promotion.ErrStoreUnavailable, err)
}
