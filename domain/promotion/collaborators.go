package promotion

import "context"

// SnapshotProvider supplies project snapshots from the data-capture system.
type SnapshotProvider interface {
	// FetchSnapshot returns the current snapshot of a project.
	FetchSnapshot(ctx context.Context, projectID string) (*ProjectSnapshot, error)
}

// Authorizer decides who may review a request at a given level.
type Authorizer interface {
	// CanReview reports whether actor holds reviewer capability for pr at level.
	CanReview(ctx context.Context, actor string, level Level, pr *PullRequest) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, actor string, level Level, pr *PullRequest) (bool, error)

// CanReview implements Authorizer.
func (f AuthorizerFunc) CanReview(ctx context.Context, actor string, level Level, pr *PullRequest) (bool, error) {
	return f(ctx, actor, level, pr)
}

// AllowAnyReviewer lets every actor except the applicant review.
var AllowAnyReviewer Authorizer = AuthorizerFunc(func(_ context.Context, actor string, _ Level, pr *PullRequest) (bool, error) {
	return actor != "" && (pr == nil || actor != pr.Applicant), nil
})

// ReviewerLevels is optionally implemented by an Authorizer that can list
// the levels an actor reviews. It narrows "reviewable by" queries to the
// level index before CanReview is consulted per request.
type ReviewerLevels interface {
	LevelsFor(ctx context.Context, actor string) ([]Level, error)
}
