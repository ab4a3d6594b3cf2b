package promotion

import (
	"fmt"
	"time"
)

// DefaultTokenHistory is how many idempotency receipts a request keeps.
const DefaultTokenHistory = 16

// PullRequest is a request to promote a project's cost data into a shared
// data space. It is mutated only through the Engine and persisted only by a
// Store.
type PullRequest struct {
	ID            string           `json:"id"`
	Snapshot      *ProjectSnapshot `json:"project_snapshot"`
	Title         string           `json:"title"`
	TargetSpace   TargetSpace      `json:"target_space"`
	Applicant     string           `json:"applicant"`
	ApplyTime     *time.Time       `json:"apply_time,omitempty"`
	Status        Status           `json:"status"`
	CurrentLevel  Level            `json:"current_level,omitempty"`
	Reviewer      string           `json:"reviewer,omitempty"`
	ReviewTime    *time.Time       `json:"review_time,omitempty"`
	ReviewComment string           `json:"review_comment,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       int64            `json:"version"`
	ReviewHistory []ReviewRecord   `json:"review_history"`
	AppliedTokens []AppliedToken   `json:"applied_tokens,omitempty"`
}

// ReviewRecord is one entry of the append-only review history.
type ReviewRecord struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Level       Level     `json:"level,omitempty"`
	Operator    string    `json:"operator"`
	OperateTime time.Time `json:"operate_time"`
	Comment     string    `json:"comment,omitempty"`
}

// AppliedToken is the receipt of an idempotent mutation.
type AppliedToken struct {
	Token     string    `json:"token"`
	Action    Action    `json:"action"`
	Actor     string    `json:"actor"`
	RecordID  string    `json:"record_id,omitempty"`
	Version   int64     `json:"version"`
	AppliedAt time.Time `json:"applied_at"`
}

// Matches returns true if the receipt was issued for the same action and actor.
func (t AppliedToken) Matches(action Action, actor string) bool {
	return t.Action == action && t.Actor == actor
}

// NewPullRequest creates a draft request holding a private copy of snapshot.
func NewPullRequest(id string, snapshot *ProjectSnapshot, title string, space TargetSpace, applicant string, now time.Time) *PullRequest {
	if title == "" && snapshot != nil {
		title = snapshot.ProjectName
	}
	return &PullRequest{
		ID:            id,
		Snapshot:      snapshot.Clone(),
		Title:         title,
		TargetSpace:   space,
		Applicant:     applicant,
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
		ReviewHistory: []ReviewRecord{},
	}
}

// Clone returns a deep copy of the request.
func (pr *PullRequest) Clone() *PullRequest {
	if pr == nil {
		return nil
	}
	c := *pr
	c.Snapshot = pr.Snapshot.Clone()
	c.ApplyTime = cloneTime(pr.ApplyTime)
	c.ReviewTime = cloneTime(pr.ReviewTime)
	c.ReviewHistory = make([]ReviewRecord, len(pr.ReviewHistory))
	copy(c.ReviewHistory, pr.ReviewHistory)
	if pr.AppliedTokens != nil {
		c.AppliedTokens = make([]AppliedToken, len(pr.AppliedTokens))
		copy(c.AppliedTokens, pr.AppliedTokens)
	}
	return &c
}

// LastRecord returns the most recent history entry, or nil.
func (pr *PullRequest) LastRecord() *ReviewRecord {
	if len(pr.ReviewHistory) == 0 {
		return nil
	}
	r := pr.ReviewHistory[len(pr.ReviewHistory)-1]
	return &r
}

// FindToken returns the receipt for token, if it is still remembered.
func (pr *PullRequest) FindToken(token string) (AppliedToken, bool) {
	if token == "" {
		return AppliedToken{}, false
	}
	for i := len(pr.AppliedTokens) - 1; i >= 0; i-- {
		if pr.AppliedTokens[i].Token == token {
			return pr.AppliedTokens[i], true
		}
	}
	return AppliedToken{}, false
}

// RememberToken records a receipt, keeping only the newest limit entries.
func (pr *PullRequest) RememberToken(t AppliedToken, limit int) {
	if t.Token == "" {
		return
	}
	if limit <= 0 {
		limit = DefaultTokenHistory
	}
	pr.AppliedTokens = append(pr.AppliedTokens, t)
	if over := len(pr.AppliedTokens) - limit; over > 0 {
		pr.AppliedTokens = append([]AppliedToken(nil), pr.AppliedTokens[over:]...)
	}
}

// Touch advances UpdatedAt and Version. UpdatedAt strictly increases even
// when the clock does not.
func (pr *PullRequest) Touch(now time.Time) {
	if !now.After(pr.UpdatedAt) {
		now = pr.UpdatedAt.Add(time.Nanosecond)
	}
	pr.UpdatedAt = now
	pr.Version++
}

// CheckInvariants verifies the structural rules every stored request obeys.
func (pr *PullRequest) CheckInvariants() error {
	if pr.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}
	if !pr.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, pr.Status)
	}
	if pr.Status.AwaitsReview() != (pr.CurrentLevel != LevelNone) {
		return fmt.Errorf("%w: status %s with level %q", ErrInvalidRequest, pr.Status, pr.CurrentLevel)
	}
	if pr.Status == StatusReviewing && !pr.CurrentLevel.IsValid() {
		return fmt.Errorf("%w: reviewing without a level", ErrInvalidRequest)
	}
	if pr.Status != StatusDraft && pr.ApplyTime == nil {
		return fmt.Errorf("%w: %s without apply time", ErrInvalidRequest, pr.Status)
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
