// Package sqlfilter builds the SQL filters, row encoding and migrations
// shared by the SQL-backed request stores.
package sqlfilter

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// Columns of the promotion_requests table used by filters.
const (
	ColApplicant   = "applicant"
	ColStatus      = "status"
	ColLevel       = "current_level"
	ColTargetSpace = "target_space"
	ColCreatedAt   = "created_at"
	ColUpdatedAt   = "updated_at"
	ColApplyTime   = "apply_time"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Question renders "?" placeholders (SQLite).
func Question(int) string { return "?" }

// Dollar renders "$n" placeholders (PostgreSQL).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Query accumulates conditions and bind arguments.
type Query struct {
	ph    Placeholder
	conds []string
	Args  []any
}

// New creates an empty query using ph.
func New(ph Placeholder) *Query {
	return &Query{ph: ph}
}

// Bind adds an argument and returns its placeholder.
func (q *Query) Bind(v any) string {
	q.Args = append(q.Args, v)
	return q.ph(len(q.Args))
}

func (q *Query) in(col string, values []string) {
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = q.Bind(v)
	}
	q.conds = append(q.conds, col+" IN ("+strings.Join(marks, ", ")+")")
}

// Filter adds the conditions of f.
func (q *Query) Filter(f promotion.ListFilter) *Query {
	if f.Applicant != "" {
		q.conds = append(q.conds, ColApplicant+" = "+q.Bind(f.Applicant))
	}
	if len(f.Status) > 0 {
		values := make([]string, len(f.Status))
		for i, s := range f.Status {
			values[i] = string(s)
		}
		q.in(ColStatus, values)
	}
	if len(f.Levels) > 0 {
		values := make([]string, len(f.Levels))
		for i, l := range f.Levels {
			values[i] = string(l)
		}
		q.in(ColLevel, values)
	}
	if f.TargetSpace != "" {
		q.conds = append(q.conds, ColTargetSpace+" = "+q.Bind(string(f.TargetSpace)))
	}

	col := TimeColumn(f.TimeField)
	if !f.FromTime.IsZero() {
		q.conds = append(q.conds, col+" >= "+q.Bind(Nanos(f.FromTime)))
	}
	if !f.ToTime.IsZero() {
		q.conds = append(q.conds, col+" <= "+q.Bind(Nanos(f.ToTime)))
	}
	return q
}

// Where returns the WHERE clause, or "" when there are no conditions.
func (q *Query) Where() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

// Page returns the LIMIT/OFFSET clause. unlimited is the dialect's
// spelling of "no limit" used when only an offset is set.
func (q *Query) Page(f promotion.ListFilter, unlimited string) string {
	var b strings.Builder
	switch {
	case f.Limit > 0:
		b.WriteString(" LIMIT " + q.Bind(f.Limit))
	case f.Offset > 0:
		b.WriteString(" LIMIT " + unlimited)
	}
	if f.Offset > 0 {
		b.WriteString(" OFFSET " + q.Bind(f.Offset))
	}
	return b.String()
}

// OrderBy returns the ORDER BY clause matching promotion.SortRequests.
func OrderBy(f promotion.ListFilter) string {
	dir := " ASC"
	if f.Descending {
		dir = " DESC"
	}
	col := ColCreatedAt
	switch f.OrderBy {
	case promotion.OrderByUpdatedAt:
		col = ColUpdatedAt
	case promotion.OrderByApplyTime:
		col = "COALESCE(" + ColApplyTime + ", " + strconv.FormatInt(Nanos(time.Time{}), 10) + ")"
	}
	return " ORDER BY " + col + dir + ", id" + dir
}

// TimeColumn returns the column a time range applies to.
func TimeColumn(tf promotion.TimeField) string {
	switch tf {
	case promotion.TimeFieldApplied:
		return ColApplyTime
	case promotion.TimeFieldUpdated:
		return ColUpdatedAt
	default:
		return ColCreatedAt
	}
}

// Nanos encodes t as Unix nanoseconds. UnixNano is undefined for the zero
// time, so it is clamped below every real timestamp.
func Nanos(t time.Time) int64 {
	if t.IsZero() {
		return minNanos
	}
	return t.UnixNano()
}

// NullNanos encodes an optional timestamp; nil stays NULL.
func NullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return Nanos(*t)
}

const minNanos = -1 << 62

// Row holds the column values of one stored request.
type Row struct {
	ID          string
	Applicant   string
	Status      string
	Level       string
	TargetSpace string
	ProjectID   string
	CreatedAt   int64
	UpdatedAt   int64
	ApplyTime   any
	Data        []byte
}

// RowOf encodes pr for storage. The full record lives in Data; the other
// columns exist for filtering and ordering.
func RowOf(pr *promotion.PullRequest) (Row, error) {
	data, err := json.Marshal(pr)
	if err != nil {
		return Row{}, err
	}
	var projectID string
	if pr.Snapshot != nil {
		projectID = pr.Snapshot.ProjectID
	}
	return Row{
		ID:          pr.ID,
		Applicant:   pr.Applicant,
		Status:      string(pr.Status),
		Level:       string(pr.CurrentLevel),
		TargetSpace: string(pr.TargetSpace),
		ProjectID:   projectID,
		CreatedAt:   Nanos(pr.CreatedAt),
		UpdatedAt:   Nanos(pr.UpdatedAt),
		ApplyTime:   NullNanos(pr.ApplyTime),
		Data:        data,
	}, nil
}

// Decode restores a request from its Data column.
func Decode(data []byte) (*promotion.PullRequest, error) {
	var pr promotion.PullRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, err
	}
	if pr.ReviewHistory == nil {
		pr.ReviewHistory = []promotion.ReviewRecord{}
	}
	return &pr, nil
}
