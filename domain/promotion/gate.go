package promotion

// DefaultCompletenessThreshold is the minimum completeness for submission.
const DefaultCompletenessThreshold = 80

// Gate blocks submission of insufficiently complete snapshots.
type Gate struct {
	Threshold int
}

// NewGate creates a gate. Non-positive thresholds use the default.
func NewGate(threshold int) Gate {
	if threshold <= 0 {
		threshold = DefaultCompletenessThreshold
	}
	return Gate{Threshold: threshold}
}

// CheckSubmittable returns a *CompletenessTooLowError when the snapshot is
// below the threshold.
func (g Gate) CheckSubmittable(snapshot *ProjectSnapshot) error {
	threshold := g.Threshold
	if threshold <= 0 {
		threshold = DefaultCompletenessThreshold
	}
	if snapshot == nil {
		return &CompletenessTooLowError{Required: threshold, Actual: 0}
	}
	if snapshot.Completeness < threshold {
		return &CompletenessTooLowError{Required: threshold, Actual: snapshot.Completeness}
	}
	return nil
}
