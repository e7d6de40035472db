package domain

import "time"

// Deployment statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusLive       = "live"
	StatusError      = "error"
)

// DeploymentRecord captures one business's deployment state and outcome.
type DeploymentRecord struct {
	BusinessID          string            `json:"businessId"`
	Subdomain           string            `json:"subdomain"`
	RequestedSubdomain  string            `json:"requestedSubdomain"`
	Status              string            `json:"status"`
	Domain              string            `json:"domain,omitempty"`
	URL                 string            `json:"url,omitempty"`
	DeploymentMethod    string            `json:"deploymentMethod,omitempty"`
	Error               string            `json:"error,omitempty"`
	ProcessingStartedAt *time.Time        `json:"processingStartedAt,omitempty"`
	DeployedAt          *time.Time        `json:"deployedAt,omitempty"`
	ErrorAt             *time.Time        `json:"errorAt,omitempty"`
	Attempts            []StrategyAttempt `json:"attempts,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// StrategyAttempt records a single deployment strategy invocation.
type StrategyAttempt struct {
	Strategy  string    `json:"strategy"`
	Subdomain string    `json:"subdomain"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Terminal reports whether the record reached live or error.
func (d DeploymentRecord) Terminal() bool {
	return d.Status == StatusLive || d.Status == StatusError
}

// ProcessingTime returns the elapsed processing duration, ending at the
// deployment or failure time when set and at now otherwise. It returns nil
// when processing never started.
func (d DeploymentRecord) ProcessingTime(now time.Time) *time.Duration {
	if d.ProcessingStartedAt == nil {
		return nil
	}
	end := now
	switch {
	case d.DeployedAt != nil:
		end = *d.DeployedAt
	case d.ErrorAt != nil:
		end = *d.ErrorAt
	}
	elapsed := end.Sub(*d.ProcessingStartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return &elapsed
}
