package status

import (
	"time"

	"github.com/splax/sitepress/internal/domain"
)

// View is the client-facing projection of a deployment record.
type View struct {
	BusinessID         string    `json:"businessId"`
	BusinessName       string    `json:"businessName,omitempty"`
	Subdomain          string    `json:"subdomain"`
	RequestedSubdomain string    `json:"requestedSubdomain,omitempty"`
	Status             string    `json:"status"`
	URL                string    `json:"url,omitempty"`
	Progress           string    `json:"progress"`
	Message            string    `json:"message"`
	Error              string    `json:"error,omitempty"`
	DeploymentMethod   string    `json:"deploymentMethod,omitempty"`
	ProcessingTimeMs   *int64    `json:"processingTimeMs,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Project derives the status view of doc at now.
func Project(doc domain.BusinessDocument, now time.Time) View {
	dep := doc.Deployment
	view := View{
		BusinessID:         doc.Business.ID,
		BusinessName:       doc.Business.BusinessName,
		Subdomain:          dep.Subdomain,
		RequestedSubdomain: dep.RequestedSubdomain,
		Status:             dep.Status,
		UpdatedAt:          dep.UpdatedAt,
	}
	if view.BusinessID == "" {
		view.BusinessID = dep.BusinessID
	}

	switch dep.Status {
	case domain.StatusPending:
		view.Progress, view.Message = "0%", "Waiting to start"
	case domain.StatusProcessing:
		if len(dep.Attempts) > 0 {
			view.Progress, view.Message = "75%", "Publishing your website"
		} else {
			view.Progress, view.Message = "25%", "Generating your website"
		}
	case domain.StatusLive:
		view.Progress, view.Message = "100%", "Your website is live"
		view.URL = dep.URL
		view.DeploymentMethod = dep.DeploymentMethod
	case domain.StatusError:
		view.Progress, view.Message = "100%", "Deployment failed, resubmit to try again"
		view.Error = dep.Error
	default:
		view.Progress, view.Message = "0%", "Unknown status"
	}

	if elapsed := dep.ProcessingTime(now); elapsed != nil {
		ms := elapsed.Milliseconds()
		view.ProcessingTimeMs = &ms
	}
	return view
}
