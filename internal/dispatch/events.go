package dispatch

import (
	"log/slog"
	"time"

	"github.com/example/courier-dispatch/internal/models"
	"github.com/example/courier-dispatch/internal/observability"
)

const (
	EventLocation     = "location"
	EventJobAvailable = "job_available"
)

// LocationEvent is the server->client frame carrying a rider position.
type LocationEvent struct {
	Type      string    `json:"type"`
	RiderID   string    `json:"rider_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewLocationEvent(loc models.RiderLocation) LocationEvent {
	return LocationEvent{
		Type:      EventLocation,
		RiderID:   loc.RiderID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		UpdatedAt: loc.UpdatedAt,
	}
}

// JobAvailableEvent is the server->client frame announcing a new Open job.
type JobAvailableEvent struct {
	Type string             `json:"type"`
	Job  models.HydratedJob `json:"job"`
}

// Announcer fans job lifecycle events out to every live viewer, plus the
// optional push and webhook channels for clients without a connection.
// Everything here is fire-and-forget: no ack, no retry, no persistence. A
// viewer connecting after an announcement never sees it.
type Announcer struct {
	Registry *Registry
	Push     *FCMPush // optional
	Webhook  *Webhook // optional
	Logger   *slog.Logger
}

func (a *Announcer) AnnounceNewJob(job *models.HydratedJob) {
	n := a.Registry.Broadcast(JobAvailableEvent{Type: EventJobAvailable, Job: *job})
	observability.BroadcastEventsTotal.Inc()
	if a.Logger != nil {
		a.Logger.Info("announced new job", "job_id", job.ID, "viewers", n)
	}
	if a.Push != nil {
		a.Push.NotifyNewJob(job)
	}
	if a.Webhook != nil {
		a.Webhook.Send(EventJobAvailable, job)
	}
}
