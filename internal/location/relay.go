package location

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/courier-dispatch/internal/dispatch"
	"github.com/example/courier-dispatch/internal/models"
	"github.com/example/courier-dispatch/internal/observability"
)

// Publisher is the slice of the connection registry the relay fans out
// through.
type Publisher interface {
	Publish(riderID string, payload interface{}) int
}

// Producer pushes accepted samples onto the location pipeline (Kafka) so
// other processes can warm their own stores. Optional.
type Producer interface {
	PublishLocation(ctx context.Context, loc models.RiderLocation) error
}

// Relay accepts rider position reports: validate, persist latest-wins,
// fan out to the rider's live viewers. The streamed (WS) and plain POST
// report paths both land here.
type Relay struct {
	Store    Store
	Registry Publisher
	Producer Producer // optional
	Logger   *slog.Logger
}

func NewRelay(store Store, registry Publisher, producer Producer, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{Store: store, Registry: registry, Producer: producer, Logger: logger}
}

func (r *Relay) Report(ctx context.Context, riderID string, lat, lng float64) (models.RiderLocation, error) {
	if riderID == "" {
		return models.RiderLocation{}, models.ErrValidation
	}
	if err := models.ValidateCoordinates(lat, lng); err != nil {
		return models.RiderLocation{}, err
	}
	loc := models.RiderLocation{
		RiderID:   riderID,
		Latitude:  lat,
		Longitude: lng,
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.Store.Upsert(ctx, loc); err != nil {
		return models.RiderLocation{}, err
	}
	observability.LocationReportsTotal.Inc()
	r.Registry.Publish(riderID, dispatch.NewLocationEvent(loc))
	if r.Producer != nil {
		if err := r.Producer.PublishLocation(ctx, loc); err != nil {
			r.Logger.Warn("location pipeline publish failed", "rider_id", riderID, "error", err)
		}
	}
	return loc, nil
}

// Latest returns the stored position, or a zero-valued fallback for the
// rider so callers never branch on absence.
func (r *Relay) Latest(ctx context.Context, riderID string) (models.RiderLocation, error) {
	loc, ok, err := r.Store.Latest(ctx, riderID)
	if err != nil {
		return models.RiderLocation{}, err
	}
	if !ok {
		return models.RiderLocation{RiderID: riderID}, nil
	}
	return loc, nil
}
