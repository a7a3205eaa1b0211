package location

import (
	"context"
	"errors"
	"testing"

	"github.com/example/courier-dispatch/internal/dispatch"
	"github.com/example/courier-dispatch/internal/models"
)

type capturePublisher struct {
	riderID string
	payload interface{}
	calls   int
}

func (c *capturePublisher) Publish(riderID string, payload interface{}) int {
	c.riderID = riderID
	c.payload = payload
	c.calls++
	return 1
}

func TestReportPersistsAndPublishes(t *testing.T) {
	pub := &capturePublisher{}
	relay := NewRelay(NewMemoryStore(), pub, nil, nil)
	ctx := context.Background()

	loc, err := relay.Report(ctx, "rider-1", 13.7, 100.5)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Latitude != 13.7 || loc.Longitude != 100.5 {
		t.Fatalf("unexpected echo: %+v", loc)
	}
	if pub.calls != 1 || pub.riderID != "rider-1" {
		t.Fatalf("expected one publish to rider-1, got %d to %q", pub.calls, pub.riderID)
	}
	ev, ok := pub.payload.(dispatch.LocationEvent)
	if !ok || ev.Type != dispatch.EventLocation || ev.Latitude != 13.7 {
		t.Fatalf("unexpected event payload: %#v", pub.payload)
	}

	got, err := relay.Latest(ctx, "rider-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Latitude != 13.7 || got.Longitude != 100.5 {
		t.Fatalf("latest should echo the report, got %+v", got)
	}
}

func TestReportLatestWins(t *testing.T) {
	relay := NewRelay(NewMemoryStore(), &capturePublisher{}, nil, nil)
	ctx := context.Background()
	relay.Report(ctx, "rider-1", 13.7, 100.5)
	relay.Report(ctx, "rider-1", 13.8, 100.6)

	got, _ := relay.Latest(ctx, "rider-1")
	if got.Latitude != 13.8 || got.Longitude != 100.6 {
		t.Fatalf("latest must be the last write, got %+v", got)
	}
}

func TestReportRejectsBadInput(t *testing.T) {
	pub := &capturePublisher{}
	relay := NewRelay(NewMemoryStore(), pub, nil, nil)
	ctx := context.Background()

	if _, err := relay.Report(ctx, "", 13.7, 100.5); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("missing rider id, got %v", err)
	}
	if _, err := relay.Report(ctx, "rider-1", 91, 0); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("out of range latitude, got %v", err)
	}
	if pub.calls != 0 {
		t.Fatal("rejected reports must not fan out")
	}
}

func TestLatestFallbackForUnknownRider(t *testing.T) {
	relay := NewRelay(NewMemoryStore(), &capturePublisher{}, nil, nil)
	got, err := relay.Latest(context.Background(), "rider-x")
	if err != nil {
		t.Fatal(err)
	}
	if got.RiderID != "rider-x" || got.Latitude != 0 || got.Longitude != 0 || !got.UpdatedAt.IsZero() {
		t.Fatalf("expected zero fallback, got %+v", got)
	}
}
