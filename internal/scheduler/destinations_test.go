package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

func TestResolveDestinationsSubstitutesLocalSentinel(t *testing.T) {
	s := &Scheduler{dests: &fakeDestinationRepository{}}

	ids := `["__local__"]`
	destinations, err := s.resolveDestinations(context.Background(), ids)
	if err != nil {
		t.Fatalf("resolveDestinations: %v", err)
	}
	if len(destinations) != 1 || destinations[0] != localDestination {
		t.Fatalf("expected the synthetic local destination, got %+v", destinations)
	}
}

func TestResolveDestinationsLoadsRealIDs(t *testing.T) {
	dest := db.Destination{Name: "primary", DestinationType: db.DestinationTypeSFTP}
	dest.ID = uuid.Must(uuid.NewV7())
	s := &Scheduler{dests: &fakeDestinationRepository{dest: dest}}

	ids := `["` + dest.ID.String() + `"]`
	destinations, err := s.resolveDestinations(context.Background(), ids)
	if err != nil {
		t.Fatalf("resolveDestinations: %v", err)
	}
	if len(destinations) != 1 || destinations[0].ID != dest.ID {
		t.Fatalf("expected destination %s to resolve, got %+v", dest.ID, destinations)
	}
}

func TestResolveDestinationsRejectsMalformedID(t *testing.T) {
	s := &Scheduler{dests: &fakeDestinationRepository{}}
	if _, err := s.resolveDestinations(context.Background(), `["not-a-uuid"]`); err == nil {
		t.Fatal("expected an error for a malformed destination id")
	}
}

func TestResolveDestinationsEmptyBlobIsEmptySlice(t *testing.T) {
	s := &Scheduler{dests: &fakeDestinationRepository{}}
	destinations, err := s.resolveDestinations(context.Background(), "")
	if err != nil {
		t.Fatalf("resolveDestinations: %v", err)
	}
	if len(destinations) != 0 {
		t.Fatalf("expected no destinations, got %+v", destinations)
	}
}
