package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// localDestination is the synthetic record the pipeline expects for the
// built-in local destination, which has no row in the destinations table.
var localDestination = &db.Destination{
	Name:            "local",
	DestinationType: db.DestinationTypeLocal,
}

// resolveDestinations decodes a Schedule.DestinationIDs JSON array and
// loads the full Destination row for each id, substituting the synthetic
// local destination for db.LocalDestinationID.
func (s *Scheduler) resolveDestinations(ctx context.Context, destinationIDsJSON string) ([]*db.Destination, error) {
	var ids []string
	if destinationIDsJSON != "" {
		if err := json.Unmarshal([]byte(destinationIDsJSON), &ids); err != nil {
			return nil, fmt.Errorf("scheduler: decoding destination_ids: %w", err)
		}
	}

	destinations := make([]*db.Destination, 0, len(ids))
	for _, raw := range ids {
		if raw == db.LocalDestinationID {
			destinations = append(destinations, localDestination)
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid destination id %q: %w", raw, err)
		}
		dest, err := s.dests.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("scheduler: loading destination %s: %w", raw, err)
		}
		destinations = append(destinations, dest)
	}
	return destinations, nil
}
