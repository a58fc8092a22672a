package tracking

import "context"

// Store is the persistence interface for owner records.
// Load returns ok=false for an unknown owner. Implementations treat a
// malformed persisted record as absent. Save overwrites the whole record.
type Store interface {
	Load(ctx context.Context, owner OwnerID) (*Record, bool, error)
	Save(ctx context.Context, owner OwnerID, rec *Record) error
	Owners(ctx context.Context) ([]OwnerID, error)
}
