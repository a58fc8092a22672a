package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/wbtrack/internal/postgres"
	"github.com/linnemanlabs/wbtrack/internal/tracking"
	"github.com/linnemanlabs/wbtrack/internal/tracking/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("WBTRACK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WBTRACK_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool, log.Nop())
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func testOwner(t *testing.T) tracking.OwnerID {
	t.Helper()
	return tracking.OwnerID(fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano()))
}

func TestSaveAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	owner := testOwner(t)

	rec := tracking.NewRecord()
	rec.Cabinets = []tracking.Cabinet{{Name: "Main", Key: "k1"}}
	rec.Tracking["Main"] = true
	rec.CampaignStates["Main"] = tracking.StateMap{12345: tracking.StatusActive}

	if err := s.Save(ctx, owner, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(ctx, owner)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("Load returned ok=false, want true")
	}
	if len(got.Cabinets) != 1 || got.Cabinets[0] != rec.Cabinets[0] {
		t.Errorf("Cabinets = %+v", got.Cabinets)
	}
	if !got.Tracking["Main"] {
		t.Error("tracking flag lost")
	}
	if got.CampaignStates["Main"][12345] != tracking.StatusActive {
		t.Errorf("CampaignStates = %v", got.CampaignStates)
	}
}

func TestLoadMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Load(context.Background(), testOwner(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("Load returned ok=true for unknown owner")
	}
}

func TestUpsert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	owner := testOwner(t)

	rec := tracking.NewRecord()
	rec.Cabinets = []tracking.Cabinet{{Name: "A", Key: "ka"}}
	if err := s.Save(ctx, owner, rec); err != nil {
		t.Fatalf("Save #1: %v", err)
	}
	rec.Cabinets = append(rec.Cabinets, tracking.Cabinet{Name: "B", Key: "kb"})
	if err := s.Save(ctx, owner, rec); err != nil {
		t.Fatalf("Save #2: %v", err)
	}

	got, _, err := s.Load(ctx, owner)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Cabinets) != 2 {
		t.Errorf("len(Cabinets) = %d, want 2", len(got.Cabinets))
	}

	owners, err := s.Owners(ctx)
	if err != nil {
		t.Fatalf("Owners: %v", err)
	}
	found := 0
	for _, o := range owners {
		if o == owner {
			found++
		}
	}
	if found != 1 {
		t.Errorf("owner listed %d times, want 1", found)
	}
}
