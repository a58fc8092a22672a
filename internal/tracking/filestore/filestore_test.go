package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data.json"), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func sampleRecord() *tracking.Record {
	rec := tracking.NewRecord()
	rec.Cabinets = []tracking.Cabinet{{Name: "Main", Key: "k1"}}
	rec.Tracking["Main"] = true
	rec.CampaignStates["Main"] = tracking.StateMap{12345: tracking.StatusPaused}
	return rec
}

func TestNew_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := New("", log.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStore_MissingFile(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	_, ok, err := s.Load(context.Background(), "1001")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("expected ok=false with no data file")
	}
	owners, err := s.Owners(context.Background())
	if err != nil {
		t.Fatalf("Owners: %v", err)
	}
	if len(owners) != 0 {
		t.Errorf("Owners = %v, want none", owners)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, "1001", sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "2002", tracking.NewRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(ctx, "1001")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.Cabinets[0] != (tracking.Cabinet{Name: "Main", Key: "k1"}) {
		t.Errorf("Cabinets = %+v", got.Cabinets)
	}
	if !got.Tracking["Main"] {
		t.Error("tracking flag lost")
	}
	if got.CampaignStates["Main"][12345] != tracking.StatusPaused {
		t.Errorf("CampaignStates = %v", got.CampaignStates)
	}

	owners, err := s.Owners(ctx)
	if err != nil {
		t.Fatalf("Owners: %v", err)
	}
	if len(owners) != 2 || owners[0] != "1001" || owners[1] != "2002" {
		t.Errorf("Owners = %v", owners)
	}
}

func TestStore_FileFormat(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	if err := s.Save(context.Background(), "1001", sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"\n    \"1001\": {",
		"\"cabinets\"",
		"\"tracking\"",
		"\"campaign_states\"",
		"\"12345\": 11",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("data file missing %q:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(text, "\n") {
		t.Error("data file does not end with a newline")
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != fileMode {
		t.Errorf("mode = %o, want %o", perm, fileMode)
	}
}

func TestStore_AcceptsComments(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	doc := `{
    // hand-edited
    "1001": {
        "cabinets": [{"name": "Main", "key": "k1"}], /* one cabinet */
        "tracking": {"Main": false},
        "campaign_states": {},
    },
}`
	if err := os.WriteFile(s.Path(), []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, ok, err := s.Load(context.Background(), "1001")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if len(got.Cabinets) != 1 || got.Cabinets[0].Name != "Main" {
		t.Errorf("Cabinets = %+v", got.Cabinets)
	}
}

func TestStore_CorruptFileTreatedAsEmptyAndPreserved(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	garbage := []byte("{not json at all")
	if err := os.WriteFile(s.Path(), garbage, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, ok, err := s.Load(ctx, "1001")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("expected ok=false for corrupt file")
	}

	if err := s.Save(ctx, "1001", sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	preserved, err := os.ReadFile(s.Path() + corruptSuffix)
	if err != nil {
		t.Fatalf("corrupt copy not preserved: %v", err)
	}
	if string(preserved) != string(garbage) {
		t.Errorf("preserved = %q, want %q", preserved, garbage)
	}
	if _, ok, _ := s.Load(ctx, "1001"); !ok {
		t.Error("record not readable after overwrite")
	}
}

func TestStore_MalformedOwnerEntry(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	doc := `{
    "1001": {"cabinets": "not-a-list"},
    "2002": {"cabinets": [{"name": "", "key": "k"}]},
    "3003": {"cabinets": [{"name": "Main", "key": "k"}], "tracking": {}, "campaign_states": {}}
}`
	if err := os.WriteFile(s.Path(), []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	for _, owner := range []tracking.OwnerID{"1001", "2002"} {
		_, ok, err := s.Load(ctx, owner)
		if err != nil {
			t.Fatalf("Load(%s): %v", owner, err)
		}
		if ok {
			t.Errorf("Load(%s) ok = true, want false", owner)
		}
	}
	if _, ok, err := s.Load(ctx, "3003"); err != nil || !ok {
		t.Errorf("Load(3003): ok=%v err=%v", ok, err)
	}
}

func TestStore_WorksWithRecords(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	records := tracking.NewRecords(s, 3, log.Nop())

	if err := records.AddCabinet(ctx, "1001", tracking.Cabinet{Name: "Main", Key: "k1"}); err != nil {
		t.Fatalf("AddCabinet: %v", err)
	}
	if err := records.SetTracking(ctx, "1001", "Main", true); err != nil {
		t.Fatalf("SetTracking: %v", err)
	}

	reopened, err := New(s.Path(), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec, err := tracking.NewRecords(reopened, 3, log.Nop()).Get(ctx, "1001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Tracking["Main"] {
		t.Error("tracking flag did not survive reopen")
	}
}
