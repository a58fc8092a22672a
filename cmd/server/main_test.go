package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	wc "github.com/linnemanlabs/wbtrack/internal/cfg"
	"github.com/linnemanlabs/wbtrack/internal/tracking"
	"github.com/linnemanlabs/wbtrack/internal/tracking/filestore"
)

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_Success(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	// Create a real unixgram listener.
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}

	got := string(buf[:n])
	if got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

func TestOpenStore_DataFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	store, closeStore, err := openStore(ctx, wc.Config{DataFile: path}, log.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	fs, ok := store.(*filestore.Store)
	if !ok {
		t.Fatalf("store type = %T, want *filestore.Store", store)
	}
	if fs.Path() != path {
		t.Errorf("Path() = %q, want %q", fs.Path(), path)
	}

	rec := tracking.NewRecord()
	rec.Cabinets = append(rec.Cabinets, tracking.Cabinet{Name: "Main", Key: "k"})
	if err := store.Save(ctx, "1001", rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, found, err := store.Load(ctx, "1001")
	if err != nil || !found {
		t.Fatalf("Load = found %v err %v", found, err)
	}
	if len(got.Cabinets) != 1 || got.Cabinets[0].Name != "Main" {
		t.Errorf("cabinets = %+v", got.Cabinets)
	}
}

func TestOpenStore_EmptyDataFile(t *testing.T) {
	t.Parallel()

	_, _, err := openStore(context.Background(), wc.Config{}, log.Nop())
	if err == nil {
		t.Fatal("expected error for empty data file path")
	}
	if !strings.Contains(err.Error(), "filestore init") {
		t.Errorf("error = %q, want filestore init prefix", err)
	}
}
