package sqlitesnapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/wordstore"
)

func TestOpenWithBusyTimeoutOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	s, err := Open(path, WithBusyTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.busyTimeout != 50*time.Millisecond {
		t.Fatalf("busyTimeout = %v, want 50ms", s.busyTimeout)
	}

	var ms int
	if err := s.db.QueryRow("PRAGMA busy_timeout").Scan(&ms); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if ms != 50 {
		t.Fatalf("sqlite busy_timeout = %dms, want 50ms", ms)
	}
}

func TestSaveOneAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.SaveOne(ctx, 100, 0x1234); err != nil {
		t.Fatalf("SaveOne: %v", err)
	}
	if err := s.SaveOne(ctx, 101, 0x5678); err != nil {
		t.Fatalf("SaveOne: %v", err)
	}

	store := wordstore.New()
	v0, v1 := new(uint16), new(uint16)
	store.Insert(&wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 100, NbRegs: 1, DirectPtr: v0})
	store.Insert(&wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 101, NbRegs: 1, DirectPtr: v1})
	if err := store.SortAll(); err != nil {
		t.Fatalf("SortAll: %v", err)
	}

	if err := s.Load(ctx, store); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *v0 != 0x1234 || *v1 != 0x5678 {
		t.Fatalf("loaded values = %04X %04X, want 1234 5678", *v0, *v1)
	}
}

func TestSaveOneUpsertsExistingAddr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.SaveOne(ctx, 5, 1); err != nil {
		t.Fatalf("SaveOne: %v", err)
	}
	if err := s.SaveOne(ctx, 5, 2); err != nil {
		t.Fatalf("SaveOne (overwrite): %v", err)
	}

	store := wordstore.New()
	v := new(uint16)
	store.Insert(&wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 5, NbRegs: 1, DirectPtr: v})
	store.SortAll()
	if err := s.Load(ctx, store); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *v != 2 {
		t.Fatalf("*v = %d, want 2 (latest write should win)", *v)
	}
}

func TestLoadSkipsHandlerBackedWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.SaveOne(ctx, 10, 42); err != nil {
		t.Fatalf("SaveOne: %v", err)
	}

	store := wordstore.New()
	called := false
	store.Insert(&wordstore.Word{
		RegType:   wordstore.HoldingRegister,
		StartAddr: 10,
		NbRegs:    1,
		ReadHandler: func(w *wordstore.Word, out []uint16, ctx any) common.ExceptionCode {
			called = true
			return common.ExceptionNone
		},
	})
	store.SortAll()

	if err := s.Load(ctx, store); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if called {
		t.Fatal("Load must not invoke a handler-backed Word's ReadHandler")
	}
}

func TestSaveOnWriteHandlerPersistsAndAppliesValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	dst := new(uint16)
	w := &wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 7, NbRegs: 1}
	w.WriteHandler = SaveOnWrite(ctx, s, dst)

	if ec := w.WriteHandler([]uint16{99}, w, nil); ec != common.ExceptionNone {
		t.Fatalf("WriteHandler exception = %v", ec)
	}
	if *dst != 99 {
		t.Fatalf("*dst = %d, want 99", *dst)
	}

	store := wordstore.New()
	v := new(uint16)
	store.Insert(&wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 7, NbRegs: 1, DirectPtr: v})
	store.SortAll()
	if err := s.Load(ctx, store); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *v != 99 {
		t.Fatalf("reloaded value = %d, want 99 (SaveOnWrite should have persisted it)", *v)
	}
}

func TestSaveOnWriteRejectsWrongLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	dst := new(uint16)
	w := &wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 1, NbRegs: 1}
	h := SaveOnWrite(ctx, s, dst)
	if ec := h([]uint16{1, 2}, w, nil); ec != common.ExceptionIllegalDataValue {
		t.Fatalf("exception = %v, want ExceptionIllegalDataValue", ec)
	}
}
