package wordstore

import (
	"errors"
	"testing"

	"github.com/kestrel-automation/modbus/common"
)

func directWord(t RegType, addr common.Address) (*Word, *uint16) {
	v := new(uint16)
	return &Word{RegType: t, StartAddr: addr, NbRegs: 1, DirectPtr: v}, v
}

func TestInsertBeforeSortAllSkipsOverlapCheck(t *testing.T) {
	s := New()
	w1, _ := directWord(HoldingRegister, 100)
	w2, _ := directWord(HoldingRegister, 100) // deliberately overlapping
	if err := s.Insert(w1); err != nil {
		t.Fatalf("Insert w1: %v", err)
	}
	if err := s.Insert(w2); err != nil {
		t.Fatalf("Insert w2 before SortAll should not overlap-check: %v", err)
	}
	if err := s.SortAll(); !errors.Is(err, ErrOverlap) {
		t.Fatalf("SortAll should catch the deferred overlap, got %v", err)
	}
}

func TestInsertAfterSortAllChecksOverlap(t *testing.T) {
	s := New()
	base, _ := directWord(HoldingRegister, 100)
	if err := s.Insert(base); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SortAll(); err != nil {
		t.Fatalf("SortAll: %v", err)
	}
	overlapping, _ := directWord(HoldingRegister, 100)
	if err := s.Insert(overlapping); !errors.Is(err, ErrOverlap) {
		t.Fatalf("err = %v, want ErrOverlap", err)
	}
	disjoint, _ := directWord(HoldingRegister, 200)
	if err := s.Insert(disjoint); err != nil {
		t.Fatalf("Insert disjoint after SortAll: %v", err)
	}
}

// TestOverlapRejectionScenario is scenario S6.
func TestOverlapRejectionScenario(t *testing.T) {
	s := New(WithMaxWordSize(8))
	first := &Word{RegType: HoldingRegister, StartAddr: 100, NbRegs: 4, ReadHandler: nopRead}
	if err := s.Insert(first); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SortAll(); err != nil {
		t.Fatalf("SortAll: %v", err)
	}
	second := &Word{RegType: HoldingRegister, StartAddr: 103, NbRegs: 2, ReadHandler: nopRead}
	if err := s.Insert(second); !errors.Is(err, ErrOverlap) {
		t.Fatalf("err = %v, want ErrOverlap", err)
	}
}

func nopRead(w *Word, out []uint16, ctx any) common.ExceptionCode { return common.ExceptionNone }

func TestFindExactAndContaining(t *testing.T) {
	s := New()
	w1, _ := directWord(HoldingRegister, 10)
	w2, _ := directWord(HoldingRegister, 20)
	s.Insert(w1)
	s.Insert(w2)
	if err := s.SortAll(); err != nil {
		t.Fatalf("SortAll: %v", err)
	}

	if got, ok := s.FindExact(HoldingRegister, 20); !ok || got != w2 {
		t.Fatalf("FindExact(20) = %v, %v", got, ok)
	}
	if _, ok := s.FindExact(HoldingRegister, 21); ok {
		t.Fatal("FindExact(21) should miss")
	}
	if got, ok := s.FindContaining(HoldingRegister, 10); !ok || got != w1 {
		t.Fatalf("FindContaining(10) = %v, %v", got, ok)
	}
	if _, ok := s.FindContaining(HoldingRegister, 15); ok {
		t.Fatal("FindContaining(15) should miss (gap)")
	}
}

func TestFindNext(t *testing.T) {
	s := New()
	w1, _ := directWord(HoldingRegister, 10)
	w2, _ := directWord(HoldingRegister, 50)
	s.Insert(w1)
	s.Insert(w2)
	if err := s.SortAll(); err != nil {
		t.Fatalf("SortAll: %v", err)
	}
	got, ok := s.FindNext(HoldingRegister, 11)
	if !ok || got != w2 {
		t.Fatalf("FindNext(11) = %v, %v, want w2", got, ok)
	}
	if _, ok := s.FindNext(HoldingRegister, 51); ok {
		t.Fatal("FindNext(51) should miss: nothing beyond")
	}
}

func TestSizeTotalSizeCapacity(t *testing.T) {
	s := New()
	w1 := &Word{RegType: HoldingRegister, StartAddr: 0, NbRegs: 4, ReadHandler: nopRead}
	w2 := &Word{RegType: Coil, StartAddr: 0, NbRegs: 8, ReadHandler: nopRead}
	s.Insert(w1)
	s.Insert(w2)
	if s.Size(HoldingRegister) != 1 {
		t.Fatalf("Size(HoldingRegister) = %d, want 1", s.Size(HoldingRegister))
	}
	if s.TotalSize() != 2 {
		t.Fatalf("TotalSize() = %d, want 2", s.TotalSize())
	}
	if s.Capacity() != 12 {
		t.Fatalf("Capacity() = %d, want 12", s.Capacity())
	}
}

func TestValidateRejectsOversizedWord(t *testing.T) {
	s := New(WithMaxWordSize(4))
	w := &Word{RegType: HoldingRegister, StartAddr: 0, NbRegs: 5, ReadHandler: nopRead}
	if err := s.Insert(w); !errors.Is(err, ErrInvalidWord) {
		t.Fatalf("err = %v, want ErrInvalidWord", err)
	}
}

func TestValidateRejectsReadOnlyWithWriteHandler(t *testing.T) {
	s := New()
	w := &Word{
		RegType:      InputRegister,
		StartAddr:    0,
		NbRegs:       1,
		ReadHandler:  nopRead,
		WriteHandler: func(values []uint16, w *Word, ctx any) common.ExceptionCode { return common.ExceptionNone },
	}
	if err := s.Insert(w); !errors.Is(err, ErrInvalidWord) {
		t.Fatalf("err = %v, want ErrInvalidWord", err)
	}
}

func TestValidateRejectsAddressRangeOverflow(t *testing.T) {
	s := New()
	w := &Word{RegType: HoldingRegister, StartAddr: 0xFFFE, NbRegs: 4, ReadHandler: nopRead}
	if err := s.Insert(w); !errors.Is(err, ErrAddressRange) {
		t.Fatalf("err = %v, want ErrAddressRange", err)
	}
}

func TestWordAccess(t *testing.T) {
	v := new(uint16)
	w := &Word{RegType: HoldingRegister, StartAddr: 5, NbRegs: 1, DirectPtr: v}
	if !w.HasReadAccess() || !w.HasWriteAccess() {
		t.Fatal("direct-pointer single-register Word should have read and write access")
	}
	if !w.Covers(5) || w.Covers(6) {
		t.Fatalf("Covers: got Covers(5)=%v Covers(6)=%v", w.Covers(5), w.Covers(6))
	}

	ro := &Word{RegType: InputRegister, StartAddr: 0, NbRegs: 1, ReadHandler: nopRead}
	if ro.HasWriteAccess() {
		t.Fatal("InputRegister Word must never have write access")
	}
}
