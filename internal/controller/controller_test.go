package controller

import (
	"errors"
	"testing"

	"github.com/go-dsu/steam-dsu-bridge/internal/report"
)

func TestMemoryImplementsProducer(t *testing.T) {
	var _ Producer = (*Memory)(nil)
}

func TestMemoryPushDeliversReportAndLastReport(t *testing.T) {
	m := NewMemory(4, report.DualShockMeta{PadID: 1})
	r := report.NormalizedReport{PacketCounter: 7}
	m.Push(r)

	got := <-m.Reports()
	if got.PacketCounter != 7 {
		t.Fatalf("PacketCounter = %d, want 7", got.PacketCounter)
	}
	last := m.LastReport()
	if last == nil || last.PacketCounter != 7 {
		t.Fatalf("LastReport = %+v, want PacketCounter=7", last)
	}
}

func TestMemoryPushError(t *testing.T) {
	m := NewMemory(1, report.DualShockMeta{})
	sentinel := errors.New("boom")
	m.PushError(sentinel)
	if err := <-m.Errors(); !errors.Is(err, sentinel) {
		t.Fatalf("got %v, want %v", err, sentinel)
	}
}

func TestMemoryMeta(t *testing.T) {
	m := NewMemory(1, report.DualShockMeta{PadID: 2})
	if m.Meta().PadID != 2 {
		t.Fatalf("PadID = %d, want 2", m.Meta().PadID)
	}
	m.SetMeta(report.DualShockMeta{PadID: 3})
	if m.Meta().PadID != 3 {
		t.Fatalf("PadID = %d, want 3 after SetMeta", m.Meta().PadID)
	}
}
