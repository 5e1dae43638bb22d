package serialreplay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-dsu/steam-dsu-bridge/internal/controller"
)

type fakePort struct {
	r      *strings.Reader
	closed bool
}

func newFakePort(data string) *fakePort { return &fakePort{r: strings.NewReader(data)} }

func (f *fakePort) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fakePort) Close() error               { f.closed = true; return nil }

func TestProducerImplementsControllerInterface(t *testing.T) {
	var _ controller.Producer = (*Producer)(nil)
}

func TestProducerReplaysReportsInOrder(t *testing.T) {
	data := `{"meta":{"padId":1,"state":2},"report":{"packetCounter":1}}` + "\n" +
		`{"meta":{"padId":1,"state":2},"report":{"packetCounter":2}}` + "\n"
	port := newFakePort(data)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(ctx, port, 4)

	first := <-p.Reports()
	if first.PacketCounter != 1 {
		t.Fatalf("PacketCounter = %d, want 1", first.PacketCounter)
	}
	second := <-p.Reports()
	if second.PacketCounter != 2 {
		t.Fatalf("PacketCounter = %d, want 2", second.PacketCounter)
	}
}

func TestProducerTracksMetaAndLastReport(t *testing.T) {
	data := `{"meta":{"padId":3},"report":{"packetCounter":7}}` + "\n"
	port := newFakePort(data)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(ctx, port, 1)

	<-p.Reports()
	deadline := time.Now().Add(time.Second)
	for p.Meta() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if meta := p.Meta(); meta == nil || meta.PadID != 3 {
		t.Fatalf("Meta() = %+v, want PadID=3", meta)
	}
	if last := p.LastReport(); last == nil || last.PacketCounter != 7 {
		t.Fatalf("LastReport() = %+v, want PacketCounter=7", last)
	}
}

func TestProducerSkipsMalformedLineAndReportsError(t *testing.T) {
	data := "not json\n" + `{"meta":{"padId":0},"report":{"packetCounter":5}}` + "\n"
	port := newFakePort(data)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(ctx, port, 4)

	select {
	case err := <-p.Errors():
		if err == nil {
			t.Fatal("expected non-nil decode error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decode error")
	}
	select {
	case r := <-p.Reports():
		if r.PacketCounter != 5 {
			t.Fatalf("PacketCounter = %d, want 5", r.PacketCounter)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for valid report after malformed line")
	}
}

func TestProducerClosesReportsChannelOnEOF(t *testing.T) {
	port := newFakePort(`{"meta":{},"report":{}}` + "\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(ctx, port, 1)

	<-p.Reports()
	_, ok := <-p.Reports()
	if ok {
		t.Fatal("expected reports channel to be closed after EOF")
	}
}
