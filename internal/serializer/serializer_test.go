package serializer

import (
	"testing"

	"github.com/go-dsu/steam-dsu-bridge/internal/dsu"
	"github.com/go-dsu/steam-dsu-bridge/internal/report"
)

func sampleMeta() report.DualShockMeta {
	return report.DualShockMeta{
		PadID:          2,
		State:          report.StateConnected,
		Model:          report.ModelFull,
		ConnectionType: report.ConnectionBluetooth,
		MAC:            report.MACAddress{0xAA, 0xBB, 0xCC, 0x11, 0x22, 0x33},
		BatteryStatus:  5,
		IsActive:       true,
	}
}

func sampleReport() report.NormalizedReport {
	r := report.NormalizedReport{PacketCounter: 0xDEADBEEF}
	r.Button.Cross = true
	r.Button.Triangle = true
	r.Button.L2 = true
	r.Button.PS = true
	r.Button.Touch = true
	r.DPad.Up = true
	r.DPad.Right = true
	r.Position.Left = report.Stick{X: 10, Y: 20}
	r.Position.Right = report.Stick{X: 200, Y: 210}
	r.Trigger.L2 = 128
	r.Trigger.R2 = 255
	r.TrackPad.First = report.TouchPoint{IsActive: true, ID: 1, X: 555, Y: 666}
	r.TrackPad.Second = report.TouchPoint{IsActive: false, ID: 0, X: 0, Y: 0}
	r.Motion.TimestampMicros = 0x0102030405060708
	r.Motion.AccelX = 0.5
	r.Motion.AccelY = -1.25
	r.Motion.AccelZ = 9.8
	r.Motion.GyroX = -0.1
	r.Motion.GyroY = 0.2
	r.Motion.GyroZ = 3.0
	return r
}

func TestEncodeTotalLength(t *testing.T) {
	buf := Encode(1, sampleMeta(), sampleReport())
	if len(buf) != 100 {
		t.Fatalf("encoded datagram length = %d, want 100", len(buf))
	}
	if dsu.HeaderLen+BodyLen != 100 {
		t.Fatalf("HeaderLen+BodyLen = %d, want 100", dsu.HeaderLen+BodyLen)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	wantMeta := sampleMeta()
	wantReport := sampleReport()
	buf := Encode(0xCAFEBABE, wantMeta, wantReport)

	gotMeta, gotReport, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotMeta != wantMeta {
		t.Fatalf("meta round-trip mismatch:\n got  %+v\n want %+v", gotMeta, wantMeta)
	}
	if gotReport != wantReport {
		t.Fatalf("report round-trip mismatch:\n got  %+v\n want %+v", gotReport, wantReport)
	}
}

func TestDecode_WrongLength(t *testing.T) {
	_, _, err := Decode(make([]byte, BodyLen-1))
	if err != errShortPadData {
		t.Fatalf("expected errShortPadData, got %v", err)
	}
}

func TestEncodeHeaderPassesCRCCheck(t *testing.T) {
	buf := Encode(77, sampleMeta(), sampleReport())
	h, msgType, body, err := dsu.Decode(swapToClientMagic(buf))
	if err != nil {
		t.Fatalf("dsu.Decode rejected our own datagram: %v", err)
	}
	if msgType != dsu.MsgPadDataReq {
		t.Fatalf("msgType = %x, want %x", msgType, dsu.MsgPadDataReq)
	}
	if len(body) != BodyLen {
		t.Fatalf("body length = %d, want %d", len(body), BodyLen)
	}
	_ = h
}

// swapToClientMagic rewrites a server-originated datagram's magic to the
// client value and refreshes its CRC, purely so dsu.Decode (which only
// accepts client-directed frames) can validate our header/CRC plumbing.
func swapToClientMagic(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	copy(out[0:4], dsu.MagicClient[:])
	dsu.FinalizeCRC(out)
	return out
}

func TestDPadBitmapBits(t *testing.T) {
	r := report.NormalizedReport{}
	r.DPad.Left = true
	r.Button.Share = true
	got := dpadBitmap(r)
	want := byte(1<<7 | 1<<0)
	if got != want {
		t.Fatalf("dpadBitmap = %08b, want %08b", got, want)
	}
}

func TestFaceBitmapBits(t *testing.T) {
	b := report.Buttons{Square: true, R2: true}
	got := faceBitmap(b)
	want := byte(1<<7 | 1<<1)
	if got != want {
		t.Fatalf("faceBitmap = %08b, want %08b", got, want)
	}
}
