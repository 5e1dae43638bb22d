// Package serializer turns a normalized controller report plus its
// DualShock metadata into the fixed-layout pad-data datagram the
// Cemuhook DSU consumer expects.
package serializer

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/go-dsu/steam-dsu-bridge/internal/dsu"
	"github.com/go-dsu/steam-dsu-bridge/internal/report"
)

var errShortPadData = errors.New("serializer: pad-data body has wrong length")

// BodyLen is the length of the DSUS_PadDataRsp body, starting right after
// the 16-byte header (message type through the final gyro axis). The full
// datagram is always exactly 100 bytes; consumers reject anything else.
const BodyLen = 84 // 100 total - 16 header

// Encode produces the complete 100-byte DSUS_PadDataRsp datagram for r/meta.
func Encode(serverID uint32, meta report.DualShockMeta, r report.NormalizedReport) []byte {
	total := dsu.HeaderLen + BodyLen
	buf := make([]byte, total)
	dsu.EncodeHeader(buf, dsu.MagicServer, dsu.OutProtocolVersion, uint16(BodyLen), serverID)
	binary.LittleEndian.PutUint32(buf[16:20], dsu.MsgPadDataReq)

	buf[20] = meta.PadID
	buf[21] = byte(meta.State)
	buf[22] = byte(meta.Model)
	buf[23] = byte(meta.ConnectionType)
	copy(buf[24:30], meta.MAC[:])
	buf[30] = byte(meta.BatteryStatus)
	buf[31] = boolByte(meta.IsActive)

	binary.LittleEndian.PutUint32(buf[32:36], r.PacketCounter)

	buf[36] = dpadBitmap(r)
	buf[37] = faceBitmap(r.Button)
	buf[38] = boolByte(r.Button.PS)
	buf[39] = boolByte(r.Button.Touch)

	buf[40] = r.Position.Left.X
	buf[41] = r.Position.Left.Y
	buf[42] = r.Position.Right.X
	buf[43] = r.Position.Right.Y

	buf[44] = analogByte(r.DPad.Left)
	buf[45] = analogByte(r.DPad.Down)
	buf[46] = analogByte(r.DPad.Right)
	buf[47] = analogByte(r.DPad.Up)

	buf[48] = analogByte(r.Button.Square)
	buf[49] = analogByte(r.Button.Cross)
	buf[50] = analogByte(r.Button.Circle)
	buf[51] = analogByte(r.Button.Triangle)

	buf[52] = analogByte(r.Button.R1)
	buf[53] = analogByte(r.Button.L1)

	buf[54] = r.Trigger.R2
	buf[55] = r.Trigger.L2

	buf[56] = boolByte(r.TrackPad.First.IsActive)
	buf[57] = r.TrackPad.First.ID
	binary.LittleEndian.PutUint16(buf[58:60], r.TrackPad.First.X)
	binary.LittleEndian.PutUint16(buf[60:62], r.TrackPad.First.Y)

	buf[62] = boolByte(r.TrackPad.Second.IsActive)
	buf[63] = r.TrackPad.Second.ID
	binary.LittleEndian.PutUint16(buf[64:66], r.TrackPad.Second.X)
	binary.LittleEndian.PutUint16(buf[66:68], r.TrackPad.Second.Y)

	low := uint32(r.Motion.TimestampMicros)
	high := uint32(r.Motion.TimestampMicros >> 32)
	binary.LittleEndian.PutUint32(buf[68:72], low)
	binary.LittleEndian.PutUint32(buf[72:76], high)

	binary.LittleEndian.PutUint32(buf[76:80], math.Float32bits(r.Motion.AccelX))
	binary.LittleEndian.PutUint32(buf[80:84], math.Float32bits(r.Motion.AccelY))
	binary.LittleEndian.PutUint32(buf[84:88], math.Float32bits(r.Motion.AccelZ))
	binary.LittleEndian.PutUint32(buf[88:92], math.Float32bits(r.Motion.GyroX))
	binary.LittleEndian.PutUint32(buf[92:96], math.Float32bits(r.Motion.GyroY))
	binary.LittleEndian.PutUint32(buf[96:100], math.Float32bits(r.Motion.GyroZ))

	dsu.FinalizeCRC(buf)
	return buf
}

// Decode parses a complete 100-byte DSUS_PadDataRsp datagram (16-byte
// header included) back into a report and metadata pair, the inverse of
// Encode. Tests use it to assert the encode/decode round-trip; it is
// exported for consumer-side fixtures.
func Decode(buf []byte) (report.DualShockMeta, report.NormalizedReport, error) {
	var meta report.DualShockMeta
	var r report.NormalizedReport
	if len(buf) != dsu.HeaderLen+BodyLen {
		return meta, r, errShortPadData
	}

	meta.PadID = buf[20]
	meta.State = report.ConnectionState(buf[21])
	meta.Model = report.Model(buf[22])
	meta.ConnectionType = report.ConnectionType(buf[23])
	copy(meta.MAC[:], buf[24:30])
	meta.BatteryStatus = report.BatteryStatus(buf[30])
	meta.IsActive = buf[31] != 0

	r.PacketCounter = binary.LittleEndian.Uint32(buf[32:36])

	bitmapA := buf[36]
	r.DPad.Left = bitmapA&(1<<7) != 0
	r.DPad.Down = bitmapA&(1<<6) != 0
	r.DPad.Right = bitmapA&(1<<5) != 0
	r.DPad.Up = bitmapA&(1<<4) != 0
	r.Button.Options = bitmapA&(1<<3) != 0
	r.Button.R3 = bitmapA&(1<<2) != 0
	r.Button.L3 = bitmapA&(1<<1) != 0
	r.Button.Share = bitmapA&(1<<0) != 0

	bitmapB := buf[37]
	r.Button.Square = bitmapB&(1<<7) != 0
	r.Button.Cross = bitmapB&(1<<6) != 0
	r.Button.Circle = bitmapB&(1<<5) != 0
	r.Button.Triangle = bitmapB&(1<<4) != 0
	r.Button.R1 = bitmapB&(1<<3) != 0
	r.Button.L1 = bitmapB&(1<<2) != 0
	r.Button.R2 = bitmapB&(1<<1) != 0
	r.Button.L2 = bitmapB&(1<<0) != 0

	r.Button.PS = buf[38] != 0
	r.Button.Touch = buf[39] != 0

	r.Position.Left.X = buf[40]
	r.Position.Left.Y = buf[41]
	r.Position.Right.X = buf[42]
	r.Position.Right.Y = buf[43]

	r.Trigger.R2 = buf[54]
	r.Trigger.L2 = buf[55]

	r.TrackPad.First.IsActive = buf[56] != 0
	r.TrackPad.First.ID = buf[57]
	r.TrackPad.First.X = binary.LittleEndian.Uint16(buf[58:60])
	r.TrackPad.First.Y = binary.LittleEndian.Uint16(buf[60:62])

	r.TrackPad.Second.IsActive = buf[62] != 0
	r.TrackPad.Second.ID = buf[63]
	r.TrackPad.Second.X = binary.LittleEndian.Uint16(buf[64:66])
	r.TrackPad.Second.Y = binary.LittleEndian.Uint16(buf[66:68])

	low := binary.LittleEndian.Uint32(buf[68:72])
	high := binary.LittleEndian.Uint32(buf[72:76])
	r.Motion.TimestampMicros = uint64(high)<<32 | uint64(low)

	r.Motion.AccelX = math.Float32frombits(binary.LittleEndian.Uint32(buf[76:80]))
	r.Motion.AccelY = math.Float32frombits(binary.LittleEndian.Uint32(buf[80:84]))
	r.Motion.AccelZ = math.Float32frombits(binary.LittleEndian.Uint32(buf[84:88]))
	r.Motion.GyroX = math.Float32frombits(binary.LittleEndian.Uint32(buf[88:92]))
	r.Motion.GyroY = math.Float32frombits(binary.LittleEndian.Uint32(buf[92:96]))
	r.Motion.GyroZ = math.Float32frombits(binary.LittleEndian.Uint32(buf[96:100]))

	return meta, r, nil
}

func boolByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}

func analogByte(pressed bool) byte {
	if pressed {
		return 0xFF
	}
	return 0x00
}

// dpadBitmap packs bit7 LEFT, bit6 DOWN, bit5 RIGHT, bit4 UP, bit3 options,
// bit2 R3, bit1 L3, bit0 share.
func dpadBitmap(r report.NormalizedReport) byte {
	var b byte
	if r.DPad.Left {
		b |= 1 << 7
	}
	if r.DPad.Down {
		b |= 1 << 6
	}
	if r.DPad.Right {
		b |= 1 << 5
	}
	if r.DPad.Up {
		b |= 1 << 4
	}
	if r.Button.Options {
		b |= 1 << 3
	}
	if r.Button.R3 {
		b |= 1 << 2
	}
	if r.Button.L3 {
		b |= 1 << 1
	}
	if r.Button.Share {
		b |= 1 << 0
	}
	return b
}

// faceBitmap packs bit7 SQUARE, bit6 CROSS, bit5 CIRCLE, bit4 TRIANGLE,
// bit3 R1, bit2 L1, bit1 R2, bit0 L2.
func faceBitmap(b report.Buttons) byte {
	var v byte
	if b.Square {
		v |= 1 << 7
	}
	if b.Cross {
		v |= 1 << 6
	}
	if b.Circle {
		v |= 1 << 5
	}
	if b.Triangle {
		v |= 1 << 4
	}
	if b.R1 {
		v |= 1 << 3
	}
	if b.L1 {
		v |= 1 << 2
	}
	if b.R2 {
		v |= 1 << 1
	}
	if b.L2 {
		v |= 1 << 0
	}
	return v
}
