// Package dsu implements the Cemuhook DSU (DualShock UDP) wire framing:
// the 16-byte header, its CRC32, and the magic/version checks that decide
// whether an inbound datagram is well-formed.
package dsu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
)

// Magic values identify datagram direction.
var (
	MagicServer = [4]byte{'D', 'S', 'U', 'S'} // server -> client
	MagicClient = [4]byte{'D', 'S', 'U', 'C'} // client -> server
)

// Message type codes, copied from the reference Cemuhook DSU protocol
// definition; they must match the external consumer exactly.
const (
	MsgVersionReq uint32 = 0x100000 // DSUC_VersionReq / DSUS_VersionRsp
	MsgListPorts  uint32 = 0x100001 // DSUC_ListPorts / DSUS_PortInfo
	MsgPadDataReq uint32 = 0x100002 // DSUC_PadDataReq / DSUS_PadDataRsp
)

// MaxProtocolVer is the highest protocol version this server understands.
// OutProtocolVersion is the fixed version stamped on every outbound
// datagram except the VERSION response body.
const (
	MaxProtocolVer     uint16 = 1001
	OutProtocolVersion uint16 = 1001
)

// HeaderLen is the size of the fixed prefix on every datagram.
const HeaderLen = 16

// Errors returned by Decode; all of them mean "drop the datagram, emit on
// the error stream, never reply".
var (
	ErrShortBuffer   = errors.New("dsu: buffer shorter than header")
	ErrBadMagic      = errors.New("dsu: bad magic")
	ErrVersionTooNew = errors.New("dsu: protocol version exceeds MaxProtocolVer")
	ErrBadLength     = errors.New("dsu: declared length does not match buffer")
	ErrBadCRC        = errors.New("dsu: CRC32 mismatch")
)

// Header is the decoded 16-byte prefix common to every DSU datagram.
type Header struct {
	Magic    [4]byte
	Version  uint16
	Length   uint16 // payload length, total-16
	CRC32    uint32
	ServerID uint32
}

// ComputeCRC returns the IEEE CRC32 of buf with bytes [8:12] zeroed, the
// checked region on the wire.
func ComputeCRC(buf []byte) uint32 {
	tmp := make([]byte, len(buf))
	copy(tmp, buf)
	for i := 8; i < 12 && i < len(tmp); i++ {
		tmp[i] = 0
	}
	return crc32.ChecksumIEEE(tmp)
}

// EncodeHeader writes the 16-byte header (with CRC left zero; callers must
// call FinalizeCRC after writing the full datagram body).
func EncodeHeader(buf []byte, magic [4]byte, version uint16, payloadLen uint16, serverID uint32) {
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], version)
	binary.LittleEndian.PutUint16(buf[6:8], payloadLen)
	binary.LittleEndian.PutUint32(buf[8:12], 0)
	binary.LittleEndian.PutUint32(buf[12:16], serverID)
}

// FinalizeCRC computes the CRC32 over the full datagram (with bytes 8..11
// zeroed) and writes it little-endian into bytes 8..11.
func FinalizeCRC(buf []byte) {
	crc := ComputeCRC(buf)
	binary.LittleEndian.PutUint32(buf[8:12], crc)
}

// Decode validates and parses the header of an inbound datagram. It
// returns (header, message type, body slice, error). A non-nil error
// means the datagram must be dropped without a reply.
func Decode(buf []byte) (Header, uint32, []byte, error) {
	var h Header
	if len(buf) < HeaderLen+4 {
		metrics.IncMalformed()
		return h, 0, nil, fmt.Errorf("%w: got %d bytes", ErrShortBuffer, len(buf))
	}
	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != MagicClient {
		metrics.IncMalformed()
		return h, 0, nil, fmt.Errorf("%w: %q", ErrBadMagic, magic)
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version > MaxProtocolVer {
		metrics.IncMalformed()
		return h, 0, nil, fmt.Errorf("%w: %d > %d", ErrVersionTooNew, version, MaxProtocolVer)
	}
	length := binary.LittleEndian.Uint16(buf[6:8])
	if int(length) != len(buf)-HeaderLen {
		metrics.IncMalformed()
		return h, 0, nil, fmt.Errorf("%w: declared %d, have %d", ErrBadLength, length, len(buf)-HeaderLen)
	}
	wireCRC := binary.LittleEndian.Uint32(buf[8:12])
	gotCRC := ComputeCRC(buf)
	if gotCRC != wireCRC {
		metrics.IncMalformed()
		return h, 0, nil, fmt.Errorf("%w: want %08x got %08x", ErrBadCRC, wireCRC, gotCRC)
	}
	serverID := binary.LittleEndian.Uint32(buf[12:16])
	msgType := binary.LittleEndian.Uint32(buf[16:20])

	h = Header{Magic: magic, Version: version, Length: length, CRC32: wireCRC, ServerID: serverID}
	metrics.IncDecoded()
	return h, msgType, buf[20:], nil
}

// EncodeEnvelope builds a complete outbound datagram: 16-byte header + the
// 4-byte message type + body, with CRC32 finalized over the whole buffer.
func EncodeEnvelope(serverID uint32, version uint16, msgType uint32, body []byte) []byte {
	total := HeaderLen + 4 + len(body)
	buf := make([]byte, total)
	EncodeHeader(buf, MagicServer, version, uint16(total-HeaderLen), serverID)
	binary.LittleEndian.PutUint32(buf[16:20], msgType)
	copy(buf[20:], body)
	FinalizeCRC(buf)
	return buf
}
