// Package dispatcher classifies validated inbound DSU datagrams by
// message type, mutates the client registry accordingly, and builds the
// outbound replies/fan-out datagrams.
package dispatcher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/go-dsu/steam-dsu-bridge/internal/dsu"
	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
	"github.com/go-dsu/steam-dsu-bridge/internal/registry"
	"github.com/go-dsu/steam-dsu-bridge/internal/report"
	"github.com/go-dsu/steam-dsu-bridge/internal/serializer"
	"github.com/go-dsu/steam-dsu-bridge/internal/slots"
)

// Sentinel errors for malformed request bodies; all of them mean "drop the
// request". They are never sent back to the client.
var (
	ErrBadListPortsCount = errors.New("dispatcher: numOfPadRequests out of range")
	ErrBadPadIndex       = errors.New("dispatcher: pad index out of range")
	ErrShortBody         = errors.New("dispatcher: request body shorter than message requires")
)

// Outbound pairs a destination endpoint with the raw datagram to send there.
type Outbound struct {
	To       registry.Endpoint
	Datagram []byte
}

// Dispatcher wires the registry and slot table into message handling.
type Dispatcher struct {
	Registry *registry.Registry
	Slots    *slots.Table
	ServerID uint32
}

// New constructs a Dispatcher over an existing registry and slot table.
func New(reg *registry.Registry, tbl *slots.Table, serverID uint32) *Dispatcher {
	return &Dispatcher{Registry: reg, Slots: tbl, ServerID: serverID}
}

// Handle classifies one validated inbound datagram and returns the
// replies to send directly back to from (VersionReq/ListPorts), mutating
// the registry as a side effect for PadDataReq. A non-nil error means the
// datagram was malformed past the codec's own checks and must be dropped
// without a reply.
func (d *Dispatcher) Handle(from registry.Endpoint, msgType uint32, body []byte, now time.Time) ([]Outbound, error) {
	switch msgType {
	case dsu.MsgVersionReq:
		return d.handleVersionReq(from), nil
	case dsu.MsgListPorts:
		return d.handleListPorts(from, body)
	case dsu.MsgPadDataReq:
		return nil, d.handlePadDataReq(from, body, now)
	default:
		return nil, nil // unrecognized message types are silently ignored
	}
}

func (d *Dispatcher) handleVersionReq(from registry.Endpoint) []Outbound {
	respBody := make([]byte, 8)
	binary.LittleEndian.PutUint32(respBody[0:4], dsu.MsgVersionReq)
	binary.LittleEndian.PutUint32(respBody[4:8], uint32(dsu.MaxProtocolVer))
	dg := dsu.EncodeEnvelope(d.ServerID, dsu.MaxProtocolVer, dsu.MsgVersionReq, respBody)
	return []Outbound{{To: from, Datagram: dg}}
}

func (d *Dispatcher) handleListPorts(from registry.Endpoint, body []byte) ([]Outbound, error) {
	if len(body) < 4 {
		metrics.IncMalformed()
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortBody, len(body))
	}
	n := int32(binary.LittleEndian.Uint32(body[0:4]))
	if n < 0 || n > int32(slots.NumSlots) {
		metrics.IncMalformed()
		return nil, fmt.Errorf("%w: %d", ErrBadListPortsCount, n)
	}
	if len(body) < 4+int(n) {
		metrics.IncMalformed()
		return nil, fmt.Errorf("%w: declared %d pad indices, have %d bytes", ErrShortBody, n, len(body)-4)
	}

	var out []Outbound
	for i := 0; i < int(n); i++ {
		padIdx := body[4+i]
		if padIdx >= slots.NumSlots {
			metrics.IncMalformed()
			return nil, fmt.Errorf("%w: %d", ErrBadPadIndex, padIdx)
		}
		producer := d.Slots.At(int(padIdx))
		if producer == nil {
			continue
		}
		meta := producer.Meta()
		if meta == nil {
			continue
		}
		out = append(out, Outbound{To: from, Datagram: d.encodePortInfo(*meta)})
	}
	return out, nil
}

// encodePortInfo builds the 16-byte-body DSUS_PortInfo reply: 12 bytes of
// identifying fields followed by 4 trailing zero bytes.
func (d *Dispatcher) encodePortInfo(meta report.DualShockMeta) []byte {
	body := make([]byte, 16)
	body[0] = meta.PadID
	body[1] = byte(meta.State)
	body[2] = byte(meta.Model)
	body[3] = byte(meta.ConnectionType)
	copy(body[4:10], meta.MAC[:])
	body[10] = byte(meta.BatteryStatus)
	if meta.IsActive {
		body[11] = 1
	}
	return dsu.EncodeEnvelope(d.ServerID, dsu.OutProtocolVersion, dsu.MsgListPorts, body)
}

// handlePadDataReq parses a registration request and stamps the matching
// subscription timestamp(s) to now. registrationFlags bit 0 selects
// per-pad-id, bit 1 selects per-MAC, and no bits set means all-pads.
func (d *Dispatcher) handlePadDataReq(from registry.Endpoint, body []byte, now time.Time) error {
	if len(body) < 8 {
		metrics.IncMalformed()
		return fmt.Errorf("%w: got %d bytes", ErrShortBody, len(body))
	}
	flags := body[0]
	idToRegister := body[1]
	var mac report.MACAddress
	copy(mac[:], body[2:8])

	const (
		flagPerPad = 1 << 0
		flagPerMAC = 1 << 1
	)

	if flags == 0 {
		d.Registry.RegisterAllPads(from, now)
		return nil
	}
	// The two flag bits are independent dimensions: a request may carry
	// both, and each stamps its own timestamp.
	if flags&flagPerPad != 0 {
		if idToRegister >= slots.NumSlots {
			metrics.IncMalformed()
			return fmt.Errorf("%w: %d", ErrBadPadIndex, idToRegister)
		}
		d.Registry.RegisterByPadID(from, idToRegister, now)
	}
	if flags&flagPerMAC != 0 {
		d.Registry.RegisterByMAC(from, mac, now)
	}
	return nil
}

// HandleReport fans a controller report out to every interested client.
// The report is serialized once and the same datagram is addressed to
// each destination.
func (d *Dispatcher) HandleReport(meta report.DualShockMeta, r report.NormalizedReport, now time.Time) []Outbound {
	clients := d.Registry.ClientsFor(meta, now)
	metrics.SetFanoutDepth(len(clients))
	if len(clients) == 0 {
		return nil
	}
	dg := serializer.Encode(d.ServerID, meta, r)
	out := make([]Outbound, 0, len(clients))
	for _, ep := range clients {
		out = append(out, Outbound{To: ep, Datagram: dg})
	}
	metrics.AddFannedOut(len(out))
	return out
}
