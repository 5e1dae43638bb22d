// Package dsuserver owns the UDP socket and ties together the codec,
// registry, slot table, and dispatcher into the Cemuhook DSU server
// lifecycle.
package dsuserver

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/go-dsu/steam-dsu-bridge/internal/controller"
	"github.com/go-dsu/steam-dsu-bridge/internal/dispatcher"
	"github.com/go-dsu/steam-dsu-bridge/internal/dsu"
	"github.com/go-dsu/steam-dsu-bridge/internal/logging"
	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
	"github.com/go-dsu/steam-dsu-bridge/internal/registry"
	"github.com/go-dsu/steam-dsu-bridge/internal/report"
	"github.com/go-dsu/steam-dsu-bridge/internal/slots"
	"github.com/go-dsu/steam-dsu-bridge/internal/transport"
)

const (
	defaultListenAddr    = ":26760" // Cemuhook convention; not fixed by the protocol itself
	defaultClientTimeout = 5 * time.Second
	defaultReadBufSize   = 2048
	outboundTxBufSize    = 256
)

// Server owns the UDP socket and coordinates the registry/slot
// table/dispatcher lifecycle.
type Server struct {
	mu   sync.RWMutex
	addr string

	clientTimeout time.Duration
	tuneSocket    bool
	logger        *slog.Logger

	Registry   *registry.Registry
	Slots      *slots.Table
	Dispatcher *dispatcher.Dispatcher
	serverID   uint32

	conn      *net.UDPConn
	tx        *transport.AsyncTx[dispatcher.Outbound]
	readyOnce sync.Once
	readyCh   chan struct{}
	errCh     chan error
	wg        sync.WaitGroup

	stopCh chan struct{} // recreated on each Start; nil once stopped
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithListenAddr overrides the bind address (default ":26760").
func WithListenAddr(a string) Option { return func(s *Server) { s.addr = a } }

// WithClientTimeout overrides ClientTimeoutLimit (default 5s).
func WithClientTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.clientTimeout = d
		}
	}
}

// WithSocketTuning enables the Linux-only SO_REUSEADDR/SO_RCVBUF tuning
// in internal/sockopt once the socket is bound.
func WithSocketTuning(enable bool) Option { return func(s *Server) { s.tuneSocket = enable } }

// WithLogger overrides the server's logger (default logging.L()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServerID fixes the server ID instead of generating one randomly;
// primarily useful for deterministic tests.
func WithServerID(id uint32) Option { return func(s *Server) { s.serverID = id } }

// NewServer constructs a Server and wires the registry, slot table, and
// dispatcher together. The server ID is generated once here (unless
// WithServerID overrides it) and is stable across Start/Stop cycles
// within this process, so clients that cache it survive a bounce.
func NewServer(opts ...Option) *Server {
	s := &Server{
		addr:          defaultListenAddr,
		clientTimeout: defaultClientTimeout,
		logger:        logging.L(),
		readyCh:       make(chan struct{}),
		errCh:         make(chan error, 8),
	}
	for _, o := range opts {
		o(s)
	}
	if s.serverID == 0 {
		s.serverID = randomServerID()
	}
	s.Registry = registry.New(s.clientTimeout)
	s.Dispatcher = dispatcher.New(s.Registry, nil, s.serverID)
	s.Slots = slots.New(slots.Hooks{
		OnReport: s.onSlotReport,
		OnError:  s.onSlotError,
	})
	s.Dispatcher.Slots = s.Slots
	return s
}

func randomServerID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// onSlotReport fans a controller report out to every interested client.
// If the socket isn't bound yet (Start hasn't run), the report is dropped
// silently: there is nobody to send it to. The actual socket write is
// handed off to the outbound AsyncTx so a slow/blocked send never
// backpressures the controller's own forwarding goroutine.
func (s *Server) onSlotReport(slot int, meta report.DualShockMeta, r report.NormalizedReport) {
	tx := s.currentTx()
	if tx == nil {
		return
	}
	out := s.Dispatcher.HandleReport(meta, r, time.Now())
	s.enqueue(tx, out)
}

func (s *Server) onSlotError(slot int, err error) {
	s.setError(err)
}

func (s *Server) currentConn() *net.UDPConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Server) currentTx() *transport.AsyncTx[dispatcher.Outbound] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx
}

// Addr returns the bound address (only meaningful after Start succeeds).
func (s *Server) Addr() string { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }

// ServerID returns this server's stable process-lifetime ID.
func (s *Server) ServerID() uint32 { return s.serverID }

// Ready returns a channel closed once the socket is bound.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Errors streams non-fatal runtime errors: send failures, short writes,
// malformed inbound datagrams, and upstream controller errors.
func (s *Server) Errors() <-chan error { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	metrics.IncError(mapErrToMetric(err))
	select {
	case s.errCh <- err:
	default:
	}
}

// Start binds the UDP socket and begins the read loop. If a previous
// socket exists, it is stopped first.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		conn := s.conn
		tx := s.tx
		stop := s.stopCh
		s.conn = nil
		s.tx = nil
		s.stopCh = nil
		s.mu.Unlock()
		if stop != nil {
			close(stop)
		}
		_ = conn.Close()
		if tx != nil {
			tx.Close()
		}
		s.wg.Wait()
		s.mu.Lock()
	}
	addr := s.addr
	s.mu.Unlock()

	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		s.setError(wrap)
		return wrap
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		s.setError(wrap)
		return wrap
	}
	if s.tuneSocket {
		tuneConn(conn, s.logger)
	}

	tx := transport.NewAsyncTx(ctx, outboundTxBufSize, func(o dispatcher.Outbound) error {
		return s.writeOne(conn, o)
	}, transport.Hooks[dispatcher.Outbound]{
		OnError: func(err error) { s.setError(err) },
	})

	stopCh := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.tx = tx
	s.stopCh = stopCh
	s.addr = conn.LocalAddr().String()
	s.mu.Unlock()

	metrics.SetReadinessFunc(func() bool { return s.currentConn() != nil })

	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("dsu_listen", "addr", s.Addr(), "server_id", fmt.Sprintf("%08x", s.serverID))

	s.wg.Add(1)
	go s.readLoop(ctx, conn, stopCh)
	return nil
}

func (s *Server) readLoop(ctx context.Context, conn *net.UDPConn, stopCh <-chan struct{}) {
	defer s.wg.Done()
	buf := make([]byte, defaultReadBufSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
			}
			wrap := fmt.Errorf("%w: %v", ErrSocketRead, err)
			s.setError(wrap)
			continue
		}
		s.handleDatagram(raddr, buf[:n])
	}
}

func (s *Server) handleDatagram(raddr *net.UDPAddr, datagram []byte) {
	_, msgType, body, err := dsu.Decode(datagram)
	if err != nil {
		s.setError(err)
		return
	}
	from := registry.Endpoint{IP: raddr.IP.String(), Port: raddr.Port}
	out, err := s.Dispatcher.Handle(from, msgType, body, time.Now())
	if err != nil {
		s.setError(err)
		return
	}
	tx := s.currentTx()
	if tx == nil {
		return
	}
	s.enqueue(tx, out)
}

// enqueue hands each outbound datagram to tx, which serializes the actual
// socket write on its own goroutine. tx is a single FIFO consumer, so
// per-caller submission order is preserved end to end.
func (s *Server) enqueue(tx *transport.AsyncTx[dispatcher.Outbound], out []dispatcher.Outbound) {
	for _, o := range out {
		if err := tx.Send(o); err != nil {
			s.setError(fmt.Errorf("%w: %v", ErrSocketWrite, err))
		}
	}
}

// writeOne performs the actual blocking UDP write for one outbound
// datagram; it runs only on the AsyncTx's own goroutine.
func (s *Server) writeOne(conn *net.UDPConn, o dispatcher.Outbound) error {
	addr := &net.UDPAddr{IP: net.ParseIP(o.To.IP), Port: o.To.Port}
	n, err := conn.WriteToUDP(o.Datagram, addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSocketWrite, err)
	}
	if n != len(o.Datagram) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(o.Datagram))
	}
	metrics.IncSent()
	return nil
}

// AddController installs c in the first empty slot, wiring its report
// stream into the dispatcher's fan-out and its error stream into the
// server's Errors() channel.
func (s *Server) AddController(ctx context.Context, c controller.Producer) (int, bool) {
	return s.Slots.Add(ctx, c)
}

// RemoveController cancels slot i's subscription and empties it; i must
// satisfy 0 <= i < slots.NumSlots, and slot 0 is removable like any other.
func (s *Server) RemoveController(i int) { s.Slots.Remove(i) }

// ClearControllers empties every occupied slot.
func (s *Server) ClearControllers() { s.Slots.RemoveAll() }

// ClearClients flushes the subscription table.
func (s *Server) ClearClients() { s.Registry.Clear() }

// Stop unbinds the socket and waits for the read loop to exit. Idempotent;
// the server may be started again afterwards (the server ID is retained).
func (s *Server) Stop() {
	s.mu.Lock()
	conn := s.conn
	tx := s.tx
	stop := s.stopCh
	s.conn = nil
	s.tx = nil
	s.stopCh = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	if conn != nil {
		_ = conn.Close()
	}
	if tx != nil {
		tx.Close()
	}
	s.wg.Wait()
	s.logger.Info("dsu_stopped")
}
