// Package registry tracks which UDP clients are subscribed to which pad
// streams and for how long their subscription remains valid.
package registry

import (
	"sync"
	"time"

	"github.com/go-dsu/steam-dsu-bridge/internal/logging"
	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
	"github.com/go-dsu/steam-dsu-bridge/internal/report"
)

// Endpoint is a value-keyed UDP client address: two endpoints compare
// equal iff both fields match exactly, never by pointer identity, so
// distinct datagrams from the same peer dedupe to one subscription.
type Endpoint struct {
	IP   string
	Port int
}

// Subscription holds the per-dimension timestamps that determine whether
// a client remains interested in a given pad's reports.
type Subscription struct {
	TimeAllPads time.Time
	TimePerPad  [4]time.Time
	TimePerMAC  map[report.MACAddress]time.Time
}

// Registry maps Endpoint -> Subscription, guarded by a single RWMutex.
type Registry struct {
	mu      sync.RWMutex
	clients map[Endpoint]*Subscription
	timeout time.Duration
}

// New creates an empty Registry. A subscription is evicted once none of
// its timestamps are within timeout of the "now" passed to ClientsFor.
func New(timeout time.Duration) *Registry {
	return &Registry{clients: make(map[Endpoint]*Subscription), timeout: timeout}
}

func (r *Registry) subscription(ep Endpoint) *Subscription {
	sub, ok := r.clients[ep]
	if !ok {
		sub = &Subscription{TimePerMAC: make(map[report.MACAddress]time.Time)}
		r.clients[ep] = sub
	}
	return sub
}

// RegisterAllPads stamps ep's all-pads timestamp to now, creating the
// subscription if absent.
func (r *Registry) RegisterAllPads(ep Endpoint, now time.Time) {
	r.mu.Lock()
	prev := len(r.clients)
	r.subscription(ep).TimeAllPads = now
	cur := len(r.clients)
	r.mu.Unlock()
	r.logFirstClient(prev, cur)
	metrics.SetRegistryClients(cur)
}

// RegisterByPadID stamps ep's per-pad timestamp for padID, creating the
// subscription if absent. padID must be in 0..3; out-of-range values are
// ignored (the dispatcher validates this boundary before calling in).
func (r *Registry) RegisterByPadID(ep Endpoint, padID uint8, now time.Time) {
	if padID > 3 {
		return
	}
	r.mu.Lock()
	prev := len(r.clients)
	r.subscription(ep).TimePerPad[padID] = now
	cur := len(r.clients)
	r.mu.Unlock()
	r.logFirstClient(prev, cur)
	metrics.SetRegistryClients(cur)
}

// RegisterByMAC stamps ep's per-MAC timestamp for mac, creating the
// subscription if absent.
func (r *Registry) RegisterByMAC(ep Endpoint, mac report.MACAddress, now time.Time) {
	r.mu.Lock()
	prev := len(r.clients)
	r.subscription(ep).TimePerMAC[mac] = now
	cur := len(r.clients)
	r.mu.Unlock()
	r.logFirstClient(prev, cur)
	metrics.SetRegistryClients(cur)
}

func (r *Registry) logFirstClient(prev, cur int) {
	if prev == 0 && cur > 0 {
		logging.L().Info("registry_first_client")
	}
}

// ClientsFor returns the endpoints interested in a report with the given
// meta as of now, sweeping any expired subscriptions encountered along
// the way. There is no background GC timer; this sweep is the only one.
func (r *Registry) ClientsFor(meta report.DualShockMeta, now time.Time) []Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	var interested []Endpoint
	for ep, sub := range r.clients {
		if !r.anyTimestampFresh(sub, now) {
			delete(r.clients, ep)
			metrics.IncEviction()
			continue
		}

		want := now.Sub(sub.TimeAllPads) < r.timeout
		if !want && meta.PadID < 4 {
			want = now.Sub(sub.TimePerPad[meta.PadID]) < r.timeout
		}
		if !want {
			if ts, ok := sub.TimePerMAC[meta.MAC]; ok {
				want = now.Sub(ts) < r.timeout
			}
		}
		if want {
			interested = append(interested, ep)
		}
	}
	metrics.SetRegistryClients(len(r.clients))
	return interested
}

// anyTimestampFresh reports whether any of sub's timestamps (all-pads,
// any per-pad slot, any per-MAC entry) are within r.timeout of now. The
// retention rule is broader than "interested in this particular report":
// a client watching pad 2 must survive a report about pad 0.
func (r *Registry) anyTimestampFresh(sub *Subscription, now time.Time) bool {
	if now.Sub(sub.TimeAllPads) < r.timeout {
		return true
	}
	for _, ts := range sub.TimePerPad {
		if now.Sub(ts) < r.timeout {
			return true
		}
	}
	for _, ts := range sub.TimePerMAC {
		if now.Sub(ts) < r.timeout {
			return true
		}
	}
	return false
}

// Count returns the number of tracked subscriptions (including ones that
// would be evicted on the next ClientsFor sweep).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clear flushes the entire subscription table.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.clients = make(map[Endpoint]*Subscription)
	r.mu.Unlock()
	metrics.SetRegistryClients(0)
}
