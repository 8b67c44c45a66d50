package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xll-gen/rtd/internal/table"
)

// DefaultThrottle is the minimum gap between two RefreshData calls.
const DefaultThrottle = 2 * time.Second

// ErrServerUnresponsive is returned by Run when a heartbeat fails.
var ErrServerUnresponsive = errors.New("server heartbeat failed")

// RefreshFunc receives every non-empty refresh.
type RefreshFunc func(count int32, tbl *table.Table) error

// Poller is an in-process host. It implements UpdateEvent, and Run drives a
// Server the way a spreadsheet does: it waits for a notification, respects
// the refresh throttle, calls RefreshData, and checks Heartbeat periodically.
type Poller struct {
	server   Server
	throttle time.Duration
	logger   *slog.Logger

	signal       chan struct{} // buffered, size 1
	disconnected chan struct{}
	disconnect   sync.Once

	refs        atomic.Int64
	notifies    atomic.Int64
	heartbeatMS atomic.Int32
}

var _ UpdateEvent = (*Poller)(nil)

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithThrottle sets the minimum gap between refreshes. Zero refreshes as
// soon as notified.
func WithThrottle(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.throttle = d
	}
}

// WithPollerLogger sets the logger. Default: slog.Default().
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = l
	}
}

// NewPoller creates a host for s.
func NewPoller(s Server, opts ...PollerOption) *Poller {
	p := &Poller{
		server:       s,
		throttle:     DefaultThrottle,
		signal:       make(chan struct{}, 1),
		disconnected: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// UpdateNotify records a pending refresh. Never blocks; notifications that
// arrive before the next refresh coalesce.
func (p *Poller) UpdateNotify() error {
	p.notifies.Add(1)
	select {
	case p.signal <- struct{}{}:
	default:
	}
	return nil
}

// HeartbeatInterval returns the heartbeat period in milliseconds.
func (p *Poller) HeartbeatInterval() (int32, error) {
	return p.heartbeatMS.Load(), nil
}

// SetHeartbeatInterval sets the heartbeat period. Zero disables heartbeats.
func (p *Poller) SetHeartbeatInterval(ms int32) error {
	if ms < 0 {
		return fmt.Errorf("heartbeat interval %d: must not be negative", ms)
	}
	p.heartbeatMS.Store(ms)
	return nil
}

// Disconnect is called by a server that shuts down on its own.
func (p *Poller) Disconnect() error {
	p.disconnect.Do(func() { close(p.disconnected) })
	return nil
}

// AddRef takes a reference.
func (p *Poller) AddRef() uint32 {
	return uint32(p.refs.Add(1))
}

// Release drops a reference.
func (p *Poller) Release() uint32 {
	return uint32(p.refs.Add(-1))
}

// Refs returns outstanding references held by the server.
func (p *Poller) Refs() int64 {
	return p.refs.Load()
}

// Notifies returns how many notifications were received.
func (p *Poller) Notifies() int64 {
	return p.notifies.Load()
}

// Run starts the server and serves refreshes until ctx is done, the server
// disconnects, a heartbeat fails, or fn returns an error. The server is
// terminated before Run returns. A cancelled ctx is not an error.
func (p *Poller) Run(ctx context.Context, fn RefreshFunc) error {
	var started int32
	if err := p.server.ServerStart(p, &started); err != nil {
		return fmt.Errorf("server start (%s): %w", StatusOf(err), err)
	}
	if started != 1 {
		return fmt.Errorf("server start returned %d", started)
	}
	defer func() {
		if err := p.server.ServerTerminate(); err != nil {
			p.logger.Warn("server terminate failed", "error", err)
		}
	}()

	var heartbeat <-chan time.Time
	if ms := p.heartbeatMS.Load(); ms > 0 {
		ticker := time.NewTicker(time.Duration(ms) * time.Millisecond)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.disconnected:
			p.logger.Info("server disconnected")
			return nil
		case <-heartbeat:
			var alive int32
			if err := p.server.Heartbeat(&alive); err != nil || alive != 1 {
				return fmt.Errorf("%w (alive=%d, err=%v)", ErrServerUnresponsive, alive, err)
			}
		case <-p.signal:
			if wait := p.throttle - time.Since(last); !last.IsZero() && wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil
				case <-timer.C:
				}
			}
			last = time.Now()
			if err := p.refresh(fn); err != nil {
				return err
			}
		}
	}
}

func (p *Poller) refresh(fn RefreshFunc) error {
	var count int32
	var tbl *table.Table
	if err := p.server.RefreshData(&count, &tbl); err != nil {
		// Drained topics are lost; keep serving.
		p.logger.Error("refresh failed", "status", StatusOf(err).String(), "error", err)
		return nil
	}
	if count == 0 || tbl == nil {
		return nil
	}
	return fn(count, tbl)
}
