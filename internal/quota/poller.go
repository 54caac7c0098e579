package quota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"quotabar/internal/discover"
)

const (
	quotaPath    = "/api/quota"
	csrfHeader   = "X-Csrf-Token"
	maxQuotaBody = 1 << 20
)

// ErrNoConnection is published to error subscribers when a fetch is
// requested before any connection has been resolved.
var ErrNoConnection = errors.New("no resolved connection")

// Poller owns the resolved connection and the recurring quota fetch. The
// connection is replaced atomically by SetConnection and snapshotted at the
// start of every fetch, so an in-flight call always completes against one
// consistent connection even while a reconnect races it.
type Poller struct {
	client *http.Client
	log    *zap.Logger
	pinned []string

	mu        sync.Mutex
	conn      *discover.ResolvedConnection
	cancel    context.CancelFunc
	inFlight  bool
	updateFns []func(Snapshot)
	errorFns  []func(error)
}

func NewPoller(timeout time.Duration, pinned []string, log *zap.Logger) *Poller {
	return &Poller{
		client: &http.Client{Timeout: timeout},
		log:    log,
		pinned: pinned,
	}
}

// SetConnection installs a verified connection, superseding any prior one
// wholesale. It never mutates an existing connection field-by-field.
func (p *Poller) SetConnection(conn discover.ResolvedConnection) {
	p.mu.Lock()
	p.conn = &conn
	p.mu.Unlock()
	p.log.Info("quota poller connection installed", zap.Int("port", conn.ConnectPort))
}

// OnUpdate registers a snapshot subscriber. Delivery is synchronous within
// the poll tick and follows registration order.
func (p *Poller) OnUpdate(fn func(Snapshot)) {
	p.mu.Lock()
	p.updateFns = append(p.updateFns, fn)
	p.mu.Unlock()
}

// OnError registers an error subscriber with the same delivery guarantees
// as OnUpdate.
func (p *Poller) OnError(fn func(error)) {
	p.mu.Lock()
	p.errorFns = append(p.errorFns, fn)
	p.mu.Unlock()
}

// Start begins recurring polling: an immediate fetch, then one per interval.
// Calling Start while already polling resets the cycle instead of stacking
// timers; there is never more than one active timer.
func (p *Poller) Start(interval time.Duration) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx, interval)
}

// Stop cancels the recurring timer deterministically: once it returns, no
// further tick will fire. Safe to call repeatedly or when idle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
}

func (p *Poller) run(ctx context.Context, interval time.Duration) {
	p.Fetch(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Fetch(ctx)
		}
	}
}

// Fetch performs one quota call and publishes the snapshot or the error. A
// call arriving while another is in flight returns immediately: ticks are
// skipped, never queued, so at most one request is outstanding. A fetch
// failure is reported per-tick and does not stop the recurring timer.
func (p *Poller) Fetch(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return
	}
	if p.conn == nil {
		p.mu.Unlock()
		p.publishError(ErrNoConnection)
		return
	}
	conn := *p.conn
	p.inFlight = true
	p.mu.Unlock()

	snap, err := p.fetchOnce(ctx, conn)

	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()

	if err != nil {
		p.log.Warn("quota fetch failed", zap.Int("port", conn.ConnectPort), zap.Error(err))
		p.publishError(err)
		return
	}
	p.publishUpdate(*snap)
}

func (p *Poller) fetchOnce(ctx context.Context, conn discover.ResolvedConnection) (*Snapshot, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", conn.ConnectPort, quotaPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build quota request: %w", err)
	}
	if conn.CSRFToken != "" {
		req.Header.Set(csrfHeader, conn.CSRFToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quota request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quota endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxQuotaBody))
	if err != nil {
		return nil, fmt.Errorf("read quota response: %w", err)
	}

	snap, err := ParseSnapshot(body, time.Now())
	if err != nil {
		return nil, err
	}
	PinFirst(snap.Models, p.pinned)
	return snap, nil
}

func (p *Poller) publishUpdate(snap Snapshot) {
	p.mu.Lock()
	fns := make([]func(Snapshot), len(p.updateFns))
	copy(fns, p.updateFns)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (p *Poller) publishError(err error) {
	p.mu.Lock()
	fns := make([]func(error), len(p.errorFns))
	copy(fns, p.errorFns)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
