package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ResolvedConnection is a probe-verified port and token pair. It is
// immutable once returned; reconnects produce a new value wholesale.
type ResolvedConnection struct {
	ConnectPort int
	CSRFToken   string
}

// ProbeError means a candidate port did not host the expected service:
// unreachable, wrong status, or a response shape that belongs to something
// else bound to the same port.
type ProbeError struct {
	Port   int
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe port %d: %s: %v", e.Port, e.Reason, e.Err)
	}
	return fmt.Sprintf("probe port %d: %s", e.Port, e.Reason)
}

func (e *ProbeError) Unwrap() error { return e.Err }

const (
	statusPath    = "/api/status"
	csrfHeader    = "X-Csrf-Token"
	maxStatusBody = 64 << 10
)

// statusResponse is the shape of the service's status endpoint. The apiPort
// field is the negotiation step: the extension may answer on a front-door
// port while the API proper serves on another.
type statusResponse struct {
	Service string `json:"service"`
	APIPort int    `json:"apiPort"`
}

// Prober validates candidate ports with a single authenticated status call.
// It never retries internally; retry policy belongs to the caller.
type Prober struct {
	client      *http.Client
	serviceName string
	log         *zap.Logger
}

func NewProber(serviceName string, timeout time.Duration, log *zap.Logger) *Prober {
	return &Prober{
		client:      &http.Client{Timeout: timeout},
		serviceName: serviceName,
		log:         log,
	}
}

// Probe issues one status request against localhost:port, authenticated when
// a token is given. Success requires a 200 response whose body identifies
// the expected service, not merely an open port. When the body advertises a
// different API port, that port is probed once more and the resolved
// connection records it.
func (p *Prober) Probe(ctx context.Context, port int, token string) (*ResolvedConnection, error) {
	st, err := p.status(ctx, port, token)
	if err != nil {
		return nil, err
	}

	if st.APIPort != 0 && st.APIPort != port {
		p.log.Debug("service advertises a different API port",
			zap.Int("probed", port), zap.Int("advertised", st.APIPort))
		if _, err := p.status(ctx, st.APIPort, token); err != nil {
			return nil, err
		}
		port = st.APIPort
	}

	return &ResolvedConnection{ConnectPort: port, CSRFToken: token}, nil
}

func (p *Prober) status(ctx context.Context, port int, token string) (*statusResponse, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, statusPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ProbeError{Port: port, Reason: "build request", Err: err}
	}
	if token != "" {
		req.Header.Set(csrfHeader, token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProbeError{Port: port, Reason: "connect", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProbeError{Port: port, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var st statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatusBody)).Decode(&st); err != nil {
		return nil, &ProbeError{Port: port, Reason: "malformed status body", Err: err}
	}
	if st.Service != p.serviceName {
		return nil, &ProbeError{Port: port, Reason: fmt.Sprintf("unexpected service %q", st.Service)}
	}
	return &st, nil
}
