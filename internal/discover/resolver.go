package discover

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"quotabar/internal/config"
	"quotabar/internal/scanner"
)

// portProber abstracts Probe so the resolver can be tested with a recording
// fake.
type portProber interface {
	Probe(ctx context.Context, port int, token string) (*ResolvedConnection, error)
}

// Resolver orchestrates scan, extract and probe into one detection pass.
type Resolver struct {
	lister scanner.ProcessLister
	prober portProber
	cfg    config.DiscoveryConfig
	log    *zap.Logger
}

func NewResolver(lister scanner.ProcessLister, prober portProber, cfg config.DiscoveryConfig, log *zap.Logger) *Resolver {
	return &Resolver{
		lister: lister,
		prober: prober,
		cfg:    cfg,
		log:    log,
	}
}

// Detect runs one full discovery pass and returns a verified connection, or
// nil when none was found. It never fails hard: scan, extraction and probe
// errors are logged and translated into "try the next candidate".
func (r *Resolver) Detect(ctx context.Context) *ResolvedConnection {
	records, err := r.lister.List(ctx)
	if err != nil {
		r.log.Warn("process scan failed", zap.Error(err))
		return nil
	}

	matched := scanner.Match(records, r.cfg.ProcessPatterns)
	if len(matched) == 0 {
		r.log.Debug("no matching processes")
		return nil
	}

	var candidates []Candidate
	for _, rec := range matched {
		c := Extract(rec)
		if !c.Viable() {
			r.log.Debug("discarding candidate without port or token", zap.Int("pid", rec.PID))
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].completeness() > candidates[j].completeness()
	})

	// Ranked pass: probe every candidate that carries a port, most complete
	// first, short-circuiting on success.
	for _, c := range candidates {
		if c.probePort() == 0 {
			continue
		}
		conn, err := r.prober.Probe(ctx, c.probePort(), c.CSRFToken)
		if err != nil {
			r.log.Debug("candidate probe failed",
				zap.Int("pid", c.PID), zap.Int("port", c.probePort()), zap.Error(err))
			continue
		}
		r.log.Info("connection resolved",
			zap.Int("pid", c.PID), zap.Int("port", conn.ConnectPort))
		return conn
	}

	if conn := r.probePortRange(ctx, candidates); conn != nil {
		return conn
	}
	return r.probeUnauthenticated(ctx, candidates)
}

// probePortRange handles token-only candidates: the token proves we found
// the right process, but the port flag was absent, so walk the configured
// scan range with that token.
func (r *Resolver) probePortRange(ctx context.Context, candidates []Candidate) *ResolvedConnection {
	for _, c := range candidates {
		if c.probePort() != 0 || c.CSRFToken == "" {
			continue
		}
		for port := r.cfg.PortScanStart; port < r.cfg.PortScanStart+r.cfg.PortScanCount; port++ {
			conn, err := r.prober.Probe(ctx, port, c.CSRFToken)
			if err != nil {
				continue
			}
			r.log.Info("connection resolved via port range scan",
				zap.Int("pid", c.PID), zap.Int("port", conn.ConnectPort))
			return conn
		}
		// One range walk per pass; other token-only candidates carry the
		// same story and the retry controller schedules the next pass.
		return nil
	}
	return nil
}

// probeUnauthenticated is the dev-mode fallback: some deployments run the
// service without a token and reject unexpected credentials, so candidates
// whose authenticated probe failed get one last tokenless try. Best effort,
// not a guarantee.
func (r *Resolver) probeUnauthenticated(ctx context.Context, candidates []Candidate) *ResolvedConnection {
	for _, c := range candidates {
		if c.probePort() == 0 || c.CSRFToken == "" {
			continue
		}
		conn, err := r.prober.Probe(ctx, c.probePort(), "")
		if err != nil {
			continue
		}
		r.log.Info("connection resolved without authentication",
			zap.Int("pid", c.PID), zap.Int("port", conn.ConnectPort))
		return conn
	}
	return nil
}
