package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	internalcommon "github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var oracleRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "milestoneindexor_oracle_requests_total",
		Help: "Total number of finality-oracle requests",
	},
	[]string{"outcome"},
)

// Client speaks the finality oracle's REST API over an ordered endpoint pool.
// Unlike the execution-layer client, retry uses exponential backoff with
// jitter: the oracle's typical failure is brief overload, not persistent
// endpoint death.
type Client struct {
	urls  []string
	retry *config.RetryConfig
	http  *http.Client
	next  atomic.Uint64
	log   *logger.Logger
}

// NewClient creates a finality-oracle client from configuration.
func NewClient(cfg config.OracleConfig, log *logger.Logger) (*Client, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("oracle client requires at least one endpoint")
	}

	urls := make([]string, len(cfg.URLs))
	for i, u := range cfg.URLs {
		urls[i] = strings.TrimRight(u, "/")
	}

	c := &Client{
		urls:  urls,
		retry: cfg.Retry,
		http: &http.Client{
			Timeout: cfg.RequestTimeout.Duration,
		},
		log: log,
	}

	c.log.Infof("oracle client initialized: endpoints=%d max_attempts=%d", len(urls), cfg.Retry.MaxAttempts)

	return c, nil
}

// get fetches path from the pool with rotation and backoff. A 404 is returned
// immediately as NotFoundError; everything else retries up to MaxAttempts.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if backoff := calculateBackoff(attempt, c.retry); backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		url := c.urls[int(c.next.Add(1)-1)%len(c.urls)] + path

		body, err := c.getOnce(ctx, url)
		if err == nil {
			oracleRequests.WithLabelValues("success").Inc()
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if IsNotFound(err) {
			oracleRequests.WithLabelValues("not_found").Inc()
			return nil, err
		}

		oracleRequests.WithLabelValues("error").Inc()
		lastErr = err
		c.log.Debugf("oracle request failed: path=%s attempt=%d/%d err=%v", path, attempt, c.retry.MaxAttempts, err)
	}

	return nil, &ExhaustedError{Path: path, LastErr: lastErr}
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Path: url}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}

// Count returns the oracle's current milestone count. The latest milestone's
// sequence id equals the count.
func (c *Client) Count(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "/milestones/count")
	if err != nil {
		return 0, err
	}

	var envelope countEnvelope
	if err := decodeJSON(body, &envelope); err != nil {
		return 0, err
	}

	return internalcommon.ParseUint64orHex(&envelope.Count)
}

// Milestone fetches the milestone with the given sequence id.
func (c *Client) Milestone(ctx context.Context, seqID uint64) (*Milestone, error) {
	body, err := c.get(ctx, fmt.Sprintf("/milestones/%d", seqID))
	if err != nil {
		return nil, err
	}
	return decodeMilestone(seqID, body)
}

// Milestones fetches many milestones in parallel with per-item error
// isolation: failed items are absent from the result, never errors.
func (c *Client) Milestones(ctx context.Context, seqIDs []uint64) (map[uint64]*Milestone, error) {
	if len(seqIDs) == 0 {
		return map[uint64]*Milestone{}, nil
	}

	var (
		mu      sync.Mutex
		results = make(map[uint64]*Milestone, len(seqIDs))
	)

	var g errgroup.Group
	for _, seqID := range seqIDs {
		g.Go(func() error {
			m, err := c.Milestone(ctx, seqID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Debugf("milestone fetch skipped: seq_id=%d err=%v", seqID, err)
				return nil //nolint:nilerr // per-item failures are tolerated
			}

			mu.Lock()
			results[seqID] = m
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Latest fetches the newest milestone by first asking for the count.
func (c *Client) Latest(ctx context.Context) (*Milestone, error) {
	count, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	return c.Milestone(ctx, count)
}
