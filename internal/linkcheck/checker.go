package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nabdhq/nabd/internal/storage"
)

const (
	defaultTimeout     = 12 * time.Second
	defaultConcurrency = 24
	defaultRetries     = 1

	checkUserAgent = "Mozilla/5.0 (compatible; NabdLinkChecker/1.0)"
	checkAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Options configures a link check run.
type Options struct {
	Timeout     time.Duration
	Concurrency int
	Retries     int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.Retries < 0 {
		o.Retries = defaultRetries
	}
	return o
}

// Result is the verdict for one tool's website URL. ConfirmedDead separates
// definitive failures (404, DNS not found) from transient-looking ones, so
// cleanup can act on the confirmed set only.
type Result struct {
	ToolID        string `json:"tool_id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	Alive         bool   `json:"alive"`
	Status        int    `json:"status,omitempty"`
	Method        string `json:"method,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ConfirmedDead bool   `json:"confirmed_dead"`
	Err           string `json:"error,omitempty"`
}

// Report summarizes a full run.
type Report struct {
	Checked       int            `json:"checked"`
	Alive         int            `json:"alive"`
	Dead          []Result       `json:"dead"`
	ConfirmedDead int            `json:"confirmed_dead"`
	UncertainDead int            `json:"uncertain_dead"`
	DeadByReason  map[string]int `json:"dead_by_reason"`
}

// Checker probes tool website URLs for liveness.
type Checker struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Checker {
	opts = opts.withDefaults()
	return &Checker{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		logger: logger,
	}
}

// CheckAll probes every tool's website URL concurrently and returns a report.
func (c *Checker) CheckAll(ctx context.Context, list []storage.Tool) (Report, error) {
	results := make([]Result, len(list))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i, tool := range list {
		g.Go(func() error {
			results[i] = c.checkTool(ctx, tool)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Checked: len(results), DeadByReason: make(map[string]int)}
	for _, r := range results {
		if r.Alive {
			report.Alive++
			continue
		}
		report.Dead = append(report.Dead, r)
		if r.ConfirmedDead {
			report.ConfirmedDead++
		} else {
			report.UncertainDead++
		}
		reason := r.Reason
		if reason == "" {
			reason = "UNKNOWN"
		}
		report.DeadByReason[reason]++
	}
	return report, nil
}

func (c *Checker) checkTool(ctx context.Context, tool storage.Tool) Result {
	base := Result{ToolID: tool.ID, Title: tool.Title, URL: tool.WebsiteURL}

	if !isValidHTTPURL(tool.WebsiteURL) {
		base.Reason = "INVALID_URL"
		base.ConfirmedDead = true
		return base
	}

	verdict := c.checkURL(ctx, strings.TrimSpace(tool.WebsiteURL))
	verdict.ToolID = base.ToolID
	verdict.Title = base.Title
	verdict.URL = base.URL
	return verdict
}

func (c *Checker) checkURL(ctx context.Context, rawURL string) Result {
	var last Result

	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		status, err := c.request(ctx, http.MethodHead, rawURL, false)
		if err == nil && !shouldFallbackToGet(status) && isReachableStatus(status) {
			return Result{Alive: true, Status: status, Method: http.MethodHead}
		}

		status, err = c.request(ctx, http.MethodGet, rawURL, true)
		if err != nil {
			reason, confirmed := classifyNetworkError(err)
			last = Result{Reason: reason, ConfirmedDead: confirmed, Err: err.Error()}
			if attempt < c.opts.Retries {
				sleepBackoff(ctx, attempt)
				continue
			}
			return last
		}

		if status == statusParked {
			return Result{Reason: "PARKED_DOMAIN", Method: http.MethodGet}
		}
		if isReachableStatus(status) {
			return Result{Alive: true, Status: status, Method: http.MethodGet}
		}

		last = Result{
			Reason:        "HTTP_STATUS",
			Status:        status,
			Method:        http.MethodGet,
			ConfirmedDead: isDefinitiveDeadStatus(status),
		}
		if attempt < c.opts.Retries && shouldRetryStatus(status) {
			sleepBackoff(ctx, attempt)
			continue
		}
		return last
	}

	return last
}

// statusParked is a sentinel pseudo-status for a page whose title reveals a
// parked or for-sale domain.
const statusParked = -1

func (c *Checker) request(ctx context.Context, method, rawURL string, inspectBody bool) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", checkUserAgent)
	req.Header.Set("Accept", checkAccept)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if inspectBody && resp.StatusCode == http.StatusOK && isHTMLResponse(resp) {
		if title, ok := pageTitle(resp.Body); ok && isParkedTitle(title) {
			return statusParked, nil
		}
	}
	return resp.StatusCode, nil
}

func isValidHTTPURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isReachableStatus treats auth walls and throttling as alive: the site
// exists, it just refuses anonymous probes.
func isReachableStatus(status int) bool {
	if status >= 200 && status < 400 {
		return true
	}
	switch status {
	case 401, 403, 406, 407, 408, 409, 412, 415, 429:
		return true
	}
	return false
}

func shouldRetryStatus(status int) bool {
	return status >= 500 || status == 408 || status == 429
}

func shouldFallbackToGet(status int) bool {
	return status >= 400 || status == 405 || status == 501
}

func isDefinitiveDeadStatus(status int) bool {
	switch status {
	case 404, 410, 451:
		return true
	}
	return false
}

func classifyNetworkError(err error) (reason string, confirmed bool) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return "DNS_NOT_FOUND", true
		}
		return "DNS_TEMPORARY_FAILURE", false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "CONNECTION_REFUSED", true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "CONNECTION_RESET", false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT", false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "NETWORK_TIMEOUT", false
	}
	return "NETWORK_ERROR", false
}

func sleepBackoff(ctx context.Context, attempt int) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(attempt+1) * 300 * time.Millisecond):
	}
}

func isHTMLResponse(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "text/html")
}

// Cleanup deletes confirmed-dead tools (and their vectors) from the store.
// Uncertain failures are left alone; they are usually transient.
type Cleanup struct {
	Store   CleanupStore
	Vectors VectorDeleter
	Logger  *slog.Logger
}

// CleanupStore is the subset of storage used during cleanup.
type CleanupStore interface {
	DeleteTool(id string) error
}

// VectorDeleter removes a tool's stored embedding.
type VectorDeleter interface {
	Delete(toolID string) error
}

// Apply removes every confirmed-dead tool in the report. It returns the
// number deleted and keeps going past individual failures.
func (c Cleanup) Apply(report Report) (int, error) {
	deleted := 0
	var firstErr error
	for _, r := range report.Dead {
		if !r.ConfirmedDead {
			continue
		}
		if err := c.Store.DeleteTool(r.ToolID); err != nil {
			c.Logger.Warn("deleting dead tool failed", "tool_id", r.ToolID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("deleting tool %s: %w", r.ToolID, err)
			}
			continue
		}
		if c.Vectors != nil {
			if err := c.Vectors.Delete(r.ToolID); err != nil {
				c.Logger.Warn("vector cleanup failed", "tool_id", r.ToolID, "error", err)
			}
		}
		deleted++
	}
	return deleted, firstErr
}
