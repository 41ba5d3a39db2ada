package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 1 << 20

// Controller wires an import trigger to the import endpoint.
type Controller struct {
	url     string
	form    Form
	trigger Trigger
	success Region
	failure Region

	client    *http.Client
	mode      ContentMode
	logger    zerolog.Logger
	onSettled func(Outcome)

	inFlight atomic.Bool
	mu       sync.Mutex // guards region and form updates
	wg       sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithHTTPClient sets the client used for submissions. Cookies, credentials and timeouts
// are the client's business.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		if client != nil {
			c.client = client
		}
	}
}

// WithContentMode sets how rejection detail is inserted into the error region.
func WithContentMode(mode ContentMode) Option {
	return func(c *Controller) {
		c.mode = mode
	}
}

// WithLogger sets the controller's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// OnSettled registers fn to be called after the regions reflect a submission's outcome.
func OnSettled(fn func(Outcome)) Option {
	return func(c *Controller) {
		c.onSettled = fn
	}
}

// NewController returns a controller posting to baseURL + Endpoint. An empty baseURL
// posts to the endpoint path as is, which suits same-origin hosts.
func NewController(baseURL string, form Form, trigger Trigger, success, failure Region, opts ...Option) *Controller {
	c := &Controller{
		url:     strings.TrimRight(baseURL, "/") + Endpoint,
		form:    form,
		trigger: trigger,
		success: success,
		failure: failure,
		client:  http.DefaultClient,
		mode:    PlainText,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the address submissions are posted to.
func (c *Controller) URL() string {
	return c.url
}

// OnImportClick starts a submission of the form's current contents and returns without
// waiting for the response. It reports false, and does nothing, while an earlier
// submission is still in flight.
func (c *Controller) OnImportClick(ctx context.Context) bool {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug().Msg("Import already in flight, ignoring click")
		return false
	}

	c.trigger.SetDisabled(true)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		c.settle(c.submit(ctx))
	}()

	return true
}

// OnFileFieldInteraction hides both feedback regions.
func (c *Controller) OnFileFieldInteraction() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.success.Hide()
	c.failure.Hide()
}

// InFlight reports whether a submission has not settled yet.
func (c *Controller) InFlight() bool {
	return c.inFlight.Load()
}

// Wait blocks until every started submission has settled.
func (c *Controller) Wait() {
	c.wg.Wait()
}

type settlement struct {
	outcome Outcome
	detail  string
}

func (c *Controller) submit(ctx context.Context) settlement {
	data, err := c.form.Snapshot()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read import form")
		return settlement{outcome: TransportFailed}
	}

	payload, err := BuildPayload(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to build import payload")
		return settlement{outcome: TransportFailed}
	}

	res, err := c.post(ctx, payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.url).Msg("Import request failed")
		return settlement{outcome: TransportFailed}
	}

	if !res.Success {
		c.logger.Info().Str("errors", string(res.Errors)).Msg("Import rejected")
		return settlement{outcome: Rejected, detail: string(res.Errors)}
	}

	c.logger.Info().Msg("Import accepted")
	return settlement{outcome: Accepted}
}

func (c *Controller) post(ctx context.Context, payload Payload) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload.Body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", payload.ContentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	c.logger.Debug().Str("url", c.url).Int("size", len(payload.Body)).Msg("Posting import")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to post import: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("import endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	return decodeResult(body)
}

func (c *Controller) settle(s settlement) {
	c.mu.Lock()
	switch s.outcome {
	case Accepted:
		c.form.Reset()
		c.failure.Hide()
		c.success.Show()
	case Rejected:
		c.fill(s.detail)
		c.success.Hide()
		c.failure.Show()
	default:
		c.failure.SetText(GenericErrorMessage)
		c.success.Hide()
		c.failure.Show()
	}
	c.mu.Unlock()

	c.inFlight.Store(false)
	c.trigger.SetDisabled(false)

	if c.onSettled != nil {
		c.onSettled(s.outcome)
	}
}

func (c *Controller) fill(detail string) {
	if c.mode == TrustedMarkup {
		c.failure.SetHTML(detail)
		return
	}
	c.failure.SetText(detail)
}
