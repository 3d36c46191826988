package remote

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/logging"
)

// DefaultRequestTimeout bounds a single remote call.
const DefaultRequestTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 512

// Client is an HTTP implementation of API.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	timeout time.Duration
	log     *log.Entry
}

var _ API = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRequestTimeout bounds each call. Zero disables the per-call deadline.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger log.FieldLogger) ClientOption {
	return func(c *Client) { c.log = logging.Component(logger, "remote") }
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.NewInvalidInputError("base_url", baseURL, "must be an absolute http(s) URL")
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		tokens:  tokens,
		http:    http.DefaultClient,
		timeout: DefaultRequestTimeout,
		log:     logging.Component(nil, "remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List implements API
func (c *Client) List(ctx context.Context) ([]Task, error) {
	var tasks []Task
	err := c.do(ctx, call{operation: "list tasks", method: http.MethodGet, path: "/tasks"}, nil, &tasks)
	return tasks, err
}

// Create implements API
func (c *Client) Create(ctx context.Context, req CreateRequest, idempotencyKey string) (Task, error) {
	var task Task
	err := c.do(ctx, call{
		operation: "create task",
		method:    http.MethodPost,
		path:      "/tasks",
		key:       idempotencyKey,
	}, req, &task)
	return task, err
}

// Update implements API
func (c *Client) Update(ctx context.Context, id string, req UpdateRequest, idempotencyKey string) (Task, error) {
	var task Task
	err := c.do(ctx, call{
		operation: "update task",
		method:    http.MethodPut,
		path:      "/tasks/" + url.PathEscape(id),
		key:       idempotencyKey,
		target:    id,
	}, req, &task)
	return task, err
}

// Delete implements API
func (c *Client) Delete(ctx context.Context, id string, idempotencyKey string) error {
	return c.do(ctx, call{
		operation: "delete task",
		method:    http.MethodDelete,
		path:      "/tasks/" + url.PathEscape(id),
		key:       idempotencyKey,
		target:    id,
	}, nil, nil)
}

// Reorder implements API
func (c *Client) Reorder(ctx context.Context, order []domain.PositionUpdate, idempotencyKey string) ([]Task, error) {
	var tasks []Task
	err := c.do(ctx, call{
		operation: "reorder tasks",
		method:    http.MethodPost,
		path:      "/tasks/reorder",
		key:       idempotencyKey,
	}, order, &tasks)
	return tasks, err
}

type call struct {
	operation string
	method    string
	path      string
	key       string
	target    string
}

func (c *Client) do(ctx context.Context, cl call, body, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeAuth, "no credentials for "+cl.operation)
	}

	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return errors.NewInvalidInputError("body", cl.operation, err.Error())
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reader)
	if err != nil {
		return errors.NewInvalidInputError("request", cl.path, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cl.key != "" {
		req.Header.Set(IdempotencyKeyHeader, cl.key)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, cl.operation, err)
	}
	defer resp.Body.Close()

	c.log.WithFields(log.Fields{
		"operation": cl.operation,
		"status":    resp.StatusCode,
		"elapsed":   time.Since(start),
	}).Debug("remote call")

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(cl, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewRemoteUnavailableError(cl.operation, resp.StatusCode,
			fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, operation string, err error) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeoutError(operation, c.timeout.String())
	case stderrors.Is(err, context.Canceled) && ctx.Err() != nil:
		return ctx.Err()
	default:
		return errors.NewRemoteUnavailableError(operation, 0, err)
	}
}

// statusError maps a non-2xx response to the error taxonomy. A 404 or 410
// means the target task is gone only for calls that address one; on the
// collection endpoints it is a routing problem and worth retrying.
func statusError(cl call, status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewAuthError(cl.operation, status)
	case (status == http.StatusNotFound || status == http.StatusGone) && cl.target != "":
		return errors.NewConflictError("task", cl.target)
	case status == http.StatusNotFound || status == http.StatusGone:
		return errors.NewRemoteUnavailableError(cl.operation, status, nil)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return errors.NewRemoteUnavailableError(cl.operation, status, nil)
	default:
		msg := fmt.Sprintf("server rejected %s (%d)", cl.operation, status)
		if body != "" {
			msg += ": " + body
		}
		return errors.NewValidationError(msg, nil)
	}
}
