package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/kasse-pos/internal/catalog"
	"github.com/noah-isme/kasse-pos/internal/common"
	"github.com/noah-isme/kasse-pos/internal/deposit"
	"github.com/noah-isme/kasse-pos/internal/payment"
	"github.com/noah-isme/kasse-pos/internal/resilience"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

// ErrUnexpectedStatus is returned for non-2xx responses that have no domain mapping.
var ErrUnexpectedStatus = errors.New("backend: unexpected status")

const maxErrorBody = 4 << 10

// Config configures the commerce backend client.
type Config struct {
	BaseURL         string
	Token           string
	DepositCategory string
	Timeout         time.Duration
	// HTTP overrides the resilient transport. Client defaults to an otelhttp-instrumented client.
	HTTP   resilience.HTTPClient
	Logger zerolog.Logger
}

// Client talks to the commerce backend over HTTP/JSON.
type Client struct {
	base            *url.URL
	token           string
	depositCategory string
	http            resilience.HTTPClient
	logger          zerolog.Logger
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", raw)
	}
	hc := cfg.HTTP
	if hc.Client == nil {
		hc.Client = NewHTTPClient()
	}
	if hc.Timeout <= 0 {
		hc.Timeout = cfg.Timeout
	}
	if hc.Breaker == nil {
		hc.Breaker = resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("backend").WithLogger(cfg.Logger)
	}
	return &Client{
		base:            base,
		token:           strings.TrimSpace(cfg.Token),
		depositCategory: cfg.DepositCategory,
		http:            hc,
		logger:          cfg.Logger,
	}, nil
}

// NewHTTPClient returns an http.Client whose transport emits client spans.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// GetProduct fetches a product and resolves its connected product kinds.
func (c *Client) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	if strings.TrimSpace(id) == "" {
		return catalog.Product{}, catalog.ErrInvalidInput
	}
	var rec catalog.Record
	if err := c.getJSON(ctx, "products/"+url.PathEscape(id), catalog.ErrNotFound, &rec); err != nil {
		return catalog.Product{}, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return catalog.Ingest(rec, c.depositCategory), nil
}

// GetTransactionalInformation returns the redemption state of a voucher code.
func (c *Client) GetTransactionalInformation(ctx context.Context, code string) (voucher.Info, error) {
	var info voucher.Info
	err := c.getJSON(ctx, "vouchers/"+url.PathEscape(code)+"/transactional-information", voucher.ErrNotFound, &info)
	return info, err
}

// GetDepositReceipt fetches a deposit receipt by id.
func (c *Client) GetDepositReceipt(ctx context.Context, id string) (deposit.Receipt, error) {
	var r deposit.Receipt
	err := c.getJSON(ctx, "deposit-receipts/"+url.PathEscape(id), deposit.ErrNotFound, &r)
	return r, err
}

// CreateSaleTransaction submits a sale. Every call carries an Idempotency-Key so retried attempts
// are recorded once; a key stored with common.WithIdempotencyKey is forwarded as is.
func (c *Client) CreateSaleTransaction(ctx context.Context, payload payment.SalePayload) (payment.SaleResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return payment.SaleResult{}, fmt.Errorf("encode sale: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "sales", bytes.NewReader(body))
	if err != nil {
		return payment.SaleResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	key := common.IdempotencyKey(ctx)
	if key == "" {
		key = uuid.NewString()
	}
	req.Header.Set("Idempotency-Key", key)

	var out payment.SaleResult
	if err := c.do(ctx, req, nil, &out); err != nil {
		return payment.SaleResult{}, err
	}
	return out, nil
}

// Ping checks that the backend answers. Any status below 500 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, notFound error, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, req, notFound, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, notFound error, out any) error {
	ctx, span := otel.Tracer("backend.Client").Start(ctx, "Backend "+req.Method+" "+req.URL.Path)
	defer span.End()

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Dur("elapsed", time.Since(start)).Msg("backend_call_failed")
		return fmt.Errorf("backend %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound && notFound != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return notFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn().Int("status", resp.StatusCode).Str("method", req.Method).Str("path", req.URL.Path).Msg("backend_call_rejected")
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

var (
	_ catalog.Catalog   = (*Client)(nil)
	_ voucher.Lookup    = (*Client)(nil)
	_ deposit.Lookup    = (*Client)(nil)
	_ payment.Submitter = (*Client)(nil)
)
