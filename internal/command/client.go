// Package command is the request/response side of the exchange interface:
// order submission and simulation control. Everything streamed lives in
// internal/feed; nothing here mutates view-model state.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidmcn/container-futures-mvp/internal/ledger"
	"github.com/aidmcn/container-futures-mvp/internal/metrics"
)

type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

// OrderRequest is an order submission. The upstream names the book field
// leg_id even for contract-ownership books.
type OrderRequest struct {
	BookID              string           `json:"leg_id"`
	Side                string           `json:"side"`
	Price               decimal.Decimal  `json:"price"`
	Qty                 int              `json:"qty"`
	Trader              string           `json:"trader"`
	OrderType           ledger.MatchType `json:"order_type,omitempty"`
	ContainerContractID string           `json:"container_contract_id,omitempty"`
}

// Validate applies the client-side checks that must reject an order before
// any network call: a finite positive price and a positive integer qty.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.BookID) == "" {
		return fmt.Errorf("book id required")
	}
	if r.Side != "bid" && r.Side != "ask" {
		return fmt.Errorf("side must be bid or ask")
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("price must be a positive number")
	}
	if r.Qty <= 0 {
		return fmt.Errorf("qty must be a positive integer")
	}
	if strings.TrimSpace(r.Trader) == "" {
		return fmt.Errorf("trader required")
	}
	return nil
}

// Match is the immediate cross reported by a submission, when one occurred.
type Match struct {
	ID        string          `json:"id"`
	LegID     string          `json:"leg_id"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
	TS        string          `json:"ts"`
	BidTrader string          `json:"bid_trader"`
	AskTrader string          `json:"ask_trader"`
}

// SubmitOrder validates locally, posts the order and returns the match if
// the order crossed immediately (nil otherwise).
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*Match, error) {
	if err := req.Validate(); err != nil {
		metrics.CommandsTotal.WithLabelValues("order", "rejected").Inc()
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("order", "error").Inc()
		return nil, fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.CommandsTotal.WithLabelValues("order", "error").Inc()
		return nil, apiError("submit order", resp)
	}

	var result struct {
		Match *Match `json:"match"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	metrics.CommandsTotal.WithLabelValues("order", "ok").Inc()
	return result.Match, nil
}

func (c *Client) Play(ctx context.Context) error   { return c.simVerb(ctx, "play") }
func (c *Client) Pause(ctx context.Context) error  { return c.simVerb(ctx, "pause") }
func (c *Client) Resume(ctx context.Context) error { return c.simVerb(ctx, "resume") }
func (c *Client) Reset(ctx context.Context) error  { return c.simVerb(ctx, "reset") }

func (c *Client) simVerb(ctx context.Context, verb string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sim/"+verb, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(verb, "error").Inc()
		return fmt.Errorf("%s: %w", verb, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.CommandsTotal.WithLabelValues(verb, "error").Inc()
		return apiError(verb, resp)
	}
	metrics.CommandsTotal.WithLabelValues(verb, "ok").Inc()
	return nil
}

// apiError surfaces the response's message field, falling back to a
// status-derived message when the body carries none.
func apiError(verb string, resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("%s: %s", verb, body.Message)
	}
	return fmt.Errorf("%s: %s", verb, strings.ToLower(http.StatusText(resp.StatusCode)))
}
