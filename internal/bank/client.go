// Package bank is the client for the external ledger service. The bank is
// the sole source of truth for account balances; the application never
// infers balance state locally.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrNoUser means the bank has no account for the given bank id.
	ErrNoUser = errors.New("no bank user")

	// ErrCreditInsufficient means the balance cannot cover the requested
	// amount. It is an expected business outcome, not a transport failure.
	ErrCreditInsufficient = errors.New("credit is insufficient")
)

type basicResponse struct {
	Error string `json:"error"`
}

type reserveResponse struct {
	basicResponse
	ReserveID int64 `json:"reserve_id"`
}

// Client calls the bank HTTP API. Any non-200 response is an error; only
// the documented error strings map to sentinel errors.
type Client struct {
	endpoint *url.URL
	appID    string
	http     *http.Client
}

func NewClient(endpoint, appID string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint: u,
		appID:    appID,
		http:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Check probes whether the account can cover price. It does not hold funds,
// and reserved holds are not counted against the balance.
func (c *Client) Check(ctx context.Context, bankID string, price int64) error {
	var res basicResponse
	status, err := c.post(ctx, "/check", map[string]interface{}{
		"bank_id": bankID,
		"price":   price,
	}, &res)
	if err != nil {
		return fmt.Errorf("bank check failed: %w", err)
	}
	if status == http.StatusOK {
		return nil
	}
	switch res.Error {
	case "bank_id not found":
		return ErrNoUser
	case "credit is insufficient":
		return ErrCreditInsufficient
	}
	return fmt.Errorf("bank check failed: %s", res.Error)
}

// Reserve places a hold for price on the account and returns the reserve id.
// A positive price credits the account on commit, a negative price debits it.
func (c *Client) Reserve(ctx context.Context, bankID string, price int64) (int64, error) {
	var res reserveResponse
	status, err := c.post(ctx, "/reserve", map[string]interface{}{
		"bank_id": bankID,
		"price":   price,
	}, &res)
	if err != nil {
		return 0, fmt.Errorf("bank reserve failed: %w", err)
	}
	if status != http.StatusOK {
		if res.Error == "credit is insufficient" {
			return 0, ErrCreditInsufficient
		}
		return 0, fmt.Errorf("bank reserve failed: %s", res.Error)
	}
	return res.ReserveID, nil
}

// Commit finalizes the listed holds. A failure here must be surfaced to the
// caller as-is: the outcome is unknown and retrying risks double settlement.
func (c *Client) Commit(ctx context.Context, reserveIDs []int64) error {
	var res basicResponse
	status, err := c.post(ctx, "/commit", map[string]interface{}{
		"reserve_ids": reserveIDs,
	}, &res)
	if err != nil {
		return fmt.Errorf("bank commit failed: %w", err)
	}
	if status != http.StatusOK {
		if res.Error == "credit is insufficient" {
			return ErrCreditInsufficient
		}
		return fmt.Errorf("bank commit failed: %s", res.Error)
	}
	return nil
}

// Cancel releases the listed holds without moving funds.
func (c *Client) Cancel(ctx context.Context, reserveIDs []int64) error {
	var res basicResponse
	status, err := c.post(ctx, "/cancel", map[string]interface{}{
		"reserve_ids": reserveIDs,
	}, &res)
	if err != nil {
		return fmt.Errorf("bank cancel failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("bank cancel failed: %s", res.Error)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, v interface{}, out interface{}) (int, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	u := c.endpoint.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.appID)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
