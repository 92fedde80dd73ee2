// Package auditlog is the client for the external audit event sink.
package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Event timestamps are always rendered in the sink's fixed +09:00 offset.
var jst = time.FixedZone("JST", 9*60*60)

// Event is the wire format for one audit record. Data fields depend on Tag.
type Event struct {
	Tag  string      `json:"tag"`
	Time string      `json:"time"`
	Data interface{} `json:"data"`
}

type Client struct {
	endpoint *url.URL
	appID    string
	http     *http.Client
	log      *zap.Logger
}

func NewClient(endpoint, appID string, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint: u,
		appID:    appID,
		http:     &http.Client{Timeout: 5 * time.Second},
		log:      log,
	}, nil
}

// Send delivers one event in the background. Delivery is fire-and-forget:
// failures are logged and never block or fail the caller's transaction.
func (c *Client) Send(tag string, data interface{}) {
	ev := Event{
		Tag:  tag,
		Time: time.Now().In(jst).Format("2006-01-02T15:04:05-07:00"),
		Data: data,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.send(ctx, ev); err != nil {
			c.log.Warn("audit event send failed", zap.String("tag", tag), zap.Error(err))
		}
	}()
}

func (c *Client) send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	u := c.endpoint.JoinPath("/send")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.appID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("audit sink status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
