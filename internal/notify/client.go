package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

const (
	KindBooking       = "booking"
	KindBookingFailed = "bookingFailed"
)

type Payload struct {
	Username  string `json:"username"`
	Date      string `json:"date"`
	FromPlace string `json:"fromPlace"`
	ToPlace   string `json:"toPlace"`
	Details   string `json:"details,omitempty"`
}

type request struct {
	Type    string  `json:"type"`
	To      string  `json:"to"`
	Subject string  `json:"subject"`
	Payload Payload `json:"payload"`
}

// Client posts notifications to the notification service. Delivery is
// best-effort: every failure is logged and swallowed so the primary state
// transition is never blocked by a notification.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     *log.Logger
}

func New(baseURL string, logger *log.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		Log:     logger,
	}
}

func (c *Client) Notify(ctx context.Context, kind, to, subject string, payload Payload) {
	body, err := json.Marshal(request{Type: kind, To: to, Subject: subject, Payload: payload})
	if err != nil {
		c.Log.Printf("notify: marshal: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/notify", bytes.NewReader(body))
	if err != nil {
		c.Log.Printf("notify: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Printf("notify: send %s to %s: %v", kind, to, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.Log.Printf("notify: send %s to %s: status %d", kind, to, resp.StatusCode)
		return
	}
	c.Log.Printf("notify: %s notification sent to %s", kind, to)
}
