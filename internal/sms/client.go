// Package sms delivers text messages through the text.lk gateway.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/config"
)

// ErrInvalidPhone is returned when a number cannot be turned into the
// 94XXXXXXXXX form the gateway expects.
var ErrInvalidPhone = errors.New("invalid phone number")

type sendRequest struct {
	Recipient string `json:"recipient"`
	SenderID  string `json:"sender_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client calls the text.lk v3 API.  Calls go through a circuit breaker that
// opens after five consecutive failures and probes again after 30 seconds.
type Client struct {
	httpClient *resty.Client
	senderID   string
	breaker    *gobreaker.CircuitBreaker[*resty.Response]
	logger     *zap.Logger
}

func NewClient(cfg config.SMSConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= 500
		}).
		SetAuthToken(cfg.APIToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "sms",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("sms circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Client{httpClient: client, senderID: cfg.SenderID, breaker: breaker, logger: logger}
}

// Send delivers message to the given phone number.
func (c *Client) Send(ctx context.Context, to, message string) error {
	recipient, err := NormalizePhone(to)
	if err != nil {
		return err
	}
	var out sendResponse
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetBody(sendRequest{Recipient: recipient, SenderID: c.senderID, Type: "plain", Message: message}).
			SetResult(&out).
			SetError(&out).
			Post("/api/v3/sms/send")
		if err != nil {
			return resp, err
		}
		if resp.IsError() {
			return resp, fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode(), out.Message)
		}
		if !strings.EqualFold(out.Status, "success") {
			return resp, fmt.Errorf("sms gateway rejected message: %s", out.Message)
		}
		return resp, nil
	})
	if err != nil {
		c.logger.Error("SMS send failed", zap.String("recipient", mask(recipient)), zap.Error(err))
		return fmt.Errorf("send sms: %w", err)
	}
	c.logger.Info("SMS sent", zap.String("recipient", mask(recipient)), zap.Int("status_code", resp.StatusCode()))
	return nil
}

// NormalizePhone converts local and international Sri Lankan numbers to
// 94XXXXXXXXX.  Spaces, dashes and a leading + are ignored.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "94") && len(digits) == 11:
		return digits, nil
	case len(digits) >= 9:
		return "94" + digits[len(digits)-9:], nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
}

func mask(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// LogSender only logs messages.  The server uses it when no gateway token
// is configured.
type LogSender struct{ Logger *zap.Logger }

func (s LogSender) Send(_ context.Context, to, message string) error {
	s.Logger.Info("SMS delivery disabled, message logged",
		zap.String("recipient", mask(to)), zap.String("message", message))
	return nil
}
