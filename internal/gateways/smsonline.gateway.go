package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/valyala/fasthttp"
)

const (
	PathSend    = "/v5/message/sms/send"
	PathBalance = "/v5/account/balance"

	ScheduleLayout = "2006-01-02 15:04:05"

	messageTypeText = 0
)

const (
	OpSend             = "send"
	OpSendPersonalized = "send_personalized"
	OpBroadcast        = "broadcast"
	OpSchedule         = "schedule"
	OpBalance          = "balance"
)

type Config struct {
	BaseURL         string
	APIKey          string
	SenderID        string
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

type Client struct {
	config  Config
	http    *fasthttp.Client
	metrics *Metrics
}

type sendPayload struct {
	Text         string `json:"text"`
	Type         int    `json:"type"`
	Sender       string `json:"sender"`
	Destinations any    `json:"destinations"`
	Schedule     string `json:"schedule,omitempty"`
}

func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 64
	}

	httpClient := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      config.ReadBufferSize,
		WriteBufferSize:     config.WriteBufferSize,
	}

	logger.Info("SMS gateway client initialized", "url", config.BaseURL, "timeout", config.Timeout, "configured", config.APIKey != "" && config.SenderID != "")

	return &Client{
		config:  config,
		http:    httpClient,
		metrics: NewMetrics(),
	}, nil
}

// CheckConfigured returns a ConfigurationError when credentials are missing.
func (c *Client) CheckConfigured() error {
	var missing []string
	if c.config.APIKey == "" {
		missing = append(missing, "api key")
	}
	if c.config.SenderID == "" {
		missing = append(missing, "sender id")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// Send delivers the same text to every number in a single call.
func (c *Client) Send(ctx context.Context, text string, destinations []model.PhoneNumber) (*Outcome, error) {
	if err := validateMessage(text, len(destinations)); err != nil {
		return nil, err
	}
	return c.send(ctx, OpSend, sendPayload{Text: text, Destinations: destinations})
}

// SendPersonalized lets the gateway substitute each destination's values into text.
func (c *Client) SendPersonalized(ctx context.Context, text string, destinations []model.PersonalizedDestination) (*Outcome, error) {
	if err := validateMessage(text, len(destinations)); err != nil {
		return nil, err
	}
	return c.send(ctx, OpSendPersonalized, sendPayload{Text: text, Destinations: destinations})
}

// Broadcast sends a resolved set in one call, using the payload shape its kind names.
func (c *Client) Broadcast(ctx context.Context, text string, set model.DestinationSet) (*Outcome, error) {
	dests, err := payloadDestinations(set)
	if err != nil {
		return nil, err
	}
	if err := validateMessage(text, set.Len()); err != nil {
		return nil, err
	}
	return c.send(ctx, OpBroadcast, sendPayload{Text: text, Destinations: dests})
}

// ScheduleSend asks the gateway to deliver at the given local wall time.
func (c *Client) ScheduleSend(ctx context.Context, text string, set model.DestinationSet, at time.Time) (*Outcome, error) {
	if at.IsZero() {
		return nil, NewValidationError("schedule", "time is required", nil)
	}
	dests, err := payloadDestinations(set)
	if err != nil {
		return nil, err
	}
	if err := validateMessage(text, set.Len()); err != nil {
		return nil, err
	}
	return c.send(ctx, OpSchedule, sendPayload{Text: text, Destinations: dests, Schedule: at.Format(ScheduleLayout)})
}

func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	if err := c.CheckConfigured(); err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, OpBalance, fasthttp.MethodGet, PathBalance, nil)
	if err != nil {
		return nil, err
	}

	_, data, err := reconcile(OpBalance, body, false)
	if err != nil {
		c.metrics.RecordFailure(OpBalance, "rejected")
		return nil, err
	}

	var balance Balance
	if len(data) > 0 {
		if err := json.Unmarshal(data, &balance); err != nil {
			c.metrics.RecordFailure(OpBalance, "rejected")
			return nil, &GatewayRejection{Op: OpBalance, Reason: "balance data malformed: " + err.Error(), Body: body}
		}
	}
	return &balance, nil
}

func (c *Client) Stats() Stats {
	return c.metrics.Snapshot()
}

func (c *Client) send(ctx context.Context, op string, payload sendPayload) (*Outcome, error) {
	if err := c.CheckConfigured(); err != nil {
		return nil, err
	}
	payload.Type = messageTypeText
	payload.Sender = c.config.SenderID

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	startTime := time.Now()
	body, err := c.doRequest(ctx, op, fasthttp.MethodPost, PathSend, reqBody)
	if err != nil {
		return nil, err
	}
	latency := time.Since(startTime).Milliseconds()

	outcome, _, err := reconcile(op, body, true)
	if err != nil {
		c.metrics.RecordFailure(op, "rejected")
		logger.Warn("gateway rejected request", "op", op, "error", err, "body", string(body))
		return outcome, err
	}
	c.metrics.RecordSuccess(op, latency)

	logger.Info("SMS accepted by gateway", "op", op, "batch", outcome.BatchID, "destinations", len(outcome.Destinations), "latency_ms", latency)
	return outcome, nil
}

// doRequest returns the body of any non 5xx response; reconciliation decides acceptance.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		c.metrics.RecordFailure(op, "transport")
		return nil, &TransportError{Op: op, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "key "+c.config.APIKey)

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		c.metrics.RecordFailure(op, "transport")
		return nil, &TransportError{Op: op, Err: err}
	}

	statusCode := resp.StatusCode()
	if statusCode >= fasthttp.StatusInternalServerError {
		c.metrics.RecordFailure(op, "transport")
		return nil, &TransportError{Op: op, StatusCode: statusCode, Err: fmt.Errorf("body: %s", resp.Body())}
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, nil
}

func payloadDestinations(set model.DestinationSet) (any, error) {
	if err := set.Validate(); err != nil {
		return nil, NewValidationError("destinations", "", err)
	}
	switch set.Kind {
	case model.DestinationFlat:
		return set.Flat, nil
	case model.DestinationPersonalized:
		return set.Personalized, nil
	}
	return nil, NewValidationError("destinations", "unknown kind "+set.Kind.String(), nil)
}

func validateMessage(text string, destinations int) error {
	if strings.TrimSpace(text) == "" {
		return NewValidationError("text", "message is empty", nil)
	}
	if destinations == 0 {
		return NewValidationError("destinations", "no destinations", nil)
	}
	return nil
}
