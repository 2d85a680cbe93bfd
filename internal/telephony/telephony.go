// Package telephony wraps the Twilio Voice API for placing outbound
// check-in calls.
package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallPlacer places an outbound voice call that will be driven by the given
// webhook URL.
type CallPlacer interface {
	PlaceCall(ctx context.Context, to string, webhookURL string) (string, error)
}

// Opts holds configuration options for the Twilio voice client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio voice client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the caller ID number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Client wraps the Twilio REST API for voice calls.
type Client struct {
	client *twilio.RestClient
	from   string
}

// NewClient creates a Twilio voice client. Credentials fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio voice client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, from: cfg.FromNumber}, nil
}

// PlaceCall starts an outbound call to the given number. Twilio fetches call
// instructions from webhookURL once the callee answers. Returns the call SID.
func (c *Client) PlaceCall(ctx context.Context, to string, webhookURL string) (string, error) {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetUrl(webhookURL)

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		slog.Error("Client.PlaceCall: Twilio call creation failed", "error", err, "to", to)
		return "", fmt.Errorf("failed to place call to %s: %w", to, err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Info("Client.PlaceCall: call placed", "to", to, "callSID", sid)
	return sid, nil
}

// MockClient records placed calls for testing.
type MockClient struct {
	PlacedCalls []PlacedCall
	Err         error
}

// PlacedCall is one recorded PlaceCall invocation.
type PlacedCall struct {
	To         string
	WebhookURL string
}

// PlaceCall records the call and returns a synthetic SID.
func (m *MockClient) PlaceCall(_ context.Context, to string, webhookURL string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.PlacedCalls = append(m.PlacedCalls, PlacedCall{To: to, WebhookURL: webhookURL})
	return fmt.Sprintf("CA-mock-%d", len(m.PlacedCalls)), nil
}
