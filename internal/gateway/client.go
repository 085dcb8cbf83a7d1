package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/tumaini/tikiti/internal/clock"
	"github.com/tumaini/tikiti/internal/config"
	"github.com/tumaini/tikiti/internal/observability"
)

const timestampLayout = "20060102150405"

// Client talks to the STK push gateway: fetches a short-lived OAuth token
// with the consumer credentials, signs each push with
// base64(shortcode+passkey+timestamp), and submits the request carrying the
// booking reference as the account reference. It mutates no local state.
type Client struct {
	hc          *http.Client
	clock       clock.Clock
	logger      observability.Logger
	baseURL     string
	shortcode   string
	passkey     string
	consumerKey string
	consumerSec string
	callbackURL string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg *config.Config, clk clock.Clock, logger observability.Logger) *Client {
	return &Client{
		hc:          &http.Client{Timeout: 30 * time.Second},
		clock:       clk,
		logger:      logger,
		baseURL:     cfg.GatewayBaseURL,
		shortcode:   cfg.GatewayShortcode,
		passkey:     cfg.GatewayPasskey,
		consumerKey: cfg.GatewayConsumerKey,
		consumerSec: cfg.GatewayConsumerSec,
		callbackURL: cfg.CallbackURL,
	}
}

// token returns a cached access credential, refreshing it when within a
// minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.clock.Now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", errors.Wrap(err, "gateway token request")
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSec)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", errors.CombineErrors(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrAuth
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Wrapf(ErrUnavailable, "token endpoint status %d: %s", resp.StatusCode, body)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", errors.Wrap(err, "decode token reply")
	}

	ttl := 50 * time.Minute
	if d, err := time.ParseDuration(reply.ExpiresIn + "s"); err == nil && d > 0 {
		ttl = d
	}
	c.accessToken = reply.AccessToken
	c.tokenExpiry = c.clock.Now().Add(ttl)

	return c.accessToken, nil
}

// password is the signed credential for one push: business shortcode +
// passkey + timestamp, base64-encoded.
func (c *Client) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.shortcode + c.passkey + ts))
}

type pushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type pushReply struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// InitiatePush asks the provider to prompt the payer's phone for the given
// amount. The reference travels as the external account reference so the
// payer sees what they are paying for.
func (c *Client) InitiatePush(ctx context.Context, phone string, amount decimal.Decimal, reference, description string) (*PushResult, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	token, err := c.token(ctx)
	if err != nil {
		observability.GatewayRequests.WithLabelValues("auth_error").Inc()
		return nil, err
	}

	ts := c.clock.Now().Format(timestampLayout)
	payload := pushRequest{
		BusinessShortCode: c.shortcode,
		Password:          c.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount.Round(0).String(),
		PartyA:            normalized,
		PartyB:            c.shortcode,
		PhoneNumber:       normalized,
		CallBackURL:       c.callbackURL,
		AccountReference:  reference,
		TransactionDesc:   description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal push request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build push request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		observability.GatewayRequests.WithLabelValues("network_error").Inc()
		return nil, errors.CombineErrors(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token invalidated server-side; drop the cache so the next attempt
		// re-authenticates.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		observability.GatewayRequests.WithLabelValues("auth_error").Inc()
		return nil, ErrAuth
	}

	var reply pushReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		observability.GatewayRequests.WithLabelValues("bad_reply").Inc()
		return nil, errors.Wrap(err, "decode push reply")
	}

	if resp.StatusCode != http.StatusOK || reply.ResponseCode != "0" {
		observability.GatewayRequests.WithLabelValues("rejected").Inc()
		code := reply.ResponseCode
		desc := reply.ResponseDescription
		if reply.ErrorCode != "" {
			code, desc = reply.ErrorCode, reply.ErrorMessage
		}
		return nil, &RejectionError{Code: code, Desc: desc}
	}

	observability.GatewayRequests.WithLabelValues("accepted").Inc()
	return &PushResult{
		MerchantRequestID: reply.MerchantRequestID,
		CheckoutRequestID: reply.CheckoutRequestID,
		ResponseDesc:      reply.ResponseDescription,
	}, nil
}
