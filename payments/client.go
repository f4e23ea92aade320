package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Client реализует Gateway поверх REST API провайдера.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type checkoutRequest struct {
	Mode         string `json:"mode"`
	AmountCents  int    `json:"amount_cents,omitempty"`
	PriceRef     string `json:"price_ref,omitempty"`
	CustomerMail string `json:"customer_email"`
	SuccessURL   string `json:"success_url,omitempty"`
	CancelURL    string `json:"cancel_url,omitempty"`
	Purpose      string `json:"purpose"`
	TournamentID string `json:"tournament_id,omitempty"`
	UserID       string `json:"user_id"`
	OfferRef     string `json:"offer_ref,omitempty"`
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

func (c *Client) CreateOneOffCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	req := checkoutRequest{
		Mode:         "payment",
		AmountCents:  params.AmountCents,
		CustomerMail: params.PayerEmail,
		SuccessURL:   params.SuccessURL,
		CancelURL:    params.CancelURL,
		Purpose:      string(params.Purpose),
		TournamentID: strconv.Itoa(params.TournamentID),
		UserID:       strconv.Itoa(params.UserID),
		OfferRef:     params.OfferRef,
	}

	var resp checkoutResponse
	if err := c.post(ctx, "/v1/checkout/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" || resp.RedirectURL == "" {
		return nil, fmt.Errorf("%w: gateway returned incomplete session", ErrGatewayCallFailed)
	}
	return &CheckoutSession{SessionID: resp.SessionID, RedirectURL: resp.RedirectURL}, nil
}

func (c *Client) CreateSubscriptionCheckout(ctx context.Context, params SubscriptionParams) (*CheckoutSession, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	req := checkoutRequest{
		Mode:         "subscription",
		PriceRef:     params.PriceRef,
		CustomerMail: params.PayerEmail,
		SuccessURL:   params.SuccessURL,
		CancelURL:    params.CancelURL,
		Purpose:      string(PurposeMembership),
		UserID:       strconv.Itoa(params.UserID),
	}

	var resp checkoutResponse
	if err := c.post(ctx, "/v1/checkout/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" || resp.RedirectURL == "" {
		return nil, fmt.Errorf("%w: gateway returned incomplete session", ErrGatewayCallFailed)
	}
	return &CheckoutSession{SessionID: resp.SessionID, RedirectURL: resp.RedirectURL}, nil
}

func (c *Client) CreateBillingPortalSession(ctx context.Context, customerRef string) (string, error) {
	if customerRef == "" {
		return "", ErrMissingCustomerRef
	}

	req := map[string]string{"customer_ref": customerRef}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/v1/billing-portal/sessions", req, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("%w: gateway returned empty portal url", ErrGatewayCallFailed)
	}
	return resp.URL, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayCallFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrGatewayCallFailed, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if c.logger != nil {
			c.logger.Error("gateway call rejected",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.String("body", string(respBody)),
			)
		}
		return fmt.Errorf("%w: status %d", ErrGatewayCallFailed, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrGatewayCallFailed, err)
	}
	return nil
}
