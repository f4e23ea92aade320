package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrGatewayCallFailed  = errors.New("payment gateway call failed")
	ErrInvalidCheckout    = errors.New("invalid checkout parameters")
	ErrInvalidSignature   = errors.New("event signature verification failed")
	ErrMissingCustomerRef = errors.New("gateway customer reference is required")
)

// CheckoutPurpose явно помечает, ради чего создана checkout-сессия; значение
// возвращается шлюзом в событии и определяет, как применять подтверждение.
type CheckoutPurpose string

const (
	PurposeEntry         CheckoutPurpose = "entry"
	PurposeWaitlistOffer CheckoutPurpose = "waitlist_offer"
	PurposeMembership    CheckoutPurpose = "membership"
)

// CheckoutParams описывает разовую оплату взноса. Все поля валидируются
// до обращения к шлюзу; произвольных metadata-словарей нет.
type CheckoutParams struct {
	AmountCents  int
	PayerEmail   string
	SuccessURL   string
	CancelURL    string
	Purpose      CheckoutPurpose
	TournamentID int
	UserID       int
	OfferRef     string // set only for waitlist offers
}

func (p CheckoutParams) validate() error {
	if p.AmountCents <= 0 {
		return ErrInvalidCheckout
	}
	if p.PayerEmail == "" || p.TournamentID <= 0 || p.UserID <= 0 {
		return ErrInvalidCheckout
	}
	switch p.Purpose {
	case PurposeEntry:
	case PurposeWaitlistOffer:
		if p.OfferRef == "" {
			return ErrInvalidCheckout
		}
	default:
		return ErrInvalidCheckout
	}
	return nil
}

// SubscriptionParams описывает оформление платного членства.
type SubscriptionParams struct {
	PriceRef   string
	PayerEmail string
	UserID     int
	SuccessURL string
	CancelURL  string
}

func (p SubscriptionParams) validate() error {
	if p.PriceRef == "" || p.PayerEmail == "" || p.UserID <= 0 {
		return ErrInvalidCheckout
	}
	return nil
}

// CheckoutSession — созданная шлюзом сессия. SessionID позже появится в
// событии подтверждения и служит платёжной ссылкой записи.
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// Gateway — тонкий адаптер платёжного шлюза. Все вызовы — удалённые и могут
// упасть; подтверждение оплаты никогда не приходит синхронно, только событием.
type Gateway interface {
	CreateOneOffCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreateSubscriptionCheckout(ctx context.Context, params SubscriptionParams) (*CheckoutSession, error)
	CreateBillingPortalSession(ctx context.Context, customerRef string) (string, error)
}

// SignPayload computes the hex HMAC-SHA256 the gateway attaches to
// webhook deliveries. Exposed for tests and local event replay tooling.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the webhook signature before any event is applied.
// Comparison is constant-time. Returns ErrInvalidSignature on any mismatch.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(expected, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
