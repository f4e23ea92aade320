package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedEvent = errors.New("malformed gateway event")
	ErrUnknownEvent   = errors.New("unknown gateway event kind")
)

// EventKind — закрытое множество видов событий шлюза. Диспетчеризация по нему
// исчерпывающая; неизвестный вид никогда не приводит к мутациям.
type EventKind string

const (
	EventCheckoutCompleted    EventKind = "checkout.completed"
	EventCheckoutExpired      EventKind = "checkout.expired"
	EventSubscriptionCreated  EventKind = "subscription.created"
	EventSubscriptionUpdated  EventKind = "subscription.updated"
	EventSubscriptionDeleted  EventKind = "subscription.deleted"
	EventInvoicePaymentFailed EventKind = "invoice.payment_failed"
	EventChargeRefunded       EventKind = "charge.refunded"
)

// CheckoutCompletedData — полезная нагрузка завершённой checkout-сессии.
// Purpose различает оплату взноса, конверсию оффера и оформление членства.
type CheckoutCompletedData struct {
	SessionID       string          `json:"session_id"`
	Purpose         CheckoutPurpose `json:"purpose"`
	TournamentID    int             `json:"tournament_id,string,omitempty"`
	UserID          int             `json:"user_id,string"`
	AmountCents     int             `json:"amount_cents"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerRef     string          `json:"customer_ref,omitempty"`
	SubscriptionRef string          `json:"subscription_ref,omitempty"`
	Role            string          `json:"role,omitempty"`
	OfferRef        string          `json:"offer_ref,omitempty"`
}

type CheckoutExpiredData struct {
	SessionID string `json:"session_id"`
}

type SubscriptionData struct {
	SubscriptionRef string `json:"subscription_ref"`
	CustomerRef     string `json:"customer_ref,omitempty"`
	UserID          int    `json:"user_id,string,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	Role            string `json:"role,omitempty"`
	Status          string `json:"status,omitempty"`
	PeriodEndUnix   int64  `json:"period_end,omitempty"`
}

// PeriodEnd converts the unix timestamp, nil when the gateway sent none.
func (d *SubscriptionData) PeriodEnd() *time.Time {
	if d.PeriodEndUnix == 0 {
		return nil
	}
	t := time.Unix(d.PeriodEndUnix, 0).UTC()
	return &t
}

type InvoiceFailedData struct {
	SubscriptionRef string `json:"subscription_ref"`
}

type ChargeRefundedData struct {
	SessionID string `json:"session_id"`
}

// Event — разобранное событие шлюза: тегированный вариант, заполнено ровно
// одно поле полезной нагрузки, соответствующее Kind.
type Event struct {
	ID   string
	Kind EventKind

	CheckoutCompleted *CheckoutCompletedData
	CheckoutExpired   *CheckoutExpiredData
	Subscription      *SubscriptionData
	InvoiceFailed     *InvoiceFailedData
	ChargeRefunded    *ChargeRefundedData
}

type eventEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent декодирует сырое тело вебхука в типизированное событие.
// Подпись должна быть проверена ДО вызова: парсер не аутентифицирует.
func ParseEvent(raw []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}

	evt := &Event{ID: env.ID, Kind: EventKind(env.Type)}

	decode := func(dst interface{}) error {
		if len(env.Data) == 0 {
			return fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, env.ID)
		}
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return fmt.Errorf("%w: event %s: %v", ErrMalformedEvent, env.ID, err)
		}
		return nil
	}

	switch evt.Kind {
	case EventCheckoutCompleted:
		evt.CheckoutCompleted = &CheckoutCompletedData{}
		if err := decode(evt.CheckoutCompleted); err != nil {
			return nil, err
		}
		if evt.CheckoutCompleted.SessionID == "" {
			return nil, fmt.Errorf("%w: checkout.completed without session_id", ErrMalformedEvent)
		}
	case EventCheckoutExpired:
		evt.CheckoutExpired = &CheckoutExpiredData{}
		if err := decode(evt.CheckoutExpired); err != nil {
			return nil, err
		}
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		evt.Subscription = &SubscriptionData{}
		if err := decode(evt.Subscription); err != nil {
			return nil, err
		}
		if evt.Subscription.SubscriptionRef == "" {
			return nil, fmt.Errorf("%w: subscription event without subscription_ref", ErrMalformedEvent)
		}
	case EventInvoicePaymentFailed:
		evt.InvoiceFailed = &InvoiceFailedData{}
		if err := decode(evt.InvoiceFailed); err != nil {
			return nil, err
		}
	case EventChargeRefunded:
		evt.ChargeRefunded = &ChargeRefundedData{}
		if err := decode(evt.ChargeRefunded); err != nil {
			return nil, err
		}
	default:
		return evt, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	return evt, nil
}
