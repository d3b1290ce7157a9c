package dto

// BillingWebhook is the envelope posted by the subscription billing provider.
type BillingWebhook struct {
	APIVersion string       `json:"api_version"`
	Event      BillingEvent `json:"event"`
}

type BillingEvent struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	CustomerRef   string `json:"customer_ref"`
	UserID        string `json:"user_id"`
	Plan          string `json:"plan"`
	PeriodStartMs int64  `json:"period_start_ms"`
	PeriodEndMs   int64  `json:"period_end_ms"`
	Currency      string `json:"currency"`
	AmountCents   int64  `json:"amount_cents"`
}
