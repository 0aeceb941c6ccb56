package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one settled payment reported by the gateway.
type Transaction struct {
	ID              string          `json:"transaction_id"`
	InvoiceID       string          `json:"invoice_id,omitempty"`
	EventCode       string          `json:"event_code,omitempty"`
	Status          string          `json:"status,omitempty"`
	Date            time.Time       `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Fee             decimal.Decimal `json:"fee"`
	Currency        string          `json:"currency,omitempty"`
	PayerName       string          `json:"payer_name,omitempty"`
	PayerEmail      string          `json:"payer_email,omitempty"`
	PayerPhone      string          `json:"payer_phone,omitempty"`
	PayerCountry    string          `json:"payer_country,omitempty"`
	PayerAccountID  string          `json:"payer_account_id,omitempty"`
	BillingAddress  string          `json:"billing_address,omitempty"`
	BillingCity     string          `json:"billing_city,omitempty"`
	BillingState    string          `json:"billing_state,omitempty"`
	BillingPostal   string          `json:"billing_postal_code,omitempty"`
	ItemName        string          `json:"item_name,omitempty"`
	ItemCode        string          `json:"item_code,omitempty"`
	ItemDescription string          `json:"item_description,omitempty"`
}

// wire types of the reporting API

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type money struct {
	Currency string `json:"currency_code"`
	Value    string `json:"value"`
}

type transactionInfo struct {
	ID             string `json:"transaction_id"`
	EventCode      string `json:"transaction_event_code"`
	InitiationDate string `json:"transaction_initiation_date"`
	Amount         *money `json:"transaction_amount"`
	Fee            *money `json:"fee_amount"`
	Status         string `json:"transaction_status"`
	InvoiceID      string `json:"invoice_id"`
}

type payerInfo struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email_address"`
	Phone     *struct {
		CountryCode    string `json:"country_code"`
		NationalNumber string `json:"national_number"`
	} `json:"phone_number"`
	Name *struct {
		AlternateFullName string `json:"alternate_full_name"`
	} `json:"payer_name"`
	CountryCode string `json:"country_code"`
}

type shippingInfo struct {
	Address *struct {
		Line1      string `json:"line1"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
	} `json:"address"`
}

type cartInfo struct {
	Items []struct {
		Code        string `json:"item_code"`
		Name        string `json:"item_name"`
		Description string `json:"item_description"`
	} `json:"item_details"`
}

type transactionDetail struct {
	Transaction transactionInfo `json:"transaction_info"`
	Payer       payerInfo       `json:"payer_info"`
	Shipping    shippingInfo    `json:"shipping_info"`
	Cart        cartInfo        `json:"cart_info"`
}

type searchResponse struct {
	Details    []transactionDetail `json:"transaction_details"`
	Page       int                 `json:"page"`
	TotalPages int                 `json:"total_pages"`
}
