package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"enrollment-reconciler/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxResponseSize = 10 << 20
	dateLayout      = "2006-01-02T15:04:05-0700"
)

var (
	ErrNotConfigured = errors.New("gateway credentials not configured")
	ErrUnauthorized  = errors.New("gateway rejected credentials")
	ErrRequestFailed = errors.New("gateway request failed")
)

// Client pulls settled transactions from the gateway reporting API.
type Client struct {
	baseURL  string
	clientID string
	secret   string
	pageSize int
	maxPages int
	http     *http.Client
	log      *zap.Logger
}

// NewClient builds a client whose dialer honours the connect timeout and
// whose requests are bounded by the request timeout.
func NewClient(cfg config.GatewayConfig, log *zap.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	return &Client{
		baseURL:  cfg.GatewayBaseURL(),
		clientID: cfg.ClientID,
		secret:   cfg.Secret,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		http:     &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		log:      log,
	}, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("gateway: failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if status >= 400 {
		return "", fmt.Errorf("%w: token HTTP %d", ErrRequestFailed, status)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("gateway: failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token missing from response", ErrRequestFailed)
	}
	return tok.AccessToken, nil
}

// Transactions returns settled transactions with a positive amount in [from, to].
func (c *Client) Transactions(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var out []Transaction
	for page := 1; page <= c.maxPages; page++ {
		q := url.Values{
			"start_date":         {from.UTC().Format(time.RFC3339)},
			"end_date":           {to.UTC().Format(time.RFC3339)},
			"fields":             {"all"},
			"transaction_status": {"S"},
			"page_size":          {strconv.Itoa(c.pageSize)},
			"page":               {strconv.Itoa(page)},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/reporting/transactions?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("gateway: failed to create search request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Content-Type", "application/json")

		body, status, err := c.do(req)
		if err != nil {
			return nil, err
		}
		if status >= 400 {
			return nil, fmt.Errorf("%w: search HTTP %d", ErrRequestFailed, status)
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("gateway: failed to parse search response: %w", err)
		}
		for _, d := range resp.Details {
			if tx, ok := convert(d); ok {
				out = append(out, tx)
			}
		}

		c.log.Debug("gateway page fetched", zap.Int("page", page), zap.Int("total_pages", resp.TotalPages), zap.Int("rows", len(resp.Details)))
		if resp.TotalPages <= page {
			return out, nil
		}
	}

	c.log.Warn("gateway page cap reached, remaining pages skipped", zap.Int("max_pages", c.maxPages))
	return out, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, fmt.Errorf("gateway: failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// convert drops rows whose amount is missing, non-numeric or not positive.
func convert(d transactionDetail) (Transaction, bool) {
	ti := d.Transaction
	if ti.Amount == nil {
		return Transaction{}, false
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(ti.Amount.Value))
	if err != nil || !amount.IsPositive() {
		return Transaction{}, false
	}

	tx := Transaction{
		ID:             ti.ID,
		InvoiceID:      strings.TrimSpace(ti.InvoiceID),
		EventCode:      ti.EventCode,
		Status:         ti.Status,
		Amount:         amount,
		Currency:       ti.Amount.Currency,
		PayerEmail:     d.Payer.Email,
		PayerCountry:   d.Payer.CountryCode,
		PayerAccountID: d.Payer.AccountID,
	}
	if ti.Fee != nil {
		if fee, err := decimal.NewFromString(ti.Fee.Value); err == nil {
			tx.Fee = fee
		}
	}
	if t, err := parseDate(ti.InitiationDate); err == nil {
		tx.Date = t
	} else {
		tx.Date = time.Now().UTC()
	}
	if d.Payer.Name != nil {
		tx.PayerName = d.Payer.Name.AlternateFullName
	}
	if p := d.Payer.Phone; p != nil && p.CountryCode != "" && p.NationalNumber != "" {
		tx.PayerPhone = "+" + p.CountryCode + " " + p.NationalNumber
	}
	if a := d.Shipping.Address; a != nil {
		tx.BillingAddress = a.Line1
		tx.BillingCity = a.City
		tx.BillingState = a.State
		tx.BillingPostal = a.PostalCode
	}
	if len(d.Cart.Items) > 0 {
		item := d.Cart.Items[0]
		tx.ItemName = item.Name
		tx.ItemCode = item.Code
		tx.ItemDescription = item.Description
	}
	return tx, true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
