package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// SourceKind identifies the payment rail an order arrived through.
type SourceKind string

const (
	SourceGateway      SourceKind = "gateway"
	SourceBankTransfer SourceKind = "bank_transfer"
)

// DefaultFiscalCodeAttribute is the storefront order meta key used when a tenant does not name its own.
const DefaultFiscalCodeAttribute = "billing_cf"

var validTablePrefix = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Config is the static wiring of one storefront tenant. It is built once at
// startup and passed around by value.
type Config struct {
	Key                 string     `json:"key"`
	StorefrontDB        string     `json:"storefront_db"`
	TablePrefix         string     `json:"table_prefix"`
	LedgerDB            string     `json:"ledger_db"`
	FiscalCodeAttribute string     `json:"fiscal_code_attribute,omitempty"`
	Source              SourceKind `json:"source"`
	// InvoicePrefix is the tag the storefront prepends to gateway invoice ids.
	// Empty means Key.
	InvoicePrefix string `json:"invoice_prefix,omitempty"`
}

// FiscalCodeAttr returns the configured fiscal code meta key or the default.
func (c Config) FiscalCodeAttr() string {
	if strings.TrimSpace(c.FiscalCodeAttribute) == "" {
		return DefaultFiscalCodeAttribute
	}
	return c.FiscalCodeAttribute
}

func (c Config) invoiceTag() string {
	if c.InvoicePrefix != "" {
		return c.InvoicePrefix
	}
	return c.Key
}

// IsGateway reports whether orders of this tenant are gateway-sourced.
func (c Config) IsGateway() bool {
	return c.Source == SourceGateway
}

// WithSource returns a copy of c bound to the given payment rail.
func (c Config) WithSource(kind SourceKind) Config {
	c.Source = kind
	return c
}

// Validate checks that c carries enough wiring to reach the storefront.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.StorefrontDB) == "" {
		missing = append(missing, "storefront_db")
	}
	if strings.TrimSpace(c.TablePrefix) == "" {
		missing = append(missing, "table_prefix")
	}
	if len(missing) > 0 {
		return fmt.Errorf("tenant %s: missing %s", c.Key, strings.Join(missing, ", "))
	}
	if !validTablePrefix.MatchString(c.TablePrefix) {
		return fmt.Errorf("tenant %s: invalid table prefix %q", c.Key, c.TablePrefix)
	}
	return nil
}

// Registry is the read-only set of configured tenants.
type Registry struct {
	tenants []Config
	byKey   map[string]Config
}

// NewRegistry validates identity fields and indexes tenants by key. Missing
// storefront wiring is not rejected here; the reconciler reports it per order.
func NewRegistry(configs []Config) (*Registry, error) {
	r := &Registry{byKey: make(map[string]Config, len(configs))}
	for _, c := range configs {
		c.Key = strings.TrimSpace(c.Key)
		if c.Key == "" {
			return nil, errors.New("tenant key is required")
		}
		if _, dup := r.byKey[c.Key]; dup {
			return nil, fmt.Errorf("duplicate tenant key %s", c.Key)
		}
		if !validTablePrefix.MatchString(c.TablePrefix) {
			return nil, fmt.Errorf("tenant %s: invalid table prefix %q", c.Key, c.TablePrefix)
		}
		switch c.Source {
		case "":
			c.Source = SourceGateway
		case SourceGateway, SourceBankTransfer:
		default:
			return nil, fmt.Errorf("tenant %s: unknown source %q", c.Key, c.Source)
		}
		r.byKey[c.Key] = c
		r.tenants = append(r.tenants, c)
	}
	sort.Slice(r.tenants, func(i, j int) bool { return r.tenants[i].Key < r.tenants[j].Key })
	return r, nil
}

// Lookup returns the tenant with the given key.
func (r *Registry) Lookup(key string) (Config, bool) {
	c, ok := r.byKey[key]
	return c, ok
}

// All returns every tenant ordered by key.
func (r *Registry) All() []Config {
	out := make([]Config, len(r.tenants))
	copy(out, r.tenants)
	return out
}

// MatchInvoice maps a gateway invoice id such as "PF7199" to its tenant and
// storefront order id. The remainder after the tag must be all digits; when
// several tags match, the longest wins.
func (r *Registry) MatchInvoice(invoiceID string) (Config, string, bool) {
	invoiceID = strings.TrimSpace(invoiceID)
	var (
		best    Config
		orderID string
		found   bool
	)
	for _, c := range r.tenants {
		tag := c.invoiceTag()
		if tag == "" || !strings.HasPrefix(invoiceID, tag) {
			continue
		}
		rest := invoiceID[len(tag):]
		if !isDigits(rest) {
			continue
		}
		if !found || len(tag) > len(best.invoiceTag()) {
			best, orderID, found = c, rest, true
		}
	}
	return best, orderID, found
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
