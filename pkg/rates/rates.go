package rates

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
)

// DefaultURL is the published rates document.
const DefaultURL = "https://raw.githubusercontent.com/nerc-project/rates/main/rates.yaml"

type rateValue struct {
	Value string `yaml:"value"`
	From  string `yaml:"from"`
	Until string `yaml:"until,omitempty"`
}

type rate struct {
	Name    string      `yaml:"name"`
	History []rateValue `yaml:"history"`
}

// Rates holds the parsed rates document.
type Rates struct {
	byName map[string][]rateValue
}

// Client fetches the rates document. It is constructed once by the driver
// and passed explicitly; there is no ambient global.
type Client struct {
	httpClient *http.Client
	url        string
}

func NewClient(httpClient *http.Client, url string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if url == "" {
		url = DefaultURL
	}
	return &Client{httpClient: httpClient, url: url}
}

// Fetch downloads and parses the rates document.
func (c *Client) Fetch(ctx context.Context) (*Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rates request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch rates: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rates response: %w", err)
	}
	return Parse(body)
}

// Parse decodes a rates document.
func Parse(data []byte) (*Rates, error) {
	var entries []rate
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse rates document: %w", err)
	}
	r := &Rates{byName: make(map[string][]rateValue, len(entries))}
	for _, e := range entries {
		for _, v := range e.History {
			if _, err := invoices.ParseMonth(v.From); err != nil {
				return nil, fmt.Errorf("rate %q: %w", e.Name, err)
			}
			if v.Until != "" {
				if _, err := invoices.ParseMonth(v.Until); err != nil {
					return nil, fmt.Errorf("rate %q: %w", e.Name, err)
				}
			}
		}
		r.byName[e.Name] = e.History
	}
	return r, nil
}

// ValueAt returns the raw value of the named rate effective at month. A rate
// value is effective in [from, until]; an absent until means still current.
func (r *Rates) ValueAt(name string, month invoices.Month) (string, error) {
	history, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown rate %q", name)
	}
	for _, v := range history {
		from := invoices.Month(v.From)
		if month.Before(from) {
			continue
		}
		if v.Until != "" && month.After(invoices.Month(v.Until)) {
			continue
		}
		return v.Value, nil
	}
	return "", fmt.Errorf("rate %q has no value at %s", name, month)
}

// DecimalAt returns the named rate as a money amount.
func (r *Rates) DecimalAt(name string, month invoices.Month) (money.Decimal, error) {
	raw, err := r.ValueAt(name, month)
	if err != nil {
		return money.Zero(), err
	}
	d, err := money.NewDecimal(raw)
	if err != nil {
		return money.Zero(), fmt.Errorf("rate %q at %s: %w", name, month, err)
	}
	return d, nil
}

// BoolAt returns the named rate as a boolean.
func (r *Rates) BoolAt(name string, month invoices.Month) (bool, error) {
	raw, err := r.ValueAt(name, month)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("rate %q at %s: %w", name, month, err)
	}
	return b, nil
}
