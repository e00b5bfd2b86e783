package checkout

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Rater prices shipping and tax for an address country. Implementations are
// policy stand-ins for a real rating service.
type Rater interface {
	Shipping(country string) decimal.Decimal
	TaxRate(country string) decimal.Decimal
}

// Rate is the flat shipping charge and tax rate of one country.
type Rate struct {
	Shipping decimal.Decimal
	Tax      decimal.Decimal
}

// FlatRates looks rates up by exact country name and falls back to Default.
type FlatRates struct {
	Countries map[string]Rate
	Default   Rate
}

var _ Rater = (*FlatRates)(nil)

// DefaultRates returns the built-in rate table.
func DefaultRates() *FlatRates {
	return &FlatRates{
		Countries: map[string]Rate{
			"United States":  {Shipping: decimal.RequireFromString("9.99"), Tax: decimal.RequireFromString("0.08")},
			"Canada":         {Shipping: decimal.RequireFromString("14.99"), Tax: decimal.RequireFromString("0.13")},
			"United Kingdom": {Shipping: decimal.RequireFromString("19.99"), Tax: decimal.RequireFromString("0.20")},
		},
		Default: Rate{Shipping: decimal.RequireFromString("29.99"), Tax: decimal.RequireFromString("0.10")},
	}
}

func (r *FlatRates) Shipping(country string) decimal.Decimal {
	if rate, ok := r.Countries[country]; ok {
		return rate.Shipping
	}
	return r.Default.Shipping
}

func (r *FlatRates) TaxRate(country string) decimal.Decimal {
	if rate, ok := r.Countries[country]; ok {
		return rate.Tax
	}
	return r.Default.Tax
}

type rateFile struct {
	Default   rateEntry            `yaml:"default"`
	Countries map[string]rateEntry `yaml:"countries"`
}

type rateEntry struct {
	Shipping string `yaml:"shipping"`
	Tax      string `yaml:"tax"`
}

func (e rateEntry) parse(fallback Rate) (Rate, error) {
	r := fallback
	if e.Shipping != "" {
		v, err := decimal.NewFromString(e.Shipping)
		if err != nil {
			return Rate{}, errors.Wrap(err, "shipping")
		}
		r.Shipping = v
	}
	if e.Tax != "" {
		v, err := decimal.NewFromString(e.Tax)
		if err != nil {
			return Rate{}, errors.Wrap(err, "tax")
		}
		r.Tax = v
	}
	return r, nil
}

// ParseRates reads a YAML rate table. Entries override the built-in table;
// a country entry missing a field inherits it from the default rate.
//
//	default:
//	  shipping: "29.99"
//	  tax: "0.10"
//	countries:
//	  Germany:
//	    shipping: "12.50"
//	    tax: "0.19"
func ParseRates(data []byte) (*FlatRates, error) {
	var f rateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode rates")
	}

	rates := DefaultRates()
	def, err := f.Default.parse(rates.Default)
	if err != nil {
		return nil, errors.Wrap(err, "default rate")
	}
	rates.Default = def

	for country, entry := range f.Countries {
		r, err := entry.parse(def)
		if err != nil {
			return nil, errors.Wrapf(err, "rate for %q", country)
		}
		rates.Countries[country] = r
	}
	return rates, nil
}

// LoadRates reads a YAML rate table from path.
func LoadRates(path string) (*FlatRates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read rates file")
	}
	return ParseRates(data)
}
