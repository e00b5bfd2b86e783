// Package seed turns a YAML shop catalog into domain entities.
package seed

import (
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/shopcart/db"
	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/payment"
	"github.com/xenking/shopcart/internal/domain/product"
)

// Catalog is the file format. Money is written as strings so YAML floats
// never touch prices.
type Catalog struct {
	Shop struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"shop"`
	Products     []productEntry `yaml:"products"`
	Coupons      []couponEntry  `yaml:"coupons"`
	PaymentTypes []paymentEntry `yaml:"payment_types"`
	Admins       []adminEntry   `yaml:"admins"`
}

type productEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Quantity int    `yaml:"quantity"`
	Variants []struct {
		Name    string `yaml:"name"`
		Options []struct {
			Name            string `yaml:"name"`
			PriceAdjustment string `yaml:"price_adjustment"`
			Quantity        int    `yaml:"quantity"`
			SKU             string `yaml:"sku"`
		} `yaml:"options"`
	} `yaml:"variants"`
}

type couponEntry struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Value       string `yaml:"value"`
	MinOrder    string `yaml:"min_order"`
	MaxDiscount string `yaml:"max_discount"`
	UsageLimit  *int   `yaml:"usage_limit"`
	ValidDays   int    `yaml:"valid_days"`
}

type paymentEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type adminEntry struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// Data is a catalog resolved into domain entities of one shop.
type Data struct {
	ShopID       string
	ShopName     string
	Products     []*product.Product
	Coupons      []*coupon.Coupon
	PaymentTypes []*payment.PaymentType
	Admins       []*auth.Admin
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	if c.Shop.ID == "" {
		return nil, errors.New("catalog: shop.id is required")
	}
	return &c, nil
}

// Load reads a catalog file, or the embedded demo catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(db.DemoCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	return Parse(data)
}

// StableID derives a deterministic id so reseeding the same shop updates rows
// instead of duplicating them.
func StableID(shopID, kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(shopID+"/"+kind+"/"+strings.ToLower(key))).String()
}

func money(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", field)
	}
	return d, nil
}

// Resolve converts the catalog into entities. Coupon windows start at now and
// admin passwords are hashed with bcrypt.
func (c *Catalog) Resolve(now time.Time) (*Data, error) {
	d := &Data{ShopID: c.Shop.ID, ShopName: c.Shop.Name}

	for _, e := range c.Products {
		p, err := e.resolve(c.Shop.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "product %q", e.ID)
		}
		d.Products = append(d.Products, p)
	}
	for _, e := range c.Coupons {
		cp, err := e.resolve(c.Shop.ID, now)
		if err != nil {
			return nil, errors.Wrapf(err, "coupon %q", e.Code)
		}
		d.Coupons = append(d.Coupons, cp)
	}
	for _, e := range c.PaymentTypes {
		d.PaymentTypes = append(d.PaymentTypes, &payment.PaymentType{
			ID:          e.ID,
			ShopID:      c.Shop.ID,
			Name:        e.Name,
			Description: e.Description,
			IsActive:    true,
		})
	}
	for _, e := range c.Admins {
		hash, err := auth.HashPassword(e.Password)
		if err != nil {
			return nil, errors.Wrapf(err, "admin %q", e.Email)
		}
		d.Admins = append(d.Admins, &auth.Admin{
			ID:           StableID(c.Shop.ID, "admin", e.Email),
			ShopID:       c.Shop.ID,
			Email:        strings.ToLower(e.Email),
			PasswordHash: hash,
			Role:         e.Role,
			IsActive:     true,
		})
	}
	return d, nil
}

func (e productEntry) resolve(shopID string) (*product.Product, error) {
	price, err := money("price", e.Price)
	if err != nil {
		return nil, err
	}
	p := &product.Product{
		ID:       e.ID,
		ShopID:   shopID,
		Name:     e.Name,
		Price:    price,
		Quantity: e.Quantity,
		Status:   product.StatusActive,
	}
	for _, v := range e.Variants {
		variant := product.Variant{Name: v.Name}
		for _, o := range v.Options {
			adj, err := money("price_adjustment", o.PriceAdjustment)
			if err != nil {
				return nil, err
			}
			variant.Options = append(variant.Options, product.Option{
				Name:            o.Name,
				PriceAdjustment: adj,
				Quantity:        o.Quantity,
				SKU:             o.SKU,
			})
		}
		p.Variants = append(p.Variants, variant)
	}
	return p, nil
}

func (e couponEntry) resolve(shopID string, now time.Time) (*coupon.Coupon, error) {
	kind := coupon.DiscountType(e.Type)
	if kind != coupon.DiscountPercentage && kind != coupon.DiscountFixed {
		return nil, errors.Errorf("unknown discount type %q", e.Type)
	}
	value, err := money("value", e.Value)
	if err != nil {
		return nil, err
	}
	minOrder, err := money("min_order", e.MinOrder)
	if err != nil {
		return nil, err
	}
	cp := &coupon.Coupon{
		ID:             StableID(shopID, "coupon", e.Code),
		ShopID:         shopID,
		Code:           coupon.NormalizeCode(e.Code),
		Description:    e.Description,
		DiscountType:   kind,
		DiscountValue:  value,
		MinOrderAmount: minOrder,
		StartDate:      now,
		EndDate:        now.AddDate(0, 0, max(e.ValidDays, 1)),
		IsActive:       true,
		UsageLimit:     e.UsageLimit,
	}
	if e.MaxDiscount != "" {
		capAmount, err := money("max_discount", e.MaxDiscount)
		if err != nil {
			return nil, err
		}
		cp.MaxDiscountAmount = &capAmount
	}
	return cp, nil
}
