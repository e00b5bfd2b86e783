package handler

import (
	"bytes"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/product"
)

// decodeBody walks the top-level JSON object of the request body, calling fn
// for every key. An empty body counts as an empty object.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read request body")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		if errors.Is(err, errBadRequest) {
			return err
		}
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func decodeSelection(d *jx.Decoder) ([]product.SelectedVariant, error) {
	selected := []product.SelectedVariant{}
	err := d.Arr(func(d *jx.Decoder) error {
		var sv product.SelectedVariant
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				sv.Name, err = d.Str()
			case "value":
				sv.Value, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		selected = append(selected, sv)
		return nil
	})
	return selected, err
}

type itemRequest struct {
	Quantity    int
	HasQuantity bool
	Selected    []product.SelectedVariant
}

func decodeItemRequest(r *http.Request) (itemRequest, error) {
	var req itemRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "quantity":
			req.Quantity, err = d.Int()
			req.HasQuantity = true
		case "selected_variants":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Selected, err = decodeSelection(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeAddress(d *jx.Decoder) (*order.Address, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	a := &order.Address{}
	fields := map[string]*string{
		"first_name":  &a.FirstName,
		"last_name":   &a.LastName,
		"email":       &a.Email,
		"phone":       &a.Phone,
		"address":     &a.Address,
		"apartment":   &a.Apartment,
		"city":        &a.City,
		"state":       &a.State,
		"country":     &a.Country,
		"postal_code": &a.PostalCode,
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		dst, ok := fields[key]
		if !ok || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	})
	return a, err
}

type checkoutRequest struct {
	Billing       *order.Address
	Shipping      *order.Address
	PaymentTypeID string
}

func decodeCheckoutRequest(r *http.Request) (checkoutRequest, error) {
	var req checkoutRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "billing_address":
			req.Billing, err = decodeAddress(d)
		case "shipping_address":
			req.Shipping, err = decodeAddress(d)
		case "payment_type_id":
			req.PaymentTypeID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// decodeStrings reads the named string fields of a flat object.
func decodeStrings(r *http.Request, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		for _, n := range names {
			if n == key {
				v, err := d.Str()
				out[key] = v
				return err
			}
		}
		return d.Skip()
	})
	return out, err
}
