package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopcart/internal/domain/order"
)

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func parseOrderFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	f := order.Filter{
		ShopID: r.PathValue("shop_id"),
		Status: order.Status(q.Get("status")),
	}
	for name, dst := range map[string]*int{"page": &f.Page, "limit": &f.Limit} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return f, badRequest(name + " must be an integer")
			}
			*dst = n
		}
	}
	for name, dst := range map[string]*time.Time{"start_date": &f.From, "end_date": &f.To} {
		if v := q.Get(name); v != "" {
			t, err := parseTime(v)
			if err != nil {
				return f, badRequest(name + " must be a date or RFC 3339 timestamp")
			}
			*dst = t
		}
	}
	return f, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseOrderFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.Orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range page.Orders {
						encodeOrder(e, &page.Orders[i])
					}
				})
			})
			e.Field("pagination", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("total", func(e *jx.Encoder) { e.Int(page.Total) })
					e.Field("page", func(e *jx.Encoder) { e.Int(page.Page) })
					e.Field("limit", func(e *jx.Encoder) { e.Int(page.Limit) })
					e.Field("pages", func(e *jx.Encoder) { e.Int(page.Pages()) })
				})
			})
		})
	})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	body, err := decodeStrings(r, "status")
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Orders.UpdateStatus(r.Context(), r.PathValue("shop_id"), r.PathValue("order_id"), order.Status(body["status"]))
	if err != nil {
		writeError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.String("admin_id", adminFrom(r.Context()).ID),
	)
	writeData(w, http.StatusOK, "Order status updated", func(e *jx.Encoder) { encodeOrder(e, o) })
}
