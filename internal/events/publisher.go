// Package events announces committed orders on an AMQP exchange.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/order"
)

// RoutingKeyOrderCreated is the routing key of order.created events.
const RoutingKeyOrderCreated = "order.created"

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ checkout.Publisher = (*Publisher)(nil)

// Publisher implements checkout.Publisher on RabbitMQ.
type Publisher struct {
	ch       channel
	exchange string
}

// NewPublisher returns a Publisher sending to exchange over ch.
func NewPublisher(ch channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

// Setup declares the durable topic exchange events are published to.
func Setup(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declare exchange %q", exchange)
	}
	return nil
}

// OrderCreated publishes a persistent order.created message.
func (p *Publisher) OrderCreated(ctx context.Context, o *order.Order) error {
	err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyOrderCreated, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    o.ID,
		Timestamp:    o.CreatedAt,
		Type:         RoutingKeyOrderCreated,
		Body:         EncodeOrderCreated(o),
	})
	if err != nil {
		return errors.Wrapf(err, "publish order %s", o.ID)
	}
	return nil
}

// EncodeOrderCreated renders the event payload of o.
func EncodeOrderCreated(o *order.Order) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("event", func(e *jx.Encoder) { e.Str(RoutingKeyOrderCreated) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("shop_id", func(e *jx.Encoder) { e.Str(o.ShopID) })
		e.Field("session_id", func(e *jx.Encoder) { e.Str(o.SessionID) })
		if o.UserID != "" {
			e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
					})
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		if o.CouponID != "" {
			e.Field("coupon_id", func(e *jx.Encoder) { e.Str(o.CouponID) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return append([]byte(nil), e.Bytes()...)
}
