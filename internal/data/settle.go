package data

import (
	"context"
	"fmt"
	"time"

	"spinner/internal/biz"
	"spinner/internal/conf"

	jsoniter "github.com/json-iterator/go"
	"github.com/streadway/amqp"
	"github.com/yola1107/kratos/v2/log"
)

const (
	_defaultExchange   = "slot-settle"
	_defaultRoutingKey = "settle"
)

type settlePublisher struct {
	ch         *amqp.Channel
	exchange   string
	routingKey string
	log        *log.Helper
}

// NewSettlePublisher builds the settlement publisher. Without rabbitmq a
// nop publisher is returned and settlements stay local (order repo only).
func NewSettlePublisher(c *conf.Data, data *Data, logger log.Logger) biz.SettlePublisher {
	helper := log.NewHelper(logger)
	if data.mq == nil {
		return nopSettlePublisher{}
	}
	exchange, routingKey := _defaultExchange, _defaultRoutingKey
	if c != nil && c.Rabbitmq != nil {
		if c.Rabbitmq.Exchange != "" {
			exchange = c.Rabbitmq.Exchange
		}
		if c.Rabbitmq.RoutingKey != "" {
			routingKey = c.Rabbitmq.RoutingKey
		}
	}
	ch, err := data.mq.Channel()
	if err != nil {
		helper.Errorf("open rabbitmq channel: %v, settlements are not published", err)
		return nopSettlePublisher{}
	}
	if err = ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		helper.Errorf("declare exchange %s: %v, settlements are not published", exchange, err)
		_ = ch.Close()
		return nopSettlePublisher{}
	}
	return &settlePublisher{ch: ch, exchange: exchange, routingKey: routingKey, log: helper}
}

func (p *settlePublisher) PublishSettlement(_ context.Context, s *biz.Settlement) error {
	body, err := jsoniter.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settlement %s: %w", s.OrderID, err)
	}
	return p.ch.Publish(p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    s.OrderID,
	})
}

type nopSettlePublisher struct{}

func (nopSettlePublisher) PublishSettlement(context.Context, *biz.Settlement) error { return nil }
