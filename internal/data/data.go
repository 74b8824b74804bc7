package data

import (
	"fmt"
	"net/url"

	"spinner/internal/conf"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	kredis "github.com/yola1107/kratos/v2/library/db/redis"
	kxorm "github.com/yola1107/kratos/v2/library/db/xorm"
	"github.com/yola1107/kratos/v2/log"
	"xorm.io/xorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(NewData, NewRedis, NewMysql, NewRabbitMQ, NewOrderRepo, NewSceneStore, NewSettlePublisher)

// Data holds shared storage handles. Any of them may be nil when the
// corresponding config section is absent; repos fall back to in-process
// implementations so the server still runs offline.
type Data struct {
	db  *xorm.Engine
	rdb redis.UniversalClient
	mq  *amqp.Connection
}

// NewData .
func NewData(c *conf.Data, logger log.Logger, db *xorm.Engine, rdb redis.UniversalClient, mq *amqp.Connection) (*Data, func(), error) {
	cleanup := func() {
		log.NewHelper(logger).Info("closing the data resources")
	}
	return &Data{
		db:  db,
		rdb: rdb,
		mq:  mq,
	}, cleanup, nil
}

func NewRedis(c *conf.Data, logger log.Logger) redis.UniversalClient {
	if c == nil || c.Redis == nil || c.Redis.Addr == "" {
		log.NewHelper(logger).Info("redis not configured, scene store runs in memory")
		return nil
	}
	return kredis.NewClient(kredis.WithAddress(c.Redis.Addr))
}

func NewMysql(c *conf.Data, logger log.Logger) (*xorm.Engine, func(), error) {
	if c == nil || c.Database == nil || c.Database.Source == "" {
		log.NewHelper(logger).Info("database not configured, order repo runs in memory")
		return nil, func() {}, nil
	}
	engine, err := kxorm.NewEngine(
		kxorm.WithDriver(c.Database.Driver),
		kxorm.WithDataSource(c.Database.Source),
	)
	if err != nil {
		return nil, nil, err
	}
	return engine, func() { engine.Close() }, nil
}

func NewRabbitMQ(c *conf.Data, logger log.Logger) (*amqp.Connection, func(), error) {
	if c == nil || c.Rabbitmq == nil || c.Rabbitmq.Host == "" {
		log.NewHelper(logger).Info("rabbitmq not configured, settlements are not published")
		return nil, func() {}, nil
	}
	mq := c.Rabbitmq
	addr := fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		url.QueryEscape(mq.Username), url.QueryEscape(mq.Password), mq.Host, mq.Port, mq.Vhost)
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, func() { conn.Close() }, nil
}
