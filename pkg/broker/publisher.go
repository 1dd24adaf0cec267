package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/feed-collector/pkg/config"
)

// Event 每条入库记录对应一条消息
type Event struct {
	ID          string         `json:"id"`
	Collector   string         `json:"collector"`
	Table       string         `json:"table"`
	Record      map[string]any `json:"record"`
	CollectedAt time.Time      `json:"collected_at"`
}

// channel amqp.Channel 中用到的部分
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc 建立连接并返回通道和连接关闭函数
type dialFunc func(url string) (channel, func() error, error)

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// Publisher 把入库记录扇出到 AMQP exchange；连接惰性建立，失败后下次发布时重连
type Publisher struct {
	cfg       config.BrokerConfig
	dial      dialFunc
	ch        channel
	closeConn func() error
	mu        sync.Mutex
	isClosed  bool
	logger    *zap.Logger
	now       func() time.Time
}

func NewPublisher(cfg config.BrokerConfig, logger *zap.Logger) *Publisher {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "fanout"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, dial: dialAMQP, logger: logger, now: time.Now}
}

func (p *Publisher) connectLocked() error {
	if p.isClosed {
		return errors.New("publisher is closed")
	}
	if p.ch != nil {
		return nil
	}
	ch, closeConn, err := p.dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	err = ch.ExchangeDeclare(
		p.cfg.Exchange,     // name
		p.cfg.ExchangeType, // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		ch.Close()
		closeConn()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	p.ch, p.closeConn = ch, closeConn
	p.logger.Info("broker connected", zap.String("exchange", p.cfg.Exchange))
	return nil
}

// Publish 发布一条记录；路由键未配置时使用表名
func (p *Publisher) Publish(ctx context.Context, collector, table string, rec map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		return err
	}

	ev := Event{
		ID:          uuid.NewString(),
		Collector:   collector,
		Table:       table,
		Record:      rec,
		CollectedAt: p.now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := p.cfg.RoutingKey
	if key == "" {
		key = table
	}
	err = p.ch.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.CollectedAt,
		Body:         body,
	})
	if err != nil {
		// 丢弃通道，下次发布重新连接
		p.resetLocked()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *Publisher) resetLocked() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.closeConn != nil {
		if err := p.closeConn(); err != nil {
			errs = append(errs, err)
		}
	}
	p.ch, p.closeConn = nil, nil
	return errors.Join(errs...)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return nil
	}
	p.isClosed = true
	return p.resetLocked()
}
