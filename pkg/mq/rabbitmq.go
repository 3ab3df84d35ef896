// Package mq 订单事件发布 (RabbitMQ topic exchange)
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher 事件发布接口，事务提交之后调用
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// NopPublisher 未配置 RabbitMQ 时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// amqpChannel 发布用到的通道方法，测试里替换
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func() (amqpChannel, io.Closer, error)

type RabbitPublisher struct {
	mu       sync.Mutex
	dial     dialFunc
	conn     io.Closer
	ch       amqpChannel
	exchange string
}

// NewRabbitPublisher 连接 RabbitMQ 并声明 topic exchange
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	p := &RabbitPublisher{
		exchange: exchange,
		dial: func() (amqpChannel, io.Closer, error) {
			return dialExchange(url, exchange)
		},
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	log.Printf("RabbitMQ connected, exchange=%s", exchange)
	return p, nil
}

func dialExchange(url, exchange string) (amqpChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		// 正常 Close 时通道直接关闭，不带错误
		select {
		case err, ok := <-connClosed:
			if ok {
				log.Printf("RabbitMQ connection closed: %v", err)
			}
		case err, ok := <-chClosed:
			if ok {
				log.Printf("RabbitMQ channel closed: %v", err)
			}
		}
	}()
	return ch, conn, nil
}

// connect 调用方持有 mu
func (p *RabbitPublisher) connect() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil

	ch, conn, err := p.dial()
	if err != nil {
		return err
	}
	p.ch, p.conn = ch, conn
	return nil
}

// Publish 连接或通道已关闭时重连一次再发
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		if err := p.connect(); err != nil {
			return fmt.Errorf("reconnect rabbitmq: %w", err)
		}
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if !errors.Is(err, amqp.ErrClosed) {
		return err
	}

	log.Printf("RabbitMQ channel closed, reconnecting, exchange=%s", p.exchange)
	if err := p.connect(); err != nil {
		return fmt.Errorf("reconnect rabbitmq: %w", err)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	err := p.conn.Close()
	p.ch, p.conn = nil, nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
