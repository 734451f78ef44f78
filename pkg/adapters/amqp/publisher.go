// Package amqp publishes lead events to a RabbitMQ topic exchange.
//
// The publisher is a ports.LeadTracker: each call becomes one persistent
// JSON message. Combine it with a storing tracker through leads.Multi when
// the events feed a downstream CRM.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys, one per lead operation.
const (
	KeySessionCreated   = "lead.session.created"
	KeyFieldCaptured    = "lead.field.captured"
	KeySessionCompleted = "lead.session.completed"
)

// DefaultExchange is used when none is configured.
const DefaultExchange = "flowchat.leads"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("publisher is closed")

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Event is the message body.
type Event struct {
	Type       domain.LeadOperation `json:"type"`
	LeadID     string               `json:"leadId,omitempty"`
	SessionID  string               `json:"sessionId"`
	FlowID     string               `json:"flowId,omitempty"`
	IPAddress  string               `json:"ipAddress,omitempty"`
	UserAgent  string               `json:"userAgent,omitempty"`
	NodeID     string               `json:"nodeId,omitempty"`
	Variable   string               `json:"variable,omitempty"`
	InputType  domain.InputType     `json:"inputType,omitempty"`
	DBField    string               `json:"dbField,omitempty"`
	Value      string               `json:"value,omitempty"`
	OccurredAt time.Time            `json:"occurredAt"`
}

// Publisher implements ports.LeadTracker over AMQP.
type Publisher struct {
	exchange string
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	ch     Channel
	conn   *amqp.Connection
	closed bool
}

var _ ports.LeadTracker = (*Publisher)(nil)

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock sets the timestamp source for events.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithIDGenerator sets the lead id generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Publisher) {
		p.newID = fn
	}
}

// New creates a publisher on an open channel.
func New(ch Channel, exchange string, opts ...Option) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &Publisher{
		exchange: exchange,
		ch:       ch,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial connects to url and declares a durable topic exchange.
func Dial(url, exchange string, opts ...Option) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.DialConfig(url, amqp.Config{Properties: amqp.Table{
		"connection_name": "flowchat-leads",
	}})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}

	p := New(ch, exchange, opts...)
	p.conn = conn
	return p, nil
}

// CreateSession publishes lead.session.created with a fresh lead id.
func (p *Publisher) CreateSession(ctx context.Context, s ports.LeadSession) (string, error) {
	leadID := p.newID()
	err := p.publish(ctx, KeySessionCreated, Event{
		Type:      domain.LeadCreateSession,
		LeadID:    leadID,
		SessionID: s.SessionID,
		FlowID:    s.FlowID,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
	})
	if err != nil {
		return "", err
	}
	return leadID, nil
}

// CaptureField publishes lead.field.captured.
func (p *Publisher) CaptureField(ctx context.Context, c ports.FieldCapture) error {
	return p.publish(ctx, KeyFieldCaptured, Event{
		Type:      domain.LeadCaptureField,
		SessionID: c.SessionID,
		FlowID:    c.FlowID,
		NodeID:    c.NodeID,
		Variable:  c.Variable,
		InputType: c.InputType,
		DBField:   c.DBField,
		Value:     c.Value,
	})
}

// CompleteSession publishes lead.session.completed.
func (p *Publisher) CompleteSession(ctx context.Context, sessionID string) error {
	return p.publish(ctx, KeySessionCompleted, Event{
		Type:      domain.LeadCompleteSession,
		SessionID: sessionID,
	})
}

func (p *Publisher) publish(ctx context.Context, key string, e Event) error {
	e.OccurredAt = p.now().UTC()
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal lead event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    p.newID(),
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Close closes the channel and, when dialed, the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
