// Package consumer reads framed events from Kafka and hands them to handlers.
package consumer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded events.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetryDelay sets the pause after a failed fetch and between handler attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Processor) {
		p.retryDelay = d
	}
}

// WithHandleAttempts sets how many times a failing handler is invoked for one record before the
// record is left uncommitted.
func WithHandleAttempts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithHandleTimeout bounds every handler invocation.
func WithHandleTimeout(d time.Duration) Option {
	return func(p *Processor) {
		p.handleTimeout = d
	}
}

// Processor pulls records, decodes them and dispatches them to a Handler. A record is committed
// once handled, or immediately when it cannot be decoded.
type Processor struct {
	reader        Reader
	handler       Handler
	logger        *log.Logger
	retryDelay    time.Duration
	attempts      int
	handleTimeout time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		retryDelay: time.Second,
		attempts:   1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled or the reader reports cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			if err := p.pause(ctx); err != nil {
				return err
			}
			continue
		}

		p.process(ctx, record)
	}
}

func (p *Processor) process(ctx context.Context, record kafka.Message) {
	msg, err := Decode(record)
	if err != nil {
		p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", record.Topic, record.Partition, record.Offset, err)
		recordOutcome(record.Topic, "", outcomeMalformed)
		// A record that never decodes would block the partition forever.
		p.commit(ctx, record)
		return
	}

	if err := p.handle(ctx, msg); err != nil {
		p.logger.Printf("handler error (event_type=%s, aggregate=%s, offset=%d): %v", msg.EventType, msg.AggregateID, msg.Offset, err)
		recordOutcome(msg.Topic, msg.EventType, outcomeFailed)
		return
	}

	if p.commit(ctx, record) {
		recordOutcome(msg.Topic, msg.EventType, outcomeHandled)
		recordLastHandled(msg)
	}
}

func (p *Processor) handle(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			if pauseErr := p.pause(ctx); pauseErr != nil {
				return errors.Join(err, pauseErr)
			}
		}
		err = p.invoke(ctx, msg)
		if err == nil {
			return nil
		}
	}
	return err
}

func (p *Processor) invoke(ctx context.Context, msg Message) error {
	if p.handleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.handleTimeout)
		defer cancel()
	}
	start := time.Now()
	err := p.handler.Handle(ctx, msg)
	observeHandle(msg.Topic, time.Since(start))
	return err
}

func (p *Processor) commit(ctx context.Context, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Printf("commit error (topic=%s, offset=%d): %v", record.Topic, record.Offset, err)
		return false
	}
	return true
}

func (p *Processor) pause(ctx context.Context) error {
	timer := time.NewTimer(p.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
