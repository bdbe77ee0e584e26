package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	kafka "github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	appconfig "priceflow/config"
	"priceflow/logger"
	"priceflow/models"
)

// EventHandler processes one deserialized event. The return value is the
// commit decision: true means the work is durable and the message may be
// committed, false means the message must be redelivered.
type EventHandler interface {
	Handle(ctx context.Context, event models.Event) bool
}

// Deserializer turns a raw message value into a typed event. The boolean is
// false when the message is well-formed but not applicable to this
// category (for example a change-capture record for an unrelated entity);
// such messages are committed without reaching the handler.
type Deserializer interface {
	Deserialize(value []byte) (models.Event, bool, error)
}

// ErrorHandler decides what happens to a message that failed to
// deserialize. The return value is the commit decision.
type ErrorHandler interface {
	HandleDeserializationError(msg kafka.Message, err error) bool
}

// fetchCommitter is the slice of kafka.Reader the consumer needs. Tests
// substitute a fake.
type fetchCommitter interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer runs the poll/deserialize/dispatch/commit loop for one event
// category. A message whose handler declines the commit is retried in
// place, paced by the failure limiter, so processing never skips past an
// event whose side effects have not landed.
type Consumer struct {
	config       *appconfig.Config
	reader       fetchCommitter
	deserializer Deserializer
	handler      EventHandler
	errHandler   ErrorHandler
	limiter      *rate.Limiter
	ctx          context.Context
	wg           *sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	log          *logger.Log
}

func NewConsumer(cfg *appconfig.Config, reader fetchCommitter, deserializer Deserializer, handler EventHandler) (*Consumer, error) {
	if reader == nil {
		return nil, fmt.Errorf("kafka reader not configured")
	}
	if deserializer == nil || handler == nil {
		return nil, fmt.Errorf("consumer requires a deserializer and a handler")
	}
	c := &Consumer{
		config:       cfg,
		reader:       reader,
		deserializer: deserializer,
		handler:      handler,
		errHandler:   commitOnError{},
		limiter:      rate.NewLimiter(rate.Limit(cfg.Kafka.FailureBackoff), 1),
		wg:           &sync.WaitGroup{},
		log:          logger.GetLogger(),
	}
	c.log.WithComponent("consumer").WithFields(logger.Fields{
		"brokers": cfg.Kafka.Brokers,
		"group":   cfg.Kafka.GroupID,
	}).Debug("consumer initialized")
	return c, nil
}

// SetErrorHandler replaces the default deserialization failure policy
// (log and commit).
func (c *Consumer) SetErrorHandler(h ErrorHandler) {
	c.errHandler = h
}

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	c.log.WithComponent("consumer").Debug("starting consumer")

	c.wg.Add(1)
	go c.run()

	return nil
}

func (c *Consumer) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msg, err := c.reader.FetchMessage(c.ctx)
		if err != nil {
			// io.EOF means the reader was closed by Stop.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return
			}
			c.log.WithComponent("consumer").WithError(err).Warn("failed to fetch message")
			if err := c.limiter.Wait(c.ctx); err != nil {
				return
			}
			continue
		}
		logger.IncrementEventConsumed(msg.Topic, len(msg.Value))

		if c.processUntilCommitted(msg) {
			return
		}
	}
}

// processUntilCommitted handles one message to a commit decision, retrying
// in place while the handler declines. Returns true when the context ended.
func (c *Consumer) processUntilCommitted(msg kafka.Message) (done bool) {
	for {
		commit := c.processOne(msg)
		if commit {
			if err := c.reader.CommitMessages(c.ctx, msg); err != nil {
				c.log.WithComponent("consumer").WithError(err).Error("failed to commit offset")
				return c.ctx.Err() != nil
			}
			logger.IncrementEventCommitted()
			return false
		}

		logger.IncrementEventRetried()
		if err := c.limiter.Wait(c.ctx); err != nil {
			return true
		}
	}
}

// processOne runs the deserialize/dispatch state machine for one message
// and returns the commit decision. A handler panic is contained here and
// counts as a declined commit.
func (c *Consumer) processOne(msg kafka.Message) (commit bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithComponent("consumer").WithFields(logger.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"panic":     fmt.Sprintf("%v", r),
			}).Error("handler panicked")
			commit = false
		}
	}()

	event, applicable, err := c.deserializer.Deserialize(msg.Value)
	if err != nil {
		c.log.WithComponent("consumer").WithError(err).WithFields(logger.Fields{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Warn("failed to deserialize message")
		return c.errHandler.HandleDeserializationError(msg, err)
	}
	if !applicable {
		return true
	}

	c.log.WithComponent("consumer").WithFields(logger.Fields{
		"event":  event.EventType(),
		"topic":  msg.Topic,
		"offset": msg.Offset,
	}).Debug("dispatching event")
	return c.handler.Handle(c.ctx, event)
}

func (c *Consumer) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.log.WithComponent("consumer").Debug("stopping consumer")
	c.reader.Close()
	c.wg.Wait()
	c.log.WithComponent("consumer").Debug("consumer stopped")
}

// commitOnError is the default deserialization failure policy: an
// unparseable message never becomes parseable on redelivery, so skip it.
type commitOnError struct{}

func (commitOnError) HandleDeserializationError(kafka.Message, error) bool { return true }
