package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"pdfqa/internal/model"
	"pdfqa/internal/platform/rabbitmq"
)

type ExchangeRepository interface {
	Create(ctx context.Context, exchange *model.QAExchange) error
}

// ExchangePersistWorker consumes answered questions from the history queue
// and stores them.
type ExchangePersistWorker struct {
	conn      *amqp.Connection
	repo      ExchangeRepository
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExchangePersistWorker(conn *amqp.Connection, repo ExchangeRepository, queueName string, logger *slog.Logger) *ExchangePersistWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExchangePersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *ExchangePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.logger.Error("worker persist qa exchange failed", "queue", w.queueName, "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("history worker started", "queue", w.queueName)
	return nil
}

func (w *ExchangePersistWorker) handle(ctx context.Context, body []byte) error {
	var exchange model.QAExchange
	if err := json.Unmarshal(body, &exchange); err != nil {
		return fmt.Errorf("decode qa exchange failed: %w", err)
	}
	// ids are assigned by the database
	exchange.ID = 0
	return w.repo.Create(ctx, &exchange)
}

func (w *ExchangePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
