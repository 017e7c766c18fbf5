package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// StartScanConsumer consumes checkin.scanned and appends one line per event
// to out (typically a lumberjack rotating file).  It reconnects with
// exponential backoff capped at 30s and returns only when ctx is cancelled.
func StartScanConsumer(ctx context.Context, url string, out io.Writer, logger *zap.Logger) error {
	if url == "" {
		url = BrokerURL()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("scan-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, out, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("scan-consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, out io.Writer, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("scan-consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(ScanQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ScanQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := HandleScanMessage(d.Body, out); err != nil {
				logger.Warn("scan-consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // drop poison messages instead of requeueing
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleScanMessage decodes one event body and writes its audit line.
func HandleScanMessage(body []byte, out io.Writer) error {
	var ev CheckinScannedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.CodeID == "" {
		return errors.New("event without code_id")
	}
	if _, err := io.WriteString(out, FormatScanLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatScanLine renders ev as a single newline terminated audit line.
func FormatScanLine(ev CheckinScannedEvent) string {
	line := fmt.Sprintf("[%s] Check-in accepted | code_id=%s | event_id=%s | kind=%s | level=%s | scans=%d | rotation=%d",
		ev.ScannedAt, ev.CodeID, ev.EventID, ev.Kind, ev.SecurityLevel, ev.ScannedCount, ev.Rotation)
	if ev.HolderID != "" {
		line += fmt.Sprintf(" | holder_id=%s", ev.HolderID)
	}
	if ev.DistanceMeters != nil {
		line += fmt.Sprintf(" | distance=%.1fm", *ev.DistanceMeters)
	}
	return line + "\n"
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
