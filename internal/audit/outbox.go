package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

type EventStatus string

const (
	StatusPending        EventStatus = "PENDING"
	StatusPublishing     EventStatus = "PUBLISHING"
	StatusFailed         EventStatus = "FAILED"
	StatusNoAttemptsLeft EventStatus = "NO_ATTEMPTS_LEFT"
)

// StoredEvent is one audit_events row waiting to be published.
type StoredEvent struct {
	ID            int
	CreatedAt     time.Time
	Event         Event
	Status        EventStatus
	AttemptCount  int
	NextAttemptAt sql.NullTime
}

// EventStore is the outbox persistence contract.
type EventStore interface {
	GetPending(ctx context.Context, limit, maxAttempts int) ([]*StoredEvent, error)
	MarkPublishing(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
	MarkFailure(ctx context.Context, id, attemptCount int, status EventStatus, nextAttemptAt time.Time) error
}

type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

func (s *PostgresEventStore) GetPending(ctx context.Context, limit, maxAttempts int) ([]*StoredEvent, error) {
	query := `
		SELECT id, created_at, tenant, order_id, row_id, action, detail, status, attempt_count, next_attempt_at
		FROM audit_events
		WHERE status IN ($1, $2)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		  AND attempt_count < $3
		ORDER BY created_at
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, StatusPending, StatusFailed, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StoredEvent
	for rows.Next() {
		ev := &StoredEvent{}
		if err := rows.Scan(&ev.ID, &ev.CreatedAt,
			&ev.Event.Tenant, &ev.Event.OrderID, &ev.Event.RowID,
			&ev.Event.Action, &ev.Event.Detail,
			&ev.Status, &ev.AttemptCount, &ev.NextAttemptAt); err != nil {
			return nil, err
		}
		ev.Event.Timestamp = ev.CreatedAt
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *PostgresEventStore) MarkPublishing(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE audit_events SET status = $1 WHERE id = $2`, StatusPublishing, id)
	return err
}

func (s *PostgresEventStore) Delete(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE id = $1`, id)
	return err
}

func (s *PostgresEventStore) MarkFailure(ctx context.Context, id, attemptCount int, status EventStatus, nextAttemptAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE audit_events SET status = $1, attempt_count = $2, next_attempt_at = $3 WHERE id = $4`,
		status, attemptCount, nextAttemptAt, id)
	return err
}

// Producer publishes one message, satisfied by *kafka.Producer.
type Producer interface {
	Publish(topic string, message []byte) error
}

// Publisher drains the outbox into Kafka on a fixed poll interval,
// retrying failed publishes with a delay until attempts run out.
type Publisher struct {
	store        EventStore
	producer     Producer
	topic        string
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
}

func NewPublisher(store EventStore, producer Producer, topic string, pollInterval time.Duration, limit int) *Publisher {
	return &Publisher{
		store:        store,
		producer:     producer,
		topic:        topic,
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
	}
}

func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processPending(ctx)
		}
	}
}

func (p *Publisher) processPending(ctx context.Context) {
	events, err := p.store.GetPending(ctx, p.limit, p.maxAttempts)
	if err != nil {
		log.Printf("audit outbox: fetch pending: %v", err)
		return
	}
	for _, ev := range events {
		if err := p.store.MarkPublishing(ctx, ev.ID); err != nil {
			log.Printf("audit outbox: mark event %d publishing: %v", ev.ID, err)
			continue
		}
		payload, err := json.Marshal(ev.Event)
		if err != nil {
			log.Printf("audit outbox: encode event %d: %v", ev.ID, err)
			continue
		}
		if err := p.producer.Publish(p.topic, payload); err != nil {
			p.fail(ctx, ev, err)
			continue
		}
		if err := p.store.Delete(ctx, ev.ID); err != nil {
			log.Printf("audit outbox: delete event %d after publish: %v", ev.ID, err)
		}
	}
}

func (p *Publisher) fail(ctx context.Context, ev *StoredEvent, cause error) {
	attempts := ev.AttemptCount + 1
	status := StatusFailed
	if attempts >= p.maxAttempts {
		status = StatusNoAttemptsLeft
	}
	if err := p.store.MarkFailure(ctx, ev.ID, attempts, status, time.Now().Add(p.retryDelay)); err != nil {
		log.Printf("audit outbox: record failure for event %d: %v", ev.ID, err)
	}
	log.Printf("audit outbox: publish event %d failed: %v", ev.ID, cause)
}
