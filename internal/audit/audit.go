// Package audit records sync and handover events through a batching
// worker pool with pluggable processors. Events are best effort: a full
// channel drops, it never blocks the sync path.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Tenant    string    `json:"tenant"`
	OrderID   string    `json:"order_id"`
	RowID     int       `json:"row_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
}

type PoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

type Processor interface {
	Process(batch []Event) error
}

// DBProcessor persists batches into audit_events with status PENDING,
// where the outbox publisher picks them up.
type DBProcessor struct {
	DB *sql.DB
}

func (p *DBProcessor) Process(batch []Event) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO audit_events (created_at, tenant, order_id, row_id, action, detail, status, attempt_count) VALUES `)

	params := []interface{}{}
	idx := 1
	for i, ev := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,'PENDING',0)", idx, idx+1, idx+2, idx+3, idx+4, idx+5))
		idx += 6
		params = append(params, ev.Timestamp, ev.Tenant, ev.OrderID, ev.RowID, ev.Action, ev.Detail)
	}
	if _, err := p.DB.Exec(sb.String(), params...); err != nil {
		return fmt.Errorf("audit db insert: %w", err)
	}
	return nil
}

// StdoutProcessor writes batches to the log, optionally keeping only
// events whose action contains Filter.
type StdoutProcessor struct {
	Filter string
}

func (p *StdoutProcessor) Process(batch []Event) error {
	for _, ev := range batch {
		if p.Filter != "" && !strings.Contains(strings.ToLower(ev.Action), strings.ToLower(p.Filter)) {
			continue
		}
		b, _ := json.Marshal(ev)
		log.Printf("audit: %s", b)
	}
	return nil
}

type Pool struct {
	inputCh    chan Event
	processors []Processor
	batchSize  int
	timeout    time.Duration

	wg sync.WaitGroup
}

func NewPool(cfg PoolConfig, processors ...Processor) *Pool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = 256
	}
	return &Pool{
		inputCh:    make(chan Event, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
	}
}

func (p *Pool) Start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	var batch []Event
	timer := time.NewTimer(p.timeout)
	for {
		select {
		case ev, ok := <-p.inputCh:
			if !ok {
				if len(batch) > 0 {
					p.processBatch(batch)
				}
				return
			}
			batch = append(batch, ev)
			if len(batch) >= p.batchSize {
				if !timer.Stop() {
					<-timer.C
				}
				p.processBatch(batch)
				batch = nil
				timer.Reset(p.timeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

func (p *Pool) processBatch(batch []Event) {
	for _, proc := range p.processors {
		if err := proc.Process(batch); err != nil {
			log.Printf("audit: processing batch: %v", err)
		}
	}
}

// Log enqueues one event, dropping when the channel is full.
func (p *Pool) Log(ev Event) {
	select {
	case p.inputCh <- ev:
	default:
		log.Println("audit: channel full, dropping event")
	}
}

// Shutdown flushes pending batches and stops the workers.
func (p *Pool) Shutdown() {
	close(p.inputCh)
	p.wg.Wait()
}
