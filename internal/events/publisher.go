// Package events publishes the reconciliation audit trail from the journal
// outbox to NATS JetStream. Publishing is best effort: rows stay in the
// outbox until the stream accepts them, so a broker outage loses nothing.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/syncbridge/internal/journal"
)

const (
	streamName    = "SYNC_EVENTS"
	subjectPrefix = "sync.events"
	drainInterval = 2 * time.Second
	drainBatch    = 100
)

// Publisher pushes journal outbox rows to JetStream.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	journal *journal.Journal
	node    string

	stop chan struct{}
	wg   sync.WaitGroup
}

// AuditEvent is the JSON payload published per reconciliation action.
type AuditEvent struct {
	Action    string          `json:"action"`
	Node      string          `json:"node"`
	Entry     json.RawMessage `json:"entry"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewPublisher connects to NATS and ensures the audit stream exists.
func NewPublisher(natsURL, node string, j *journal.Journal) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ".>"},
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		// Stream may already exist, that's OK
		log.Printf("events: stream setup: %v", err)
	}

	return &Publisher{
		nc:      nc,
		js:      js,
		journal: j,
		node:    node,
		stop:    make(chan struct{}),
	}, nil
}

// Start begins the outbox drain loop.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(drainInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.drain()
			case <-p.stop:
				// Final flush
				p.drain()
				return
			}
		}
	}()
	log.Printf("events: publisher started (stream=%s)", streamName)
}

// Stop stops the drain loop and closes the NATS connection.
func (p *Publisher) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.nc.Close()
}

// Connected reports broker reachability.
func (p *Publisher) Connected() bool {
	return p.nc.IsConnected()
}

func (p *Publisher) drain() {
	rows, err := p.journal.UnpublishedEvents(drainBatch)
	if err != nil || len(rows) == 0 {
		return
	}

	var published []int64
	for _, row := range rows {
		subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, p.node, row.Action)
		ts, _ := time.Parse("2006-01-02 15:04:05", row.CreatedAt)
		ev := AuditEvent{
			Action:    row.Action,
			Node:      p.node,
			Entry:     json.RawMessage(row.Payload),
			Timestamp: ts,
		}
		data, _ := json.Marshal(ev)

		if _, err := p.js.Publish(subject, data); err != nil {
			log.Printf("events: publish error for outbox row %d: %v", row.ID, err)
			continue
		}
		published = append(published, row.ID)
	}

	if err := p.journal.MarkPublished(published); err != nil {
		log.Printf("events: mark published error: %v", err)
	}
	if len(published) > 0 {
		log.Printf("events: published %d audit events", len(published))
	}
}
