// Package events publishes committed polygon edits to Kafka and lets other
// server instances react to them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/studiospace/plankit/internal/editor"
)

const TypePolygonCommitted = "space.polygon.committed"

// Event is the message written for every commit. Polygon is the ordered
// [x, y] array in winding order.
type Event struct {
	EventID     string       `json:"event_id"`
	EventType   string       `json:"event_type"`
	InstanceID  string       `json:"instance_id"`
	FloorID     string       `json:"floor_id"`
	SpaceID     string       `json:"space_id"`
	Polygon     [][2]float64 `json:"polygon"`
	Revision    uint64       `json:"revision"`
	CommittedAt time.Time    `json:"committed_at"`
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is an editor.CommitSink writing commit events to one topic,
// keyed by floor so a floor's commits stay ordered.
type Publisher struct {
	w          MessageWriter
	instanceID string
}

// NewWriter builds a kafka writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewPublisher creates a publisher. instanceID tags events so an instance
// can ignore its own commits when consuming.
func NewPublisher(w MessageWriter, instanceID string) *Publisher {
	return &Publisher{w: w, instanceID: instanceID}
}

// PolygonCommitted implements editor.CommitSink.
func (p *Publisher) PolygonCommitted(ctx context.Context, c editor.Commit) error {
	ev := Event{
		EventID:     c.EditID,
		EventType:   TypePolygonCommitted,
		InstanceID:  p.instanceID,
		FloorID:     c.FloorID,
		SpaceID:     c.SpaceID,
		Polygon:     c.Polygon,
		Revision:    c.Revision,
		CommittedAt: c.CommittedAt,
	}
	if ev.EventID == "" || ev.FloorID == "" || ev.SpaceID == "" {
		return fmt.Errorf("event missing required fields: event_id=%q, floor_id=%q, space_id=%q",
			ev.EventID, ev.FloorID, ev.SpaceID)
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.FloorID), Value: msg}); err != nil {
		return fmt.Errorf("publish commit of %s: %w", ev.SpaceID, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error { return p.w.Close() }

// MessageReader is the subset of *kafka.Reader the subscriber uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewReader builds a consumer-group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

// Subscribe reads commit events until ctx is done and calls handle for
// every event committed by another instance.
func Subscribe(ctx context.Context, r MessageReader, instanceID string, handle func(Event)) error {
	defer r.Close()
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Warn("commit event read failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var ev Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			slog.Warn("undecodable commit event", "key", string(m.Key), "error", err)
			continue
		}
		if ev.EventType != TypePolygonCommitted || ev.InstanceID == instanceID {
			continue
		}
		handle(ev)
	}
}
