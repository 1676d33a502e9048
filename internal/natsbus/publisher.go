// Package natsbus publishes broker events to NATS JetStream.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultSubjects are the subject patterns the stream captures.
var DefaultSubjects = []string{"notifications.>", "audit.>", "ws_events.>", "digests.>"}

// Publisher writes JSON events to a JetStream stream. Routing keys become
// subjects unchanged.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewPublisher connects to url and makes sure stream exists.
func NewPublisher(ctx context.Context, url, stream string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("messaging-service"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ensureStream(ctx, js, stream); err != nil {
		nc.Close()
		return nil, err
	}

	log.Printf("nats connected url=%s stream=%s", url, stream)
	return &Publisher{nc: nc, js: js}, nil
}

// streamManager is the part of jetstream.JetStream used to set up the stream.
type streamManager interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// ensureStream creates the stream only when the server reports it missing.
// Any other lookup failure is returned as is.
func ensureStream(ctx context.Context, js streamManager, stream string) error {
	_, err := js.Stream(ctx, stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("lookup stream %s: %w", stream, err)
	}
	log.Printf("nats stream %s not found, creating", stream)
	if _, err := js.CreateStream(ctx, streamConfig(stream)); err != nil {
		return fmt.Errorf("create stream %s: %w", stream, err)
	}
	return nil
}

func streamConfig(stream string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        stream,
		Description: "messaging service events",
		Subjects:    DefaultSubjects,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
	}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(ctx, routingKey, body); err != nil {
		return fmt.Errorf("publish to subject %s: %w", routingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
