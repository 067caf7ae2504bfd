package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}

// NATSPublisher sends messages on <prefix>.<type>, e.g. attendance.in.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("ponto"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) Subject(msg Message) string {
	return fmt.Sprintf("%s.%s", p.prefix, msg.Type)
}

func (p *NATSPublisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := p.conn.Publish(p.Subject(msg), payload); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Ping() error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}
