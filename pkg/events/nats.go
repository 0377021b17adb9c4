package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the run ID to form the subject.
const DefaultSubjectPrefix = "hybrid.runs"

// NATSPublisher publishes each event to <prefix>.<run_id> on core NATS.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NATSConfig configures the connection.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
}

// NewNATSPublisher connects to NATS. The connection reconnects forever
// once established; the initial dial fails fast.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	name := cfg.Name
	if name == "" {
		name = "hybrid-runner"
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject events of runID go to.
func Subject(prefix, runID string) string {
	return prefix + "." + runID
}

func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}
	return p.nc.Publish(Subject(p.prefix, e.RunID), data)
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.nc.FlushTimeout(2 * time.Second)
	p.nc.Close()
	return err
}
