package bus

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/listener"
	"github.com/lexiqai/cuecam/internal/observability"
	"github.com/lexiqai/cuecam/internal/protocol"
)

// Publisher is a listener observer that fans status and commands out to NATS
type Publisher struct {
	client         *Client
	statusSubject  string
	commandSubject string
	logger         zerolog.Logger
}

// NewPublisher publishes under prefix.status and prefix.command
func NewPublisher(client *Client, prefix string) *Publisher {
	return &Publisher{
		client:         client,
		statusSubject:  protocol.Subject(prefix, protocol.SubjectStatus),
		commandSubject: protocol.Subject(prefix, protocol.SubjectCommand),
		logger:         client.logger,
	}
}

func (p *Publisher) StatusChanged(s listener.Status) {
	p.publish(p.statusSubject, protocol.NewStatus(s, time.Now()))
}

func (p *Publisher) Command(e command.Event) {
	p.publish(p.commandSubject, protocol.NewCommand(e, time.Now()))
}

func (p *Publisher) publish(subject string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		observability.RecordError("marshal", "bus")
		p.logger.Error().Err(err).Str("subject", subject).Msg("Failed to encode message")
		return
	}
	if err := p.client.conn.Publish(subject, data); err != nil {
		observability.RecordError("publish", "bus")
		p.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to publish")
	}
}
