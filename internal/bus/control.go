package bus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/lexiqai/cuecam/internal/protocol"
	"github.com/lexiqai/cuecam/internal/remote"
)

// ServeControl answers control requests on prefix.control, the same messages
// the websocket endpoint accepts.
func ServeControl(client *Client, prefix string, ctrl remote.Listening, presets remote.Presets) (*nats.Subscription, error) {
	subject := protocol.Subject(prefix, protocol.SubjectControl)
	logger := client.logger.With().Str("subject", subject).Logger()

	sub, err := client.conn.Subscribe(subject, func(msg *nats.Msg) {
		var reply protocol.Reply
		control, err := protocol.ParseControl(msg.Data)
		if err != nil {
			reply = protocol.NewReply(control, err)
		} else {
			logger.Debug().Str("action", control.Action).Msg("Control request")
			reply = remote.Dispatch(ctrl, presets, control)
		}

		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to encode reply")
			return
		}
		if err := msg.Respond(data); err != nil {
			logger.Warn().Err(err).Msg("Failed to respond")
		}
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("Serving control requests")
	return sub, nil
}
