package remote

import (
	"context"
	"time"

	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/protocol"
)

// Listening is the part of the listener a control message can drive
type Listening interface {
	StartListening(ctx command.Context)
	StopListening()
	HandleBackground(background bool)
}

// Dispatch applies a parsed control message and builds its reply. presets may
// be nil, in which case preset actions fail.
func Dispatch(ctrl Listening, presets Presets, c protocol.Control) protocol.Reply {
	switch c.Action {
	case protocol.ActionStart:
		ctrl.StartListening(c.ListeningContext())
	case protocol.ActionStop:
		ctrl.StopListening()
	case protocol.ActionBackground:
		ctrl.HandleBackground(true)
	case protocol.ActionForeground:
		ctrl.HandleBackground(false)
	case protocol.ActionSelectPreset, protocol.ActionListPresets:
		return dispatchPresets(presets, c)
	}
	return protocol.NewReply(c, nil)
}

func dispatchPresets(presets Presets, c protocol.Control) protocol.Reply {
	if presets == nil {
		return protocol.NewReply(c, errPresetsUnavailable)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.Action == protocol.ActionSelectPreset {
		if err := presets.SetSelectedPreset(ctx, c.Preset); err != nil {
			return protocol.NewReply(c, err)
		}
	}

	selected, err := presets.SelectedPreset(ctx)
	reply := protocol.NewReply(c, err)
	reply.Selected = selected
	if c.Action == protocol.ActionListPresets {
		for _, p := range presets.Presets() {
			reply.Presets = append(reply.Presets, protocol.NewPreset(p))
		}
	}
	return reply
}
