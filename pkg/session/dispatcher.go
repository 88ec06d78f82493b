package session

import (
	"log/slog"

	"github.com/studiokit/voicelive/pkg/pcm"
)

// Dispatcher demultiplexes server messages into their consumers: audio
// chunks to the playback path, tool calls to the broker, interruption
// and turn signals to the controller. It runs on the transport's read
// goroutine and must stay fast; anything slow happens downstream.
type Dispatcher struct {
	logger *slog.Logger

	// OnAudio receives decoded PCM16 bytes of synthesized speech.
	OnAudio func(pcm []byte)

	// OnText receives incremental model text, when the endpoint sends it.
	OnText func(text string)

	// OnToolCall receives each server-issued function call.
	OnToolCall func(call ToolCall)

	// OnToolCallCancellation receives withdrawn call ids.
	OnToolCallCancellation func(ids []string)

	// OnInterrupted fires on server-signaled barge-in.
	OnInterrupted func()

	// OnTurnComplete fires when the model finishes a turn.
	OnTurnComplete func()

	// OnSetupComplete fires once the endpoint acknowledges setup.
	OnSetupComplete func()
}

// NewDispatcher creates a dispatcher with no consumers wired.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger.With("component", "dispatcher")}
}

// Dispatch routes one server message. Unknown or malformed payloads are
// logged and dropped; a single bad message never affects the session.
func (d *Dispatcher) Dispatch(msg *ServerMessage) {
	switch {
	case msg.SetupComplete != nil:
		d.logger.Debug("session setup complete")
		if d.OnSetupComplete != nil {
			d.OnSetupComplete()
		}

	case msg.ServerContent != nil:
		d.dispatchContent(msg.ServerContent)

	case msg.ToolCall != nil:
		for _, fc := range msg.ToolCall.FunctionCalls {
			if d.OnToolCall != nil {
				d.OnToolCall(ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
			}
		}

	case msg.ToolCallCancellation != nil:
		d.logger.Debug("tool calls cancelled", "ids", msg.ToolCallCancellation.IDs)
		if d.OnToolCallCancellation != nil {
			d.OnToolCallCancellation(msg.ToolCallCancellation.IDs)
		}

	default:
		d.logger.Debug("unhandled server message")
	}
}

func (d *Dispatcher) dispatchContent(content *ServerContent) {
	// Interruption is checked before audio: no part of an interrupted
	// turn should be scheduled after the signal.
	if content.Interrupted {
		if d.OnInterrupted != nil {
			d.OnInterrupted()
		}
		return
	}

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData != nil && IsPCM(part.InlineData.MimeType) {
				data, err := pcm.FromTransportText(part.InlineData.Data)
				if err != nil {
					d.logger.Warn("dropping undecodable audio chunk", "error", err)
					continue
				}
				if len(data) > 0 && d.OnAudio != nil {
					d.OnAudio(data)
				}
			}

			if part.Text != "" && d.OnText != nil {
				d.OnText(part.Text)
			}
		}
	}

	if content.TurnComplete && d.OnTurnComplete != nil {
		d.OnTurnComplete()
	}
}
