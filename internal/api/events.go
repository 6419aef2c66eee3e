package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/appshell/internal/api/models"
	"github.com/smazurov/appshell/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of update state changes, prompts, release source events, stats and window changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"update-status":  models.UpdateStatusData{},
		"update-state":   events.UpdateStateChangedEvent{},
		"update-prompt":  events.UpdatePromptEvent{},
		"update-source":  events.UpdateSourceEvent{},
		"stats-bumped":   events.StatsBumpedEvent{},
		"window-changed": events.WindowChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		stream := events.NewStream(s.eventBus, 32)
		defer stream.Close()
		events.Forward[events.UpdateStateChangedEvent](stream)
		events.Forward[events.UpdatePromptEvent](stream)
		events.Forward[events.UpdateSourceEvent](stream)
		events.Forward[events.StatsBumpedEvent](stream)
		events.Forward[events.WindowChangedEvent](stream)

		// The first message is the current status so clients need no extra request
		initial := models.UpdateStatusData{Enabled: false}
		if s.options.Updater != nil {
			initial = statusData(s.options.Updater.Status())
		}
		if err := send.Data(initial); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				if n := stream.Dropped(); n > 0 {
					s.logger.Debug("Event stream dropped events", "count", n)
				}
				return
			case event := <-stream.C():
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
