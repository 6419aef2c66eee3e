package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/logging"
)

// LogStreamInput selects which log entries are streamed.
type LogStreamInput struct {
	Since  uint64 `query:"since" doc:"Only send entries with a sequence number above this one (resume after reconnect)"`
	Module string `query:"module" doc:"Only send entries from this module" example:"updater"`
}

func (in *LogStreamInput) wants(seq uint64, module string) bool {
	return seq > in.Since && (in.Module == "" || in.Module == module)
}

func logEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers the log streaming SSE endpoint.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Sends the buffered log history, then new entries as they are logged. Entries carry a sequence number; pass the last one seen as `since` to resume.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, input *LogStreamInput, send sse.Sender) {
		// Subscribe before replaying history so nothing logged in between is lost
		stream := events.NewStream(s.eventBus, 100)
		defer stream.Close()
		events.ForwardIf(stream, func(e events.LogEntryEvent) bool {
			return input.wants(e.Seq, e.Module)
		})

		last := input.Since
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.Since(input.Since) {
				if !input.wants(entry.Seq, entry.Module) {
					continue
				}
				if err := send.Data(logEvent(entry)); err != nil {
					return
				}
				last = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-stream.C():
				entry, ok := ev.(events.LogEntryEvent)
				// Entries logged during the replay arrive twice
				if !ok || entry.Seq <= last {
					continue
				}
				last = entry.Seq
				if err := send.Data(entry); err != nil {
					return
				}
			}
		}
	})
}
