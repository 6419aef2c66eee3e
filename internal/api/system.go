package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/appshell/internal/api/models"
	"github.com/smazurov/appshell/internal/metrics"
)

func (s *Server) registerSystemRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/api/stats",
		Summary:     "Telemetry Stats",
		Description: "List the telemetry stats bumped since startup",
		Tags:        []string{"system"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.StatsResponse, error) {
		counts := metrics.GetStatCounts()
		resp := &models.StatsResponse{}
		resp.Body.Stats = make([]models.StatData, 0, len(counts))
		for _, c := range counts {
			resp.Body.Stats = append(resp.Body.Stats, models.StatData{
				Group: c.Group,
				Name:  c.Name,
				Count: c.Count,
			})
		}
		return resp, nil
	})

	if s.options.Windows == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "list-windows",
		Method:      http.MethodGet,
		Path:        "/api/windows",
		Summary:     "List Windows",
		Description: "List shell windows and their process state",
		Tags:        []string{"windows"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.WindowListResponse, error) {
		infos := s.options.Windows.Windows()
		data := models.WindowListData{
			Windows: make([]models.WindowData, 0, len(infos)),
			Count:   len(infos),
		}
		for _, info := range infos {
			data.Windows = append(data.Windows, models.WindowData{
				ID:        info.ID,
				URL:       info.URL,
				State:     string(info.State),
				StartedAt: info.StartedAt.Format(time.RFC3339),
				ExitCode:  info.ExitCode,
			})
		}
		return &models.WindowListResponse{Body: data}, nil
	})
}
