package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.21.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Window models
type WindowData struct {
	ID        string `json:"id" example:"window-1" doc:"Window identifier"`
	URL       string `json:"url" example:"http://localhost:3000" doc:"Page loaded in the window"`
	State     string `json:"state" example:"running" doc:"starting, running, closing, closed or error"`
	StartedAt string `json:"started_at" example:"2025-01-27T10:30:00Z" doc:"Process start time"`
	ExitCode  int    `json:"exit_code,omitempty" example:"0" doc:"Exit code once the process ended"`
}

type WindowListData struct {
	Windows []WindowData `json:"windows" doc:"Open shell windows"`
	Count   int          `json:"count" example:"1" doc:"Number of windows"`
}

type WindowListResponse struct {
	Body WindowListData
}

// Stats models
type StatData struct {
	Group string  `json:"group" example:"wpcom-desktop-update-check" doc:"Stat group"`
	Name  string  `json:"name" example:"linux-1-2-3-no-update" doc:"Stat name"`
	Count float64 `json:"count" example:"1" doc:"Times the stat was bumped since startup"`
}

type StatsResponse struct {
	Body struct {
		Stats []StatData `json:"stats" doc:"Telemetry stats bumped since startup"`
	}
}
