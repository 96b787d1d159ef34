package models

// TaskCountByStatus is one aggregation bucket for the status chart.
type TaskCountByStatus struct {
	StatusID   string `db:"status_id" json:"status_id"`
	StatusName string `db:"status_name" json:"status_name"`
	TaskCount  int    `db:"task_count" json:"task_count"`
}

// TaskCountByPriority is one aggregation bucket for the priority chart.
type TaskCountByPriority struct {
	Priority  string `db:"priority" json:"priority"`
	TaskCount int    `db:"task_count" json:"task_count"`
}

// TaskStatsSummary is the dashboard headline payload.
type TaskStatsSummary struct {
	TotalTasks int                   `json:"total_tasks"`
	ByStatus   []TaskCountByStatus   `json:"by_status"`
	ByPriority []TaskCountByPriority `json:"by_priority"`
}

// DataSeries is one plotted series in a chart payload.
type DataSeries struct {
	Name  string    `json:"name"`
	Data  []float64 `json:"data"`
	Color *string   `json:"color,omitempty"`
}

// ChartData is the chart contract consumed by the dashboard client.
type ChartData struct {
	ChartType string       `json:"chart_type"`
	Title     string       `json:"title"`
	Labels    []string     `json:"labels"`
	Series    []DataSeries `json:"series"`
}
