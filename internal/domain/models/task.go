package models

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a collection task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskTimedOut  TaskStatus = "timed_out"
	TaskStopped   TaskStatus = "stopped"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskTimedOut, TaskStopped, TaskFailed:
		return true
	default:
		return false
	}
}

// TaskReport is a point-in-time snapshot of one task.
type TaskReport struct {
	ID              string     `json:"id"`
	Exchange        string     `json:"exchange"`
	Symbol          string     `json:"symbol"`
	Metric          Metric     `json:"metric"`
	IntervalSeconds int64      `json:"interval_seconds,omitempty"`
	Status          TaskStatus `json:"status"`
	StartTime       time.Time  `json:"start_time,omitempty"`
	Deadline        time.Time  `json:"deadline,omitempty"`
	EndTime         time.Time  `json:"end_time,omitempty"`
	Stored          int64      `json:"stored"`
	Duplicates      int64      `json:"duplicates"`
	Stale           int64      `json:"stale"`
	Retries         int64      `json:"retries"`
	LogPath         string     `json:"log_path,omitempty"`
	LogRows         int64      `json:"log_rows"`
	Error           string     `json:"error,omitempty"`
}

// ExchangeError is a failure reported by an exchange, normalized at the adapter boundary.
type ExchangeError struct {
	Exchange   string
	HTTPStatus int
	Code       string
	Message    string
}

func (e *ExchangeError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: http %d code=%s: %s", e.Exchange, e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: code=%s: %s", e.Exchange, e.Code, e.Message)
}

// TaskListRequest filters GET /api/tasks.
type TaskListRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=pending running completed timed_out stopped failed"`
	Exchange string `query:"exchange" validate:"omitempty,oneof=huobi binance kucoin"`
	Since    string `query:"since"`
	Limit    int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// TaskIDRequest addresses one task.
type TaskIDRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}
