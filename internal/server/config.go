package server

import "time"

type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// MetricsPath mounts the metrics handler; empty disables it.
	MetricsPath string

	Title        string
	PollInterval time.Duration
}
