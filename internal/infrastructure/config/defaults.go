package config

import "time"

const (
	DefaultHTTPPort         = "8080"
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultPGMaxConnIdle    = 2 * time.Minute
	DefaultStatementTimeout = 30 * time.Second
	DefaultSQLMaxOpenConns  = 10
	DefaultSQLMaxIdleConns  = 2
	DefaultSQLiteBusyMS     = 5000
)
