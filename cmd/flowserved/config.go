package main

import "time"

// daemonConfig is the flat field-bag populated by cobra/pflag, mirroring
// the Config structs each wired package already exposes (http1.Config,
// fastcgi.Config, connector.Config).
type daemonConfig struct {
	Address string
	Port    int

	Protocol string

	ServerName           string
	MaxKeepAliveRequests int

	FlowProgram string

	ReusePort bool

	MaxReadIdle  time.Duration
	MaxWriteIdle time.Duration

	LogLevel string
}

func defaultDaemonConfig() *daemonConfig {
	return &daemonConfig{
		Address:              "0.0.0.0",
		Port:                 8080,
		Protocol:             "http/1.1",
		ServerName:           "flowserve",
		MaxKeepAliveRequests: 100,
		FlowProgram:          "default-backend",
		ReusePort:            false,
		MaxReadIdle:          60 * time.Second,
		MaxWriteIdle:         15 * time.Second,
		LogLevel:             "info",
	}
}
