package main

import (
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/christianparpart/x0-sub009/internal/connection"
	"github.com/christianparpart/x0-sub009/internal/connector"
	"github.com/christianparpart/x0-sub009/internal/dispatch"
	"github.com/christianparpart/x0-sub009/internal/fastcgi"
	"github.com/christianparpart/x0-sub009/internal/flow"
	"github.com/christianparpart/x0-sub009/internal/http1"
	"github.com/christianparpart/x0-sub009/internal/reactor"
)

// runDaemon wires the reactor, the connection registry, the HTTP/1 and
// FastCGI factories, and (for HTTP/1) a linked Flow routing program into
// one listening connector, then runs the reactor until SIGINT/SIGTERM.
func runDaemon(cfg *daemonConfig) error {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	re, err := reactor.New(log)
	if err != nil {
		return err
	}

	registry := connection.NewRegistry()
	registry.Register("http/1.1", http1.NewConnectionFactory(httpConfig(cfg, log), newFlowHandler(cfg)))
	registry.Register("fcgi", fastcgi.NewConnectionFactory(fastcgiConfig(cfg, log), fastcgi.HandlerFunc(defaultFastCGIBackend)))

	ccfg := connector.DefaultConfig
	ccfg.Address = cfg.Address
	ccfg.Port = cfg.Port
	ccfg.Protocol = cfg.Protocol
	ccfg.ReusePort = cfg.ReusePort
	ccfg.MaxReadIdle = cfg.MaxReadIdle
	ccfg.MaxWriteIdle = cfg.MaxWriteIdle

	conn, err := connector.New(ccfg, re, registry, log)
	if err != nil {
		return err
	}
	conn.Start()

	re.ExecuteOnSignal(syscall.SIGINT, func() { conn.Close(); re.BreakLoop() })
	re.ExecuteOnSignal(syscall.SIGTERM, func() { conn.Close(); re.BreakLoop() })

	log.WithFields(logrus.Fields{
		"address":  cfg.Address,
		"port":     cfg.Port,
		"protocol": cfg.Protocol,
	}).Info("flowserved: listening")

	re.RunLoop()
	return nil
}

func httpConfig(cfg *daemonConfig, log *logrus.Logger) http1.Config {
	return http1.Config{
		ServerName:           cfg.ServerName,
		MaxKeepAliveRequests: cfg.MaxKeepAliveRequests,
		Limits:               http1.DefaultLimits,
		Log:                  log,
	}
}

func fastcgiConfig(cfg *daemonConfig, log *logrus.Logger) fastcgi.Config {
	return fastcgi.Config{ServerName: cfg.ServerName, Log: log}
}

// flowHandler adapts a linked Flow routing program to http1.Handler: each
// request gets its own Runner, seeded at the program's routing entry point
// with the Channel as UserData so the native functions registered by
// internal/dispatch can read the request.
type flowHandler struct {
	program *flow.Program
	rt      *flow.Runtime
	entryPC int
}

func newFlowHandler(cfg *daemonConfig) *flowHandler {
	rt := flow.NewRuntime()
	dispatch.Register(rt)
	dispatch.RegisterBackend(rt, "backend.default", http1.HandlerFunc(defaultHTTPBackend))
	dispatch.RegisterBackend(rt, "backend.static", http1.HandlerFunc(staticHTTPBackend))

	program, callSites, entryPC := buildRoutingProgram(cfg.FlowProgram)
	if err := flow.Link(program, rt, callSites); err != nil {
		// A link failure here means the built-in program itself is wrong;
		// that is a programming error, not a runtime condition a request
		// handler can recover from.
		panic(err)
	}
	return &flowHandler{program: program, rt: rt, entryPC: entryPC}
}

func (fh *flowHandler) ServeHTTP(ch *http1.Channel) {
	runner, err := flow.NewRunnerAt(fh.program, fh.rt, routeHandlerName, ch, fh.entryPC)
	if err != nil {
		ch.SetStatus(500, "")
		ch.Complete()
		return
	}
	if _, _, err := runner.Run(); err != nil {
		ch.SetStatus(500, "")
		ch.Complete()
	}
}
