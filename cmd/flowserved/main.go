// Command flowserved wires the reactor, connector, HTTP/1 and FastCGI
// transports, and the Flow routing engine into one runnable process. It
// exists to exercise the library end to end with a real listening socket;
// it is not itself part of the core.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := defaultDaemonConfig()

	root := &cobra.Command{
		Use:   "flowserved",
		Short: "Reactor-driven HTTP/1 and FastCGI server with an embedded Flow routing engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cfg)
		},
	}

	flags := root.Flags()
	flags.SortFlags = false
	bindFlags(flags, cfg)

	return root
}

func bindFlags(flags *pflag.FlagSet, cfg *daemonConfig) {
	flags.StringVar(&cfg.Address, "address", cfg.Address, "bind address")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "bind port")
	flags.StringVar(&cfg.Protocol, "protocol", cfg.Protocol, `connection protocol: "http/1.1" or "fcgi"`)
	flags.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "value of the Server response header (empty disables it)")
	flags.IntVar(&cfg.MaxKeepAliveRequests, "max-keep-alive-requests", cfg.MaxKeepAliveRequests, "requests served per connection before forcing Connection: close (0 = unlimited)")
	flags.StringVar(&cfg.FlowProgram, "flow-program", cfg.FlowProgram, `built-in routing program to link: "static" or "default-backend"`)
	flags.BoolVar(&cfg.ReusePort, "reuse-port", cfg.ReusePort, "set SO_REUSEPORT on the listening socket")
	flags.DurationVar(&cfg.MaxReadIdle, "max-read-idle", cfg.MaxReadIdle, "idle read timeout before a connection is torn down (0 disables)")
	flags.DurationVar(&cfg.MaxWriteIdle, "max-write-idle", cfg.MaxWriteIdle, "idle write timeout before a connection is torn down (0 disables)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logrus level: trace, debug, info, warn, error")
}
