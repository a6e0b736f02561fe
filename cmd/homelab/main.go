// Command homelab is the single entry point for operating the homelab's
// Docker Compose deployment: it resolves the active deployment target,
// validates the service registry against the compose fragments,
// composes the selected fragment bundle with per-service env file
// injection, and only then hands the result to the container runtime.
//
// Usage:
//
//	homelab [flags] <command> [args...]
//
// Commands:
//
//	status              - report composed service health
//	logs <service>      - stream a service's logs
//	fix                 - apply the composed bundle (up -d --remove-orphans)
//	config              - print the resolved plan without dispatching
//	history             - show recent journal entries
//	serve               - run the read-only status API
//	up|down|ps|pull|restart|stop|start [args...] - compose passthrough
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitConfigError = 2
	ExitSchemaError = 3
	ExitCompError   = 4
	ExitLookupError = 5
	ExitDispatch    = 6
	ExitUsage       = 64
)

// stringList collects a repeatable flag value.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	targetOverride := flag.String("target", "", "Explicit deployment root (skips candidate probing)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	var selection stringList
	flag.Var(&selection, "with", "Feature fragment to include (repeatable)")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("homelab %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return ExitUsage
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "homelab: configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)

	// An interrupted invocation only ever reads the declarative
	// inputs, so cancellation at any point is safe by construction.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, logger, *targetOverride, selection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "homelab: %v\n", err)
		return ExitError
	}
	defer app.Close()

	if err := app.dispatch(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "homelab: %v\n", err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func usage() {
	fmt.Fprintf(os.Stderr, `homelab - declarative multi-file Compose launcher

Usage:
  homelab [flags] <command> [args...]

Commands:
  status            Report composed service health
  logs <service>    Stream a service's logs (-follow, -tail N)
  fix               Apply the composed bundle (up -d --remove-orphans)
  config            Print the resolved plan without dispatching
  history           Show recent invocations (-n N)
  serve             Run the read-only status API
  up, down, ps, pull, restart, stop, start
                    Compose passthrough against the composed bundle

Flags:
`)
	flag.PrintDefaults()
}
