// Command mcpgate is a resilient bidirectional bridge between a local
// process speaking line-delimited JSON-RPC 2.0 over stdin/stdout and a
// remote MCP server exposing an HTTP POST + SSE transport.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/viant/jsonrpc/internal/bridge/config"
	"github.com/viant/jsonrpc/internal/bridge/frameio"
	"github.com/viant/jsonrpc/internal/bridge/router"
	"github.com/viant/jsonrpc/internal/bridge/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.FromArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", frameio.Tag, err)
		return 1
	}

	debug := frameio.NewDebugger(stderr, cfg.Debug)
	out := frameio.NewWriter(stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var r *router.Router
	sup := supervisor.New(supervisor.Options{
		URL:              cfg.URL,
		BaseDelay:        cfg.BaseDelay,
		DelayCap:         cfg.DelayCap,
		MaxAttempts:      cfg.MaxAttempts,
		RecoveryInterval: cfg.RecoveryInterval,
		AuthToken:        cfg.AuthToken,
		WatchdogInterval: cfg.WatchdogInterval,
	}, debug, out.Emit, func(raw []byte) {
		if r != nil {
			r.HandleUpstreamFrame(raw)
		}
	})
	r = router.New(ctx, sup, out, debug)

	debug.Debugf("connecting to %s", cfg.URL)
	sup.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stdinClosed := make(chan struct{})
	go func() {
		defer close(stdinClosed)
		reader := frameio.NewReader(stdin)
		if err := reader.ReadLines(func(line []byte) bool {
			r.HandleStdinLine(line)
			return true
		}); err != nil {
			debug.Errorf("stdin read error: %v", err)
		}
	}()

	select {
	case sig := <-sigCh:
		debug.Debugf("received %s, shutting down", sig)
	case <-stdinClosed:
		debug.Debugf("stdin closed, shutting down")
	}

	sup.Shutdown(ctx)
	<-sup.Done()
	return 0
}
