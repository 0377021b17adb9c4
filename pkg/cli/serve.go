package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/hybrid-runner/pkg/config"
	"github.com/devicelab-dev/hybrid-runner/pkg/executor"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
	"github.com/devicelab-dev/hybrid-runner/pkg/server"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Accept test runs over HTTP",
	Description: `Starts the HTTP surface:

  POST /runs        {"test_path": "...", "force_agent": false}  -> 202 {"run_id"}
  GET  /runs        list submitted runs
  GET  /runs/{id}   status and result of one run
  GET  /usage       token usage summary
  GET  /healthz     health check

Examples:
  hybrid-runner serve
  hybrid-runner serve --addr :9000 --root ./tests --max-concurrent 2`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Listen address (default: server.addr from config)",
		},
		&cli.StringFlag{
			Name:  "root",
			Usage: "Directory relative test paths are resolved against",
		},
		&cli.IntFlag{
			Name:  "max-concurrent",
			Usage: "Runs executed at once; the rest stay queued",
			Value: 1,
		},
	},
	Action: runServe,
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	addr := c.String("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}

	initLogging(config.GetLogsDir(), c.Bool("verbose"))
	defer logger.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := server.New(serverRunFunc(rt, cfg.Env), rt.usage, server.Config{
		TestRoot:      c.String("root"),
		MaxConcurrent: c.Int("max-concurrent"),
	})
	fmt.Printf("Listening on %s\n", addr)
	return srv.ListenAndServe(ctx, addr)
}

// serverRunFunc runs each submitted test in a fresh browser session, with
// the config's env defaults under the request's inputs.
func serverRunFunc(rt *runtime, defaults map[string]string) server.RunFunc {
	return func(ctx context.Context, req orchestrator.Request) (*orchestrator.TestResult, error) {
		inputs, _ := mergeInputs(defaults, nil)
		for k, v := range req.Inputs {
			inputs[k] = v
		}
		req.Inputs = inputs
		return executor.RunOne(ctx, rt.Sessions(), rt.Orchestrator, req)
	}
}
