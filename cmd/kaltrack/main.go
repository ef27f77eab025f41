package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/avasiliev/kaltrack/internal/buildinfo"
	"github.com/avasiliev/kaltrack/internal/client/cli"
	"github.com/avasiliev/kaltrack/internal/client/config"
	"github.com/avasiliev/kaltrack/internal/logging"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = app.Close() }()

	if err := app.Run(ctx, commandArgs(os.Args[1:])); err != nil {
		log.Fatalf("%v", err)
	}
}

// commandArgs strips configuration flags, leaving the subcommand and its
// arguments.
func commandArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(a) > 0 && a[0] == '-' {
			// flag with separate value form
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
			}
			continue
		}
		out = append(out, a)
	}
	return out
}
