// Package cli is the terminal front end: command dispatch, prompts, and the
// wiring of store, gateway, coordinator, services and the sync orchestrator.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/avasiliev/kaltrack/internal/client/auth"
	"github.com/avasiliev/kaltrack/internal/client/config"
	"github.com/avasiliev/kaltrack/internal/client/gateway"
	"github.com/avasiliev/kaltrack/internal/client/services"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/client/syncer"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// App holds the assembled application.
type App struct {
	config *config.Config
	log    logging.Logger

	store        *store.Store
	gateway      gateway.Gateway
	coordinator  *auth.Coordinator
	drainer      *syncer.Drainer
	prober       syncer.Prober
	orchestrator *syncer.Orchestrator

	authService    *services.AuthService
	diaryService   *services.DiaryService
	foodsService   *services.FoodsService
	journalService *services.JournalService
	profileService *services.ProfileService

	reader *bufio.Reader
}

// NewApp opens the database and wires every component together.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	// The gateway and the coordinator reference each other; the token
	// source is installed after both exist.
	gw := gateway.NewHTTPGateway(cfg.ServerBaseURL, nil, cfg.HTTPTimeout)
	coord := auth.NewCoordinator(st, gw, log)
	gw.SetTokenSource(coord)
	coord.OnUnauthenticated(func() {
		fmt.Fprintln(os.Stderr, "Session expired, please log in again.")
	})

	drainer := syncer.NewDrainer(st, gw, log, cfg.MaxRetries)
	prober := syncer.NewHTTPProber(cfg.ServerBaseURL+"/health", cfg.HTTPTimeout)
	orch := syncer.NewOrchestrator(drainer, prober, log, cfg.SyncInterval, cfg.OnlineCheckInterval)

	return &App{
		config:         cfg,
		log:            log,
		store:          st,
		gateway:        gw,
		coordinator:    coord,
		drainer:        drainer,
		prober:         prober,
		orchestrator:   orch,
		authService:    services.NewAuthService(st, gw, coord, log, orch),
		diaryService:   services.NewDiaryService(st, gw, log, orch),
		foodsService:   services.NewFoodsService(st, gw, log, orch),
		journalService: services.NewJournalService(st, gw, log, orch),
		profileService: services.NewProfileService(st, gw, coord, log, orch),
		reader:         bufio.NewReader(os.Stdin),
	}, nil
}

// Run dispatches the subcommand named by the first argument.
func (a *App) Run(ctx context.Context, args []string) error {
	cmd := "run"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "login":
		return a.Login(ctx)
	case "logout":
		return a.authService.Logout(ctx)
	case "run":
		return a.RunSync(ctx)
	case "sync":
		return a.SyncOnce(ctx)
	case "status":
		return a.Status(ctx)
	case "day":
		date := time.Now().Format("2006-01-02")
		if len(args) > 1 {
			date = args[1]
		}
		return a.ShowDay(ctx, date)
	case "foods":
		return a.ListFoods(ctx)
	case "weight":
		if len(args) > 1 {
			return a.LogWeight(ctx, args[1])
		}
		return a.ListWeights(ctx)
	case "export":
		return a.Export(ctx)
	default:
		return fmt.Errorf("unknown command %q (expected login, logout, run, sync, status, day, foods, weight or export)", cmd)
	}
}

// Close releases the database.
func (a *App) Close() error {
	return a.store.Close()
}
