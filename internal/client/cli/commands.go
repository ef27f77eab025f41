package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Login prompts for credentials and stores the resulting token pair.
func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}

	if err := a.authService.Login(ctx, email, string(password)); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	fmt.Println("Logged in.")
	return nil
}

// RunSync starts the sync orchestrator and blocks until SIGINT or SIGTERM.
func (a *App) RunSync(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Background sync running, Ctrl-C to stop.")
	a.orchestrator.Run(ctx)
	return nil
}

// SyncOnce drains the outbox one time and reports the result.
func (a *App) SyncOnce(ctx context.Context) error {
	rep, err := a.drainer.DrainOnce(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	fmt.Printf("Synced: %d completed, %d retried, %d failed.\n",
		rep.Completed, rep.Retried, rep.Failed)
	return nil
}

// Status prints the outbox counts and any permanently failed mutations.
func (a *App) Status(ctx context.Context) error {
	mode := "offline"
	if a.prober.Check(ctx) {
		mode = "online"
	}
	fmt.Printf("Mode: %s\n", mode)

	counts, err := a.drainer.QueueCounts(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Queue: %d pending, %d in progress, %d completed, %d failed.\n",
		counts[models.OutboxPending], counts[models.OutboxInProgress],
		counts[models.OutboxCompleted], counts[models.OutboxFailed])

	failed, err := a.drainer.FailedEntries(ctx)
	if err != nil {
		return err
	}
	for _, e := range failed {
		fmt.Printf("  failed: %s %s %s: %s\n", e.Operation, e.EntityType, e.EntityID, e.LastError)
	}
	return nil
}

// ShowDay prints the diary for one date with running totals.
func (a *App) ShowDay(ctx context.Context, date string) error {
	sum, err := a.diaryService.Day(ctx, date)
	if err != nil {
		return err
	}

	fmt.Printf("%s", date)
	if sum.Completed {
		fmt.Printf(" (completed)")
	}
	fmt.Println()
	for _, e := range sum.Entries {
		fmt.Printf("  %-10s %6.0f kcal  %g %s\n", e.Meal, e.Calories, e.Quantity, e.Unit)
	}
	fmt.Printf("Total: %.0f kcal, %.1fg protein, %.1fg carbs, %.1fg fat\n",
		sum.Calories, sum.Protein, sum.Carbs, sum.Fat)
	return nil
}

// ListFoods prints the local food catalog.
func (a *App) ListFoods(ctx context.Context) error {
	list, err := a.foodsService.List(ctx)
	if err != nil {
		return err
	}

	for _, f := range list {
		marker := " "
		if f.SyncedAt == nil {
			marker = "*" // not yet confirmed by the backend
		}
		fmt.Printf("%s %-30s %6.0f kcal / %g %s\n", marker, f.Name, f.Calories, f.ServingSize, f.ServingUnit)
	}
	return nil
}

// LogWeight records a weigh-in for today.
func (a *App) LogWeight(ctx context.Context, kilograms string) error {
	kg, err := strconv.ParseFloat(kilograms, 64)
	if err != nil {
		return fmt.Errorf("weight %q: expected a number of kilograms", kilograms)
	}

	w, err := a.journalService.SaveWeight(ctx, models.WeightEntry{
		Date:      time.Now().Format("2006-01-02"),
		Kilograms: kg,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Logged %.1f kg on %s.\n", w.Kilograms, w.Date)
	return nil
}

// ListWeights prints the last month of weigh-ins.
func (a *App) ListWeights(ctx context.Context) error {
	to := time.Now()
	from := to.AddDate(0, -1, 0)
	entries, err := a.journalService.WeightRange(ctx,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return err
	}

	for _, w := range entries {
		marker := " "
		if w.SyncedAt == nil {
			marker = "*"
		}
		fmt.Printf("%s %s %6.1f kg %s\n", marker, w.Date, w.Kilograms, w.Note)
	}
	return nil
}

// Export downloads the account data export into the configured directory.
func (a *App) Export(ctx context.Context) error {
	path, err := a.profileService.ExportData(ctx, a.config.ExportDir)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	fmt.Printf("Export written to %s.\n", path)
	return nil
}
