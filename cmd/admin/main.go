// Command admin runs administrative operations against the engine database
// without going through the network API.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"
	fxmodules "engagement-engine/internal/fx"
	"engagement-engine/internal/notify"
	"engagement-engine/internal/service"

	"go.uber.org/fx"
)

const usage = `usage: admin <command> [flags]

commands:
  register    -user ID [-department D]
  correct     -user ID -delta N -reason TEXT
  department  -user ID -department D
  close       -type daily|weekly|monthly|yearly -at RFC3339 [-department D]
  recompute   -type daily|weekly|monthly|yearly [-at RFC3339] [-department D]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var admin *service.AdminService
	app := fx.New(
		fxmodules.Core,
		fx.NopLogger,
		fx.Populate(&admin),
		fx.Invoke(closeOnStop),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancelRun := context.WithTimeout(context.Background(), constants.RankingPassTimeout)
	out, err := run(ctx, admin, os.Args[1], os.Args[2:])
	cancelRun()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancelStop()
	_ = app.Stop(stopCtx)

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func closeOnStop(lc fx.Lifecycle, db *sql.DB, publisher notify.Publisher) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = publisher.Close()
			return db.Close()
		},
	})
}

// refreshRankings rebuilds every open bucket after a change. The running
// server's scheduler never sees this process's dirty flag.
func refreshRankings(ctx context.Context, admin *service.AdminService) error {
	if err := admin.RefreshRankings(ctx); err != nil {
		return fmt.Errorf("change applied but ranking refresh failed: %w", err)
	}
	return nil
}

func run(ctx context.Context, admin *service.AdminService, cmd string, args []string) (any, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	userID := fs.String("user", "", "user id")
	department := fs.String("department", "", "department")
	delta := fs.Int("delta", 0, "signed point adjustment")
	reason := fs.String("reason", "", "correction reason")
	rankingType := fs.String("type", "", "ranking type")
	at := fs.String("at", "", "instant inside the period, RFC3339")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch cmd {
	case "register":
		return admin.RegisterUser(ctx, *userID, *department)
	case "correct":
		res, err := admin.CorrectPoints(ctx, *userID, *delta, *reason)
		if err != nil {
			return nil, err
		}
		return res, refreshRankings(ctx, admin)
	case "department":
		if err := admin.SetDepartment(ctx, *userID, *department); err != nil {
			return nil, err
		}
		return map[string]string{"user_id": *userID, "department": *department}, refreshRankings(ctx, admin)
	case "close", "recompute":
		t, err := domain.ParseRankingType(*rankingType)
		if err != nil {
			return nil, err
		}
		instant := time.Now()
		if *at != "" {
			if instant, err = time.Parse(time.RFC3339, *at); err != nil {
				return nil, domain.NewValidationError("at", err.Error())
			}
		} else if cmd == "close" {
			return nil, domain.NewValidationError("at", "required")
		}
		if cmd == "close" {
			return admin.ClosePeriod(ctx, t, instant, *department)
		}
		return admin.RecomputeRanking(ctx, t, instant, *department)
	default:
		fmt.Fprint(os.Stderr, usage)
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}
