package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"server/internal/infra"
	"server/internal/sqlinline"
)

func main() {
	var (
		orgFlag    string
		planFlag   string
		periodFlag string
	)

	flag.StringVar(&orgFlag, "org", "", "organization ID to update (UUID)")
	flag.StringVar(&planFlag, "plan", "", "plan to assign (empty string clears the plan)")
	flag.StringVar(&periodFlag, "period-start", "", "billing period anchor (RFC3339, defaults to now)")
	flag.Parse()

	_ = godotenv.Load()

	orgID := strings.TrimSpace(orgFlag)
	if orgID == "" {
		exitWithError(errors.New("-org is required"))
	}
	plan := strings.TrimSpace(strings.ToLower(planFlag))

	periodStart := time.Now().UTC()
	if periodFlag != "" {
		parsed, err := time.Parse(time.RFC3339, periodFlag)
		if err != nil {
			exitWithError(fmt.Errorf("invalid -period-start: %w", err))
		}
		periodStart = parsed
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "orgplan")
	runner := infra.NewSQLRunner(pool, logger)

	var planArg *string
	if plan != "" {
		planArg = &plan
	}
	if _, err := runner.Exec(ctx, sqlinline.QUpdateOrganizationPlan, orgID, planArg, periodStart); err != nil {
		exitWithError(fmt.Errorf("failed to update organization plan: %w", err))
	}

	if plan == "" {
		fmt.Printf("Organization %s moved to the free tier\n", orgID)
		return
	}
	fmt.Printf("Organization %s updated to plan %s (period start %s)\n", orgID, plan, periodStart.Format(time.RFC3339))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
