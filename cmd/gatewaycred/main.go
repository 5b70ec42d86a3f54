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
	"server/internal/infra/credentials"
)

func main() {
	var (
		secretFlag string
		showFlag   bool
	)

	flag.StringVar(&secretFlag, "secret", "", "gateway client secret to store")
	flag.BoolVar(&showFlag, "show", false, "print whether a secret is currently stored")
	flag.Parse()

	_ = godotenv.Load()

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

	logger := infra.NewLogger("cli", "gatewaycred")
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if showFlag {
		secret, err := store.GatewayClientSecret(ctx)
		if err != nil {
			exitWithError(fmt.Errorf("failed to read secret: %w", err))
		}
		if secret == "" {
			fmt.Println("no gateway client secret stored")
			return
		}
		fmt.Println("gateway client secret is stored")
		return
	}

	if strings.TrimSpace(secretFlag) == "" {
		exitWithError(errors.New("-secret is required (or use -show)"))
	}
	if err := store.SetGatewayClientSecret(ctx, secretFlag); err != nil {
		exitWithError(fmt.Errorf("failed to store secret: %w", err))
	}
	fmt.Println("gateway client secret updated")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
