package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/af-corp/relay/internal/subscription"
	"github.com/af-corp/relay/internal/types"
)

func main() {
	user := flag.String("user", "", "user ID (required)")
	team := flag.String("team", "", "team ID (required)")
	plan := flag.String("plan", "pro", "plan name")
	daily := flag.Int("daily-requests", 0, "requests per day (0 = unlimited)")
	monthly := flag.Int64("monthly-tokens", 0, "tokens per month for the team (0 = unlimited)")
	backends := flag.String("backends", "", "comma-separated backends the plan may target explicitly (empty = all)")
	expires := flag.String("expires", "", "expiry duration (e.g., 30d, 720h); empty never expires")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *user == "" || *team == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -user and -team are required")
		os.Exit(1)
	}

	p := types.Plan{
		Name:          *plan,
		DailyRequests: *daily,
		MonthlyTokens: *monthly,
	}
	for _, b := range strings.Split(*backends, ",") {
		if b = strings.TrimSpace(b); b != "" {
			p.AllowedBackends = append(p.AllowedBackends, b)
		}
	}
	if *expires != "" {
		dur, err := subscription.ParseDuration(*expires)
		if err != nil {
			log.Fatalf("invalid expires: %v", err)
		}
		at := time.Now().Add(dur).UTC()
		p.ExpiresAt = &at
	}

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "relay")
		pass := envOrDefault("DB_PASSWORD", "relay-dev")
		dbname := envOrDefault("DB_NAME", "relay")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	store := subscription.NewStore(conn, nil, nil)
	if err := store.Upsert(ctx, subscription.Subscription{UserID: *user, TeamID: *team, Plan: p}); err != nil {
		log.Fatalf("failed to save subscription: %v", err)
	}

	fmt.Println("=== Subscription Saved ===")
	fmt.Println()
	fmt.Printf("  User:            %s\n", *user)
	fmt.Printf("  Team:            %s\n", *team)
	fmt.Printf("  Plan:            %s\n", p.Name)
	fmt.Printf("  Daily requests:  %s\n", limitString(int64(p.DailyRequests)))
	fmt.Printf("  Monthly tokens:  %s\n", limitString(p.MonthlyTokens))
	if len(p.AllowedBackends) > 0 {
		fmt.Printf("  Backends:        %s\n", strings.Join(p.AllowedBackends, ", "))
	}
	if p.ExpiresAt != nil {
		fmt.Printf("  Expires:         %s\n", p.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("==========================")
}

func limitString(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
