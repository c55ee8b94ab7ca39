package main

import (
	"context"
	"log"
	"os"

	"milestonetrust/attest"
	"milestonetrust/auth"
	"milestonetrust/db"
	"milestonetrust/dispute"
	"milestonetrust/escrow"
	"milestonetrust/events"
	"milestonetrust/payout"
	"milestonetrust/store"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	owner := os.Getenv("ESCROW_OWNER_ACCOUNT")
	if owner == "" {
		log.Fatal("ESCROW_OWNER_ACCOUNT is required")
	}

	contracts := store.NewPG(pool)
	sink := events.NewLogSink(log.Default())
	treasury := payout.NewDispatcher(noopSender{})
	policy := escrow.DefaultPolicy()
	keyring := attest.NewKeyring(owner)

	registry := escrow.NewRegistry(contracts, sink)
	custody := escrow.NewCustody(contracts, treasury, sink, policy)
	lifecycle := escrow.NewLifecycle(contracts, treasury, sink, policy)
	engine := dispute.NewEngine(contracts, treasury, sink, keyring, policy, owner)
	authService := auth.NewService(auth.NewRepository(pool), os.Getenv("JWT_SECRET"))

	log.Printf("escrow engine ready: registry=%v custody=%v lifecycle=%v disputes=%v auth=%v",
		registry != nil, custody != nil, lifecycle != nil, engine != nil, authService != nil)

	if failed := treasury.Drain(); len(failed) > 0 {
		log.Printf("unreconciled transfers at shutdown: %d", len(failed))
	}
}

// noopSender stands in for the payment rail until one is wired.
type noopSender struct{}

func (noopSender) Send(context.Context, payout.Transfer) error { return nil }
