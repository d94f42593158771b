package sync_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/sync"
)

// This example demonstrates a pull followed by a push.
// Note: This is for documentation only and won't run as a test.
func ExampleNew() {
	database, err := db.Open("vertexads.db")
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := database.InitSchema(); err != nil {
		log.Fatal(err)
	}

	engine := sync.New(database, sync.Options{BaseURL: "https://api.example.com"})

	ctx := context.Background()
	if _, err := engine.Pull(ctx); err != nil {
		log.Fatal(err)
	}
	res, err := engine.Push(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Pushed", res.Transactions.Applied, "transactions")
}

// This example demonstrates handling a restore without a remote.
func ExampleEngine_Restore() {
	database, err := db.Open("vertexads.db")
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	engine := sync.New(database, sync.Options{})

	_, err = engine.Restore(context.Background())
	if errors.Is(err, sync.ErrRemoteNotConfigured) {
		fmt.Println("Configure a remote first")
	}
}
