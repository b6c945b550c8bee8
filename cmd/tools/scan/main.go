// One-shot scan tool: fetch a listing, record a snapshot, and print
// the diff against the previous snapshot as a table.
//
// Usage:
//
//	go run ./cmd/tools/scan -notice <noticeId> -owner <ownerUUID> [-keyword <kw>]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/asquitt/govtech-sniper/internal/db"
	"github.com/asquitt/govtech-sniper/internal/feed"
	"github.com/asquitt/govtech-sniper/internal/ingest"
	"github.com/asquitt/govtech-sniper/internal/snapshot"
)

func main() {
	noticeID := flag.String("notice", "", "notice id to scan")
	ownerID := flag.String("owner", "", "owner uuid for the snapshot")
	keyword := flag.String("keyword", "", "optional search keyword")
	flag.Parse()

	if *noticeID == "" || *ownerID == "" {
		flag.Usage()
		os.Exit(2)
	}

	owner, err := uuid.Parse(*ownerID)
	if err != nil {
		log.Fatalf("Invalid owner uuid: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatal(err)
	}

	store := db.NewStore(pool)
	worker := ingest.NewWorker(store, feed.NewClient(os.Getenv("SAM_API_KEY")))

	result, err := worker.ScanListing(ctx, owner, *noticeID, *keyword)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	if result.Created {
		fmt.Printf("New snapshot %s recorded (hash %.12s)\n", result.Snapshot.ID, result.Snapshot.ContentHash)
	} else {
		fmt.Println("Listing unchanged since last snapshot")
	}

	from, to, err := store.DiffWindow(ctx, *noticeID, nil, nil)
	if errors.Is(err, db.ErrNotEnoughSnapshots) {
		fmt.Println("Only one snapshot exists; nothing to diff yet")
		return
	}
	if err != nil {
		log.Fatal(err)
	}

	changes := snapshot.Diff(snapshot.Summarize(from.RawPayload), snapshot.Summarize(to.RawPayload))
	if len(changes) == 0 {
		fmt.Printf("No field changes between %s and %s\n", from.ID, to.ID)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Field", "From", "To"})
	for _, ch := range changes {
		t.AppendRow(table.Row{ch.Field, deref(ch.From), deref(ch.To)})
	}
	t.Render()
}

func deref(s *string) string {
	if s == nil {
		return "(absent)"
	}
	return *s
}
