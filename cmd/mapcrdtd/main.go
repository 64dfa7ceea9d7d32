package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	typ "github.com/crdtkit/mapcrdt/internal/types"
	"github.com/crdtkit/mapcrdt/pkg/mapcrdt"
)

func main() {
	ctx := context.Background()

	appDataDir := os.Getenv("XDG_DATA_HOME")
	if appDataDir == "" {
		home, _ := os.UserHomeDir()
		appDataDir = filepath.Join(home, ".local", "share", "mapcrdt")
	}
	os.MkdirAll(appDataDir, 0755)

	opts := mapcrdt.Options{
		DataDir:            appDataDir,
		Actor:              "node-1",
		DistributedEnabled: true,
	}
	db, err := mapcrdt.New(ctx, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Shutdown()

	networkID, err := db.CreateNetwork(typ.NetworkConfig{
		NetworkID: "consortium-1",
		Name:      "Consortium 1",
	})
	if err != nil {
		log.Fatal(err)
	}

	widgets := db.Collection("widgets")
	if err := widgets.AttachToNetwork(networkID); err != nil {
		log.Fatal(err)
	}

	fmt.Println("mapcrdt node started")

	doc := map[string]interface{}{
		"id":    "widget-1",
		"name":  "gizmo",
		"price": 19.99,
	}
	if _, err := widgets.Insert(ctx, doc); err != nil {
		log.Fatal(err)
	}
	fmt.Println("inserted widget-1")

	result, err := widgets.Find("widget-1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("widget-1: %v\n", result)

	all, err := widgets.FindAll()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("collection has %d documents\n", len(all))

	fmt.Println("mapcrdt running. Press Ctrl+C to exit.")
	select {}
}
