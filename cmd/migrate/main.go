package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"damagedetect/internal/config"
	"damagedetect/internal/repository/sqlite"
	"damagedetect/internal/services"
	"damagedetect/internal/services/storage"
)

func main() {
	def := config.Default()
	dbPath := flag.String("db", "data/history.db", "History database path")
	imagesDir := flag.String("images", def.ImageDirectory, "Directory containing annotated images")
	prune := flag.Bool("prune", false, "Delete stored images that have no history record")
	reset := flag.Bool("reset", false, "Delete all history records and stored images")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	version, err := db.Version()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Database %s at schema version %d\n", *dbPath, version)

	repo := sqlite.NewInferenceRepository(db)
	store := storage.NewImageStore(*imagesDir)

	if *reset {
		if err := repo.DeleteAll(); err != nil {
			log.Fatalf("Failed to delete history: %v", err)
		}
		if err := os.RemoveAll(*imagesDir); err != nil {
			log.Fatalf("Failed to delete images: %v", err)
		}
		fmt.Println("History cleared")
		return
	}

	files, err := os.ReadDir(*imagesDir)
	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to read images directory: %v", err)
	}

	orphans := 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}

		id := strings.TrimSuffix(file.Name(), ".jpg")
		record, err := repo.GetByID(id)
		if err != nil {
			log.Fatalf("Failed to look up %s: %v", id, err)
		}
		if record != nil {
			continue
		}

		orphans++
		if *prune {
			if err := store.Delete(services.ImageName(id)); err != nil {
				log.Printf("Failed to delete %s: %v", file.Name(), err)
			}
		}
	}

	total, err := repo.GetTotalCount(nil)
	if err != nil {
		log.Fatalf("Failed to count inferences: %v", err)
	}
	size, err := store.Size()
	if err != nil {
		log.Fatalf("Failed to measure image directory: %v", err)
	}

	fmt.Printf("Inferences recorded: %d\n", total)
	fmt.Printf("Stored images: %d bytes\n", size)
	if orphans > 0 {
		if *prune {
			fmt.Printf("Removed %d images without a record\n", orphans)
		} else {
			fmt.Printf("%d images have no record (use -prune to delete them)\n", orphans)
		}
	}
}
