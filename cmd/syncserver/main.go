package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"diffsync/internal/logging"
	"diffsync/pkg/docstore"
	"diffsync/pkg/server"
)

func main() {
	// Parse command line flags
	address := flag.String("address", "127.0.0.1:8080", "TCP listen address")
	httpAddress := flag.String("http-address", "", "HTTP listen address for /ws and /status (empty disables)")
	databasePath := flag.String("database-path", "documents.db", "Badger database directory")
	documentName := flag.String("document-name", docstore.DefaultDocumentName, "Name of the document to serve")
	storeKind := flag.String("store", "badger", "Document store backend (badger|memory|redis|mongo)")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis address (store=redis)")
	redisPassword := flag.String("redis-password", "", "Redis password (store=redis)")
	redisDB := flag.Int("redis-db", 0, "Redis database number (store=redis)")
	mongoURI := flag.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI (store=mongo)")
	mongoDatabase := flag.String("mongo-db", "diffsync", "MongoDB database name (store=mongo)")
	envFile := flag.String("env", ".env", "Path to .env file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	// Override with environment variables if they exist
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		*redisAddr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		*redisPassword = password
	}
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		*mongoURI = uri
	}

	level := "info"
	if *debug {
		level = "debug"
	}
	if err := logging.Configure(*debug, level); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	logger := logging.GetLogger()
	defer logger.Sync()

	store, err := openStore(*storeKind, *databasePath, *redisAddr, *redisPassword, *redisDB, *mongoURI, *mongoDatabase)
	if err != nil {
		logger.Fatal("Failed to open document store",
			zap.String("store", *storeKind),
			zap.Error(err))
	}
	logger.Info("Document store ready", zap.String("store", *storeKind))

	config := server.DefaultConfig()
	config.Address = *address
	config.HTTPAddress = *httpAddress
	config.DocumentName = *documentName

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	syncServer, err := server.NewSyncServer(startCtx, config, store, logger)
	cancel()
	if err != nil {
		store.Close()
		logger.Fatal("Failed to create sync server", zap.Error(err))
	}

	if err := syncServer.Start(); err != nil {
		store.Close()
		logger.Fatal("Failed to start sync server", zap.Error(err))
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	syncServer.Stop()
	if err := store.Close(); err != nil {
		logger.Error("Failed to close document store", zap.Error(err))
		os.Exit(1)
	}
}

// openStore builds the configured document store backend.
func openStore(kind, databasePath, redisAddr, redisPassword string, redisDB int, mongoURI, mongoDatabase string) (docstore.Store, error) {
	switch kind {
	case "memory":
		return docstore.NewMemoryStore(), nil
	case "badger":
		return docstore.NewBadgerStore(databasePath)
	case "redis":
		return docstore.NewRedisStore(redisAddr, redisPassword, redisDB)
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return docstore.NewMongoStore(ctx, mongoURI, mongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
