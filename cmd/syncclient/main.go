package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"diffsync/internal/logging"
	"diffsync/pkg/client"
)

func main() {
	// Parse command line flags
	serverAddr := flag.String("server", "127.0.0.1:8080", "Sync server address")
	clientID := flag.String("client-id", "", "Client ID (generated when empty)")
	envFile := flag.String("env", ".env", "Path to .env file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
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

	id := *clientID
	if id == "" {
		id = "client_" + uuid.NewString()[:8]
	}

	config := client.DefaultConfig()
	config.Address = *serverAddr
	config.ClientID = id
	config.OnUpdate = func(before, after string, serverVersion uint64) {
		fmt.Printf("\n[remote update, server v%d]\n", serverVersion)
		printDocument(after)
		fmt.Print("> ")
	}

	c, err := client.Dial(context.Background(), config, logger)
	if err != nil {
		logger.Fatal("Failed to connect to sync server",
			zap.String("server", *serverAddr),
			zap.String("client_id", id),
			zap.Error(err))
	}

	// quitting marks a user-initiated teardown so the watcher below can tell
	// it apart from a dead connection.
	var quitting atomic.Bool
	go func() {
		<-c.Done()
		if !quitting.Load() {
			fmt.Println("\nConnection lost.")
			os.Exit(1)
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		quitting.Store(true)
		c.Close()
		os.Exit(0)
	}()

	fmt.Printf("Connected to %s as %s. Type 'help' for commands.\n", *serverAddr, id)
	printDocument(c.Text())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "quit" || line == "exit":
			quitting.Store(true)
			c.Close()
			fmt.Println("Goodbye!")
			return
		case line == "show":
			printDocument(c.Text())
		case line == "stats":
			printStats(c)
		case line == "help":
			printHelp()
		case strings.HasPrefix(line, "edit "):
			c.Edit(strings.TrimSpace(strings.TrimPrefix(line, "edit ")))
			fmt.Println("Edited. The change reaches the server on the next tick.")
		default:
			fmt.Println("Unknown command.")
			printHelp()
		}
		fmt.Print("> ")
	}

	// stdin closed
	quitting.Store(true)
	c.Close()
}

func printDocument(text string) {
	fmt.Println("--- document -------------------------------------------")
	fmt.Println(text)
	fmt.Println("---------------------------------------------------------")
}

func printStats(c *client.SyncClient) {
	stats := c.Stats()
	fmt.Printf("  client id:        %s\n", c.ClientID())
	fmt.Printf("  document version: %d\n", stats.DocumentVersion)
	fmt.Printf("  document length:  %d\n", stats.DocumentLength)
	fmt.Printf("  shadow checksum:  %s\n", stats.ShadowChecksum)
	fmt.Printf("  server version:   %d\n", c.ServerVersion())
}

func printHelp() {
	fmt.Println("Available commands:")
	fmt.Println("  edit <text>  - replace the document content")
	fmt.Println("  show         - print the current document")
	fmt.Println("  stats        - print sync statistics")
	fmt.Println("  help         - show this help")
	fmt.Println("  quit         - disconnect and exit")
}
