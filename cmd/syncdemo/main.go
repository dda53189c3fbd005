package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"diffsync/pkg/docsync"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "interactive":
		fs := flag.NewFlagSet("interactive", flag.ExitOnError)
		text := fs.String("text", "The quick brown fox jumps over the lazy dog", "Initial document content")
		fs.Parse(os.Args[2:])
		runInteractive(*text)
	case "simulate":
		fs := flag.NewFlagSet("simulate", flag.ExitOnError)
		iterations := fs.Int("iterations", 10, "Number of edit rounds")
		fs.Parse(os.Args[2:])
		runSimulation(*iterations)
	case "benchmark":
		fs := flag.NewFlagSet("benchmark", flag.ExitOnError)
		iterations := fs.Int("iterations", 1000, "Number of sync cycles")
		fs.Parse(os.Args[2:])
		runBenchmark(*iterations)
	default:
		printUsage()
		os.Exit(2)
	}
}

// runInteractive drives two in-process engines from stdin, one round at a
// time, so the diff/patch cycle can be watched by hand.
func runInteractive(initialText string) {
	fmt.Println("=== Differential Synchronization Demo ===")
	fmt.Println("Two engines, Alice and Bob, edit the same document.")
	printInteractiveHelp()

	alice := docsync.NewWithNodeID(initialText, "Alice")
	bob := docsync.NewWithNodeID(initialText, "Bob")
	printState(alice, bob)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("\n> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "quit" || line == "q":
			fmt.Println("Goodbye!")
			return
		case line == "sync" || line == "s":
			fmt.Println("=== Synchronizing ===")
			outResult, inResult := alice.SyncWith(bob)
			printSyncResults(outResult, inResult)
			printState(alice, bob)
		case line == "show":
			printState(alice, bob)
		case strings.HasPrefix(line, "a "):
			alice.Edit(strings.TrimSpace(strings.TrimPrefix(line, "a ")))
			fmt.Println("Alice edited the document")
			printState(alice, bob)
		case strings.HasPrefix(line, "b "):
			bob.Edit(strings.TrimSpace(strings.TrimPrefix(line, "b ")))
			fmt.Println("Bob edited the document")
			printState(alice, bob)
		case line == "help" || line == "h":
			printInteractiveHelp()
		default:
			fmt.Println("Unknown command. Type 'help' for commands.")
		}
		fmt.Print("\n> ")
	}
}

// runSimulation plays scripted concurrent edits through both engines with a
// sync after every round, printing how the texts merge.
func runSimulation(iterations int) {
	fmt.Println("=== Concurrent Edit Simulation ===")

	alice := docsync.NewWithNodeID("The cat sat on the mat.", "Alice")
	bob := docsync.NewWithNodeID("The cat sat on the mat.", "Bob")

	aliceEdits := []string{
		"The big cat sat on the mat.",
		"The big black cat sat on the mat.",
		"The big black cat sat on the soft mat.",
		"The big black cat sat comfortably on the soft mat.",
	}
	bobEdits := []string{
		"The cat sat on the red mat.",
		"The cat sat peacefully on the red mat.",
		"The cat sat peacefully on the red woolen mat.",
		"The friendly cat sat peacefully on the red woolen mat.",
	}

	fmt.Println("Initial state:")
	printState(alice, bob)

	rounds := iterations
	if rounds > len(aliceEdits) {
		rounds = len(aliceEdits)
	}
	for i := 0; i < rounds; i++ {
		fmt.Printf("\n=== Iteration %d ===\n", i+1)

		alice.Edit(aliceEdits[i])
		bob.Edit(bobEdits[i])
		fmt.Println("After concurrent edits:")
		printState(alice, bob)

		outResult, inResult := alice.SyncWith(bob)
		fmt.Println("\nAfter synchronization:")
		printSyncResults(outResult, inResult)
		printState(alice, bob)
	}
}

// runBenchmark measures raw sync throughput over fresh engine pairs.
func runBenchmark(iterations int) {
	fmt.Println("=== Synchronization Benchmark ===")
	if iterations < 1 {
		iterations = 1
	}

	start := time.Now()
	successfulSyncs := 0
	totalEdits := 0

	for i := 0; i < iterations; i++ {
		alice := docsync.NewWithNodeID(fmt.Sprintf("Document %d content", i), "Alice")
		bob := docsync.NewWithNodeID(fmt.Sprintf("Document %d content", i), "Bob")

		alice.Edit(fmt.Sprintf("Alice modified document %d with some changes", i))
		bob.Edit(fmt.Sprintf("Bob also modified document %d differently", i))

		outResult, inResult := alice.SyncWith(bob)
		if outResult.Success && inResult.Success {
			successfulSyncs++
		}
		totalEdits += outResult.Edits.Len() + inResult.Edits.Len()
	}

	duration := time.Since(start)
	fmt.Printf("Completed %d synchronization cycles in %v\n", iterations, duration)
	fmt.Printf("Successful syncs: %d (%.1f%%)\n", successfulSyncs, float64(successfulSyncs)/float64(iterations)*100)
	fmt.Printf("Total edits processed: %d\n", totalEdits)
	fmt.Printf("Average time per sync: %v\n", duration/time.Duration(iterations))
	fmt.Printf("Syncs per second: %.1f\n", float64(iterations)/duration.Seconds())
}

func printState(alice, bob *docsync.SyncEngine) {
	fmt.Println("\nCurrent state:")
	fmt.Printf("  Alice: %q\n", truncate(alice.Text(), 60))
	fmt.Printf("  Bob:   %q\n", truncate(bob.Text(), 60))
	if alice.Text() == bob.Text() {
		fmt.Println("  documents are in sync")
	} else {
		fmt.Println("  documents differ")
	}
}

func printSyncResults(out, in docsync.SyncResult) {
	if !out.Edits.IsEmpty() {
		fmt.Printf("  Alice -> Bob: %d edits\n", out.Edits.Len())
	}
	if !in.Edits.IsEmpty() {
		fmt.Printf("  Bob -> Alice: %d edits\n", in.Edits.Len())
	}
	if out.Edits.IsEmpty() && in.Edits.IsEmpty() {
		fmt.Println("  no changes to sync")
	}
	if !out.Success {
		fmt.Printf("  outgoing direction failed: %s\n", out.Message)
	}
	if !in.Success {
		fmt.Printf("  incoming direction failed: %s\n", in.Message)
	}
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max-3] + "..."
}

func printUsage() {
	fmt.Println("Usage: syncdemo <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  interactive  - drive two engines by hand (--text)")
	fmt.Println("  simulate     - scripted concurrent edit rounds (--iterations)")
	fmt.Println("  benchmark    - measure sync throughput (--iterations)")
}

func printInteractiveHelp() {
	fmt.Println("Commands:")
	fmt.Println("  a <text>  - edit Alice's document")
	fmt.Println("  b <text>  - edit Bob's document")
	fmt.Println("  sync      - run a sync cycle")
	fmt.Println("  show      - print both documents")
	fmt.Println("  help      - show this help")
	fmt.Println("  quit      - exit")
}
