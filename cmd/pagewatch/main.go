// File: cmd/pagewatch/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/watchloom/pagewatch/cmd"
	"github.com/watchloom/pagewatch/internal/observability"
)

const panicLogFile = "panic.log"

const asciiArt = `
   _ __  __ _  __ _  _____      ____ _| |_ ___| |__
  | '_ \/ _' |/ _' |/ _ \ \ /\ / / _' | __/ __| '_ \
  | |_) | (_| | (_| |  __/\ V  V / (_| | || (__| | | |
  | .__/ \__,_|\__, |\___| \_/\_/ \__,_|\__\___|_| |_|
  |_|          |___/

`

// Allows mocking os.Exit in tests.
var osExit = os.Exit

// main is the entry point of the application.
func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0)
			} else {
				osExit(1)
			}
		}
		return
	}

	// -- Interactive Mode --
	fmt.Print(asciiArt)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("pagewatch > ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		executeInteractiveCommand(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}

	fmt.Println("Exiting pagewatch.")
}

// executeInteractiveCommand parses and runs one line from the interactive
// shell. A new command tree per line keeps flags from one invocation from
// leaking into the next.
func executeInteractiveCommand(ctx context.Context, line string) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Error: Command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// cobra has already printed the error to stderr; the shell stays up.
	}
}

// handlePanic logs an unrecovered panic to panicLogFile before the process
// exits, so a crash in non-interactive mode leaves a diagnosable trail.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()

		stackTrace := debug.Stack()
		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, stackTrace)

		if err := os.WriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: failed to write panic log: %v\n", err)
		}
		fmt.Fprintf(os.Stderr, "panic: %v\nDetails logged to %s\n", r, panicLogFile)
		osExit(1)
	}
}
