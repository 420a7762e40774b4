// Command editor is the terminal client for AI Video Pro.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/aivideopro/aivideopro/internal/client"
	"github.com/aivideopro/aivideopro/internal/tui"
)

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("url", envOr("AVP_API_URL", client.DefaultBaseURL), "API base URL")
	apiKey := flag.String("key", os.Getenv("AVP_API_KEY"), "API key (avp_live_...)")
	video := flag.String("video", "", "Local video path or hosted video URL")
	prompt := flag.String("prompt", "", "Edit description")
	interval := flag.Duration("poll-interval", client.DefaultPollInterval, "Job status polling interval")
	timeout := flag.Duration("poll-timeout", client.DefaultPollTimeout, "Give up waiting for a job after this long")
	flag.Parse()

	api, err := client.New(*apiURL, *apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (set AVP_API_KEY or pass -key)\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := tui.NewModel(ctx, api, tui.Options{
		VideoURL:     *video,
		Prompt:       *prompt,
		PollInterval: *interval,
		PollTimeout:  *timeout,
	})
	program := tea.NewProgram(m)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

