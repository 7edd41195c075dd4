package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/app"
	"github.com/lexiqai/cuecam/internal/config"
	"github.com/lexiqai/cuecam/internal/coordinator"
	"github.com/lexiqai/cuecam/internal/listener"
	"github.com/lexiqai/cuecam/internal/observability"
)

const usage = `Commands:
  /background   leave the camera screen (stops listening)
  /foreground   return to the camera screen
  /status       print the listener and camera screen status
  /takes        list saved recordings
  /quit         exit
With ENGINE=mock any other line is spoken to the recognizer.`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	core, err := app.New(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize voice command core")
	}
	defer core.Close()

	camera := coordinator.NewLogCamera(logger)
	coord := coordinator.New(core.Listener, camera, coordinator.NewBellFeedback(os.Stderr), coordinator.Config{Logger: logger})
	defer coord.Close()
	core.Listener.Subscribe(coord)
	core.Listener.Subscribe(listener.ObserverFuncs{OnStatus: printStatus})

	fmt.Fprintln(os.Stderr, usage)
	coord.Arm()

	lines := make(chan string)
	go readLines(lines)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			logger.Info().Msg("Shutting down")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(line, core, coord, camera, logger) {
				return
			}
		}
	}
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out <- line
		}
	}
}

// handleLine reports false when the user asked to quit
func handleLine(line string, core *app.App, coord *coordinator.Coordinator, camera *coordinator.LogCamera, logger zerolog.Logger) bool {
	switch line {
	case "/quit":
		return false
	case "/background":
		coord.Background()
	case "/foreground":
		coord.Foreground()
	case "/status":
		printStatus(core.Listener.Status())
		fmt.Fprintf(os.Stderr, "screen=%s recording=%t\n", coord.Context(), coord.Recording())
	case "/takes":
		saved := camera.Saved()
		if len(saved) == 0 {
			fmt.Fprintln(os.Stderr, "No saved takes")
		}
		for _, take := range saved {
			fmt.Fprintln(os.Stderr, take)
		}
	default:
		if strings.HasPrefix(line, "/") {
			fmt.Fprintln(os.Stderr, usage)
			return true
		}
		if core.Mock == nil {
			logger.Warn().Msg("Typed speech only works with ENGINE=mock")
			return true
		}
		if !core.Mock.Say(line) {
			fmt.Fprintln(os.Stderr, "Not listening")
		}
	}
	return true
}

func printStatus(s listener.Status) {
	msg := fmt.Sprintf("[%s] context=%s generation=%d", s.State, s.Context, s.Generation)
	if s.HasError {
		msg += " error=" + s.ErrorMessage
		if s.Terminal {
			msg += " (giving up)"
		}
	}
	if s.Suspended {
		msg += " suspended"
	}
	fmt.Fprintln(os.Stderr, msg)
}
