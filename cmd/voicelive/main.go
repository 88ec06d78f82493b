// voicelive runs a full-duplex voice session against the live
// conversational endpoint: microphone in, scheduled playback out, tool
// calls brokered to local handlers, with a web dashboard on the side.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/studiokit/voicelive/internal/config"
	"github.com/studiokit/voicelive/internal/log"
	"github.com/studiokit/voicelive/pkg/audioio"
	"github.com/studiokit/voicelive/pkg/playback"
	"github.com/studiokit/voicelive/pkg/session"
	"github.com/studiokit/voicelive/pkg/vision"
	"github.com/studiokit/voicelive/pkg/web"
)

func main() {
	_ = godotenv.Load()

	var (
		mockAudio   = flag.Bool("mock-audio", false, "Use a synthetic audio source instead of the microphone")
		enableVideo = flag.Bool("video", false, "Stream periodic camera snapshots as session context")
		voice       = flag.String("voice", session.DefaultVoice, "Synthesized voice name")
		prompt      = flag.String("prompt", "", "System prompt for the session")
		noDashboard = flag.Bool("no-dashboard", false, "Disable the web dashboard")
	)
	flag.Parse()

	log.Init(config.LogLevel())
	logger := log.L()

	cfg := session.DefaultConfig()
	cfg.APIKey = config.APIKey()
	cfg.Voice = *voice
	cfg.SystemPrompt = *prompt

	// Capture source.
	srcCfg := audioio.DefaultConfig()
	if *mockAudio {
		srcCfg.Backend = audioio.BackendMock
	}
	source, err := audioio.NewSource(srcCfg, logger)
	if err != nil {
		logger.Error("audio source unavailable", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	// Playback path.
	sink, err := playback.NewOtoSink(cfg.OutputSampleRate, 1, logger)
	if err != nil {
		logger.Error("audio output unavailable", "error", err)
		os.Exit(1)
	}
	defer sink.Close()
	scheduler := playback.NewScheduler(sink, nil, cfg.OutputSampleRate, 1, logger)
	defer scheduler.Stop()

	// Optional camera.
	var camera vision.Snapshotter
	if *enableVideo {
		cam, err := vision.OpenCamera(0, logger)
		if err != nil {
			logger.Warn("camera unavailable, continuing audio-only", "error", err)
		} else {
			camera = cam
			defer cam.Close()
		}
	}

	controller := session.NewController(cfg, source, scheduler, camera, logger)

	var dashboard *web.Server
	if !*noDashboard {
		dashboard = web.NewServer(config.DashboardPort(), controller, logger)
		dashboard.StartAsync()
		defer dashboard.Shutdown()

		controller.OnStateChange = func(session.State) { dashboard.PublishState() }
		controller.OnTurn = func(m session.Metrics) {
			dashboard.RecordTurn(m)
			dashboard.PublishState()
		}
		controller.OnSnapshot = func(data []byte, _ string) {
			dashboard.PublishSnapshot(data)
		}
	}

	controller.OnText = func(text string) {
		fmt.Print(text)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Reconnect once per drop, after a short pause.
	controller.OnSessionDropped = func(err error) {
		logger.Warn("session dropped, reconnecting", "error", err)
		time.Sleep(2 * time.Second)
		if ctx.Err() != nil {
			return
		}
		if err := controller.Connect(ctx, demoTools(logger), camera != nil); err != nil {
			logger.Error("reconnect failed", "error", err)
			cancel()
		}
	}

	if err := controller.Connect(ctx, demoTools(logger), camera != nil); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	logger.Info("session live, speak into the microphone")

	<-ctx.Done()
	logger.Info("shutting down")
	_ = controller.Disconnect()
}

// demoTools returns the tools advertised to the endpoint.
func demoTools(logger *slog.Logger) []session.Tool {
	return []session.Tool{
		{
			Name:        "get_time",
			Description: "Get the current local time",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return time.Now().Format("15:04 on Monday, January 2"), nil
			},
		},
		{
			Name:        "set_reminder",
			Description: "Set a reminder with a message and a delay in minutes",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string"},
					"minutes": map[string]any{"type": "number"},
				},
				"required": []string{"message", "minutes"},
			},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				message, _ := args["message"].(string)
				minutes, ok := args["minutes"].(float64)
				if !ok || minutes <= 0 {
					return "", fmt.Errorf("minutes must be a positive number")
				}
				go func() {
					select {
					case <-time.After(time.Duration(minutes * float64(time.Minute))):
						logger.Info("reminder", "message", message)
					case <-ctx.Done():
					}
				}()
				return fmt.Sprintf("Reminder set for %d minutes from now", int(minutes)), nil
			},
		},
	}
}
