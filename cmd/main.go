package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"beacon-pilot/config"
	httpapi "beacon-pilot/internal/api/http"
	"beacon-pilot/internal/api/telegram"
	app "beacon-pilot/internal/application"
	"beacon-pilot/internal/container"
	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
	"beacon-pilot/internal/infrastructure/flightlink"
	"beacon-pilot/internal/infrastructure/metrics"
	"beacon-pilot/internal/infrastructure/publisher"
	"beacon-pilot/internal/infrastructure/storage"
	"beacon-pilot/internal/infrastructure/vision"
)

var (
	flagSource  vision.SourceOptions
	flagConnect string
	flagBaud    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "beacon-pilot",
		Short: "Beacon Pilot - keeps a drone centred over a visual landing beacon",
		Long: `Beacon Pilot finds a triangle-in-frame beacon in camera frames,
tracks its offset from the frame centre and steers the vehicle over it.

Without --connect (or FLIGHT_CONNECT) only detection runs.
Use sim://bench for a dry run against the built-in vehicle simulator.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&flagSource.Image, "image", "", "Analyse a still image")
	rootCmd.Flags().StringVar(&flagSource.Video, "video", "", "Analyse a video file")
	rootCmd.Flags().IntVar(&flagSource.Camera, "camera", 0, "Camera device index")
	rootCmd.Flags().BoolVar(&flagSource.Loop, "loop", false, "Repeat the still image until interrupted")
	rootCmd.Flags().StringVar(&flagConnect, "connect", "", "Vehicle endpoint, overrides FLIGHT_CONNECT")
	rootCmd.Flags().IntVar(&flagBaud, "baud", 0, "Serial baud rate, overrides FLIGHT_BAUD")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagConnect != "" {
		cfg.Link.Endpoint = flagConnect
	}
	if flagBaud > 0 {
		cfg.Link.Baud = flagBaud
	}
	if err := setupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := vision.Open(flagSource)
	if err != nil {
		return fmt.Errorf("open frame source %s: %w", flagSource.Name(), err)
	}

	deps := container.Deps{
		Preprocessor: vision.NewPreprocessor(cfg.Detector),
		Extractor:    vision.NewContourExtractor(cfg.Detector),
		Operators:    storage.NewMemoryOperatorRepository(),
		Dialer:       flightlink.NewDialer(),
		Metrics:      metrics.NewRecorder(),
	}

	if cfg.Redis.Addr != "" {
		rdb, err := publisher.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logrus.WithError(err).Warn("detection publishing disabled")
		} else {
			defer rdb.Close()
			deps.Publisher = publisher.NewRedisPublisher(rdb, cfg.Redis.Channel)
		}
	}

	if cfg.DBPath != "" {
		db, err := storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			logrus.WithError(err).Warn("session log disabled")
		} else {
			sessions := storage.NewSessionGorm(db)
			defer sessions.Close()
			deps.Recorder = sessions
		}
	}

	c := container.New(cfg, deps)

	var surfaces []surface
	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(c.Mission))
		surfaces = append(surfaces, surface{name: "http", run: srv.Run})
	}
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, c.OperatorService, c.Mission, inspector(c))
		if err != nil {
			logrus.WithError(err).Warn("telegram bot disabled")
		} else {
			surfaces = append(surfaces, surface{name: "telegram", run: bot.Run, onPhase: bot.NotifyPhase})
		}
	}

	return serve(ctx, c, source, flagSource.Name(), surfaces)
}

// surface — операторский интерфейс, живущий столько же, сколько миссия.
type surface struct {
	name    string
	run     func(ctx context.Context) error
	onPhase app.PhaseObserver
}

// serve подписывает интерфейсы на фазы до старта миссии и держит их,
// пока миссия не завершится.
func serve(ctx context.Context, c *container.Container, source port.FrameSource, sourceName string, surfaces []surface) error {
	for _, s := range surfaces {
		if s.onPhase != nil {
			c.Controller.OnPhase(s.onPhase)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Конец миссии останавливает и операторские интерфейсы.
		defer cancel()
		return c.Mission.Run(gctx, source, sourceName)
	})
	for _, s := range surfaces {
		s := s
		g.Go(func() error {
			if err := s.run(gctx); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// inspector проверяет фото оператора тем же конвейером, что и поток кадров.
func inspector(c *container.Container) telegram.PhotoInspector {
	return func(data []byte) (entity.DetectionResult, error) {
		frame, err := vision.DecodeFrame(data)
		if err != nil {
			return entity.DetectionResult{}, err
		}
		defer frame.Close()
		return c.DetectionService.Inspect(frame)
	}
}

func setupLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logrus.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.New("LOG_FORMAT must be text or json")
	}
	return nil
}
