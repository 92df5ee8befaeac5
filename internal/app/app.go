package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/syncroom/internal/controller"
	connInmemory "github.com/sharetube/syncroom/internal/repository/connection/inmemory"
	roomInmemory "github.com/sharetube/syncroom/internal/repository/room/inmemory"
	videodataRedis "github.com/sharetube/syncroom/internal/repository/videodata/redis"
	"github.com/sharetube/syncroom/internal/service"
	"github.com/sharetube/syncroom/pkg/ctxlogger"
	"github.com/sharetube/syncroom/pkg/redisclient"
	"github.com/sharetube/syncroom/pkg/ytvideodata"
)

type AppConfig struct {
	Secret           string        `json:"-"`
	Host             string        `json:"host"`
	Port             int           `json:"port"`
	LogLevel         string        `json:"log_level"`
	LogPath          string        `json:"log_path"`
	MembersLimit     int           `json:"members_limit"`
	QueueLimit       int           `json:"queue_limit"`
	ThrottleInterval time.Duration `json:"throttle_interval"`
	LateJoinDelay    time.Duration `json:"late_join_delay"`
	EmptyRoomTTL     time.Duration `json:"empty_room_ttl"`
	InactiveRoomTTL  time.Duration `json:"inactive_room_ttl"`
	SweepInterval    time.Duration `json:"sweep_interval"`
	RejoinTokenTTL   time.Duration `json:"rejoin_token_ttl"`
	MetadataTimeout  time.Duration `json:"metadata_timeout"`
	MetadataCacheTTL time.Duration `json:"metadata_cache_ttl"`
	// Redis is optional; without RedisHost video metadata is not cached.
	RedisHost     string `json:"redis_host"`
	RedisPort     int    `json:"redis_port"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
}

var logLevelRule = validation.Match(regexp.MustCompile(`(?i)^(debug|info|warn|error)$`))

func (cfg *AppConfig) Validate() error {
	return validation.ValidateStruct(cfg,
		validation.Field(&cfg.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&cfg.LogLevel, validation.Required, logLevelRule),
		validation.Field(&cfg.MembersLimit, validation.Required, validation.Min(1)),
		validation.Field(&cfg.QueueLimit, validation.Required, validation.Min(1)),
		validation.Field(&cfg.ThrottleInterval, validation.Min(time.Duration(0))),
		validation.Field(&cfg.LateJoinDelay, validation.Min(time.Duration(0))),
		validation.Field(&cfg.EmptyRoomTTL, validation.Min(time.Duration(0))),
		validation.Field(&cfg.InactiveRoomTTL, validation.Min(time.Duration(0))),
		validation.Field(&cfg.SweepInterval, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&cfg.RedisHost, is.Host),
		validation.Field(&cfg.RedisPort,
			validation.When(cfg.RedisHost != "", validation.Required, validation.Max(65535)),
		),
	)
}

func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

type App struct {
	handler http.Handler
	service interface{ RunJanitor(context.Context) }
	rc      *redis.Client
}

// New wires repositories, the service and the http handler.
func New(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clk := clock.New()
	serviceConfig := &service.Config{
		MembersLimit:     cfg.MembersLimit,
		QueueLimit:       cfg.QueueLimit,
		Secret:           cfg.Secret,
		ThrottleInterval: cfg.ThrottleInterval,
		LateJoinDelay:    cfg.LateJoinDelay,
		MetadataTimeout:  cfg.MetadataTimeout,
		SweepInterval:    cfg.SweepInterval,
		RejoinTokenTTL:   cfg.RejoinTokenTTL,
		Clock:            clk,
		VideoData: ytvideodata.NewClient(&ytvideodata.Config{
			Timeout: cfg.MetadataTimeout,
		}),
	}

	a := &App{}
	if cfg.RedisHost != "" {
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		a.rc = rc
		serviceConfig.VideoDataRepo = videodataRedis.NewRepo(rc, cfg.MetadataCacheTTL)
	} else {
		logger.InfoContext(ctx, "redis host not set, video metadata cache disabled")
	}

	roomRepo := roomInmemory.NewRepo(clk, &roomInmemory.Config{
		EmptyTTL:      cfg.EmptyRoomTTL,
		InactivityTTL: cfg.InactiveRoomTTL,
	})
	connectionRepo := connInmemory.NewRepo()
	svc := service.New(roomRepo, connectionRepo, serviceConfig)

	a.service = svc
	a.handler = controller.NewController(svc, &controller.Config{Logger: logger}).GetMux()

	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// RunJanitor expires inactive rooms until ctx is done.
func (a *App) RunJanitor(ctx context.Context) {
	a.service.RunJanitor(ctx)
}

func (a *App) Close() error {
	if a.rc != nil {
		return a.rc.Close()
	}

	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	var logOutput io.Writer = os.Stdout
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOutput = io.MultiWriter(os.Stdout, f)
	}

	logger, err := NewLogger(logOutput, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// graceful shutdown
	serverCtx, serverStopCtx := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer serverStopCtx()

	go a.RunJanitor(serverCtx)

	shutdownErr := make(chan error, 1)
	go func() {
		<-serverCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(serverCtx), 30*time.Second)
		defer cancel()

		logger.InfoContext(shutdownCtx, "shutting down server")
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
