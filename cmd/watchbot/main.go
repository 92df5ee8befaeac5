package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sharetube/syncroom/internal/app"
	"github.com/sharetube/syncroom/pkg/syncclient"
	"github.com/sharetube/syncroom/pkg/syncclient/simplayer"
)

var rootCmd = &cobra.Command{
	Use:   "watchbot",
	Short: "Headless room member that keeps a simulated player in sync",
	RunE:  run,
}

func init() {
	fs := rootCmd.PersistentFlags()
	fs.String("url", "ws://localhost:8080/api/v1/ws", "Websocket endpoint")
	fs.String("room", "", "Room to join, a new room is created when empty")
	fs.String("name", "watchbot", "Display name")
	fs.String("password", "", "Room password")
	fs.String("video", "", "Video id or url loaded after creating a room")
	fs.Duration("duration", 3*time.Minute, "Length of every simulated video")
	fs.Bool("ready", true, "Mark the bot ready after every loaded video")
	fs.String("log-level", "INFO", "Logging level")

	_ = viper.BindPFlags(fs)
	viper.SetEnvPrefix("WATCHBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func run(cmd *cobra.Command, _ []string) error {
	logger, err := app.NewLogger(os.Stdout, viper.GetString("log-level"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	player := simplayer.New(nil, viper.GetDuration("duration"))

	var session *syncclient.Session
	autoReady := viper.GetBool("ready")
	session, err = syncclient.Dial(ctx, player, &syncclient.SessionConfig{
		URL:       viper.GetString("url"),
		Name:      viper.GetString("name"),
		Password:  viper.GetString("password"),
		Logger:    logger,
		Reconnect: true,
		OnMessage: func(msg syncclient.Message) {
			logger.Debug("server message", "type", msg.Type, "payload", string(msg.Payload))

			switch msg.Type {
			case syncclient.TypeRoomCreated:
				logger.Info("room created", "room_id", session.RoomId())
				if video := viper.GetString("video"); video != "" {
					if err := session.LoadVideo(video); err != nil {
						logger.Warn("failed to load video", "error", err)
					}
				}
			case syncclient.TypeRoomJoined:
				logger.Info("room joined", "room_id", session.RoomId(), "is_host", session.IsHost())
			case syncclient.TypeVideoLoaded:
				if autoReady {
					if err := session.SetReady(true); err != nil {
						logger.Warn("failed to set ready", "error", err)
					}
				}
			case syncclient.TypeRoomClosed:
				logger.Info("room closed")
				stop()
			}
		},
		OnError: func(p syncclient.ErrorPayload) {
			logger.Error("server rejected request", "code", p.Code, "message", p.Message)
			if p.Code == syncclient.CodeRoomNotFound {
				stop()
			}
		},
	})
	if err != nil {
		return err
	}
	defer session.Close()
	player.SetListener(session.Agent().OnStateChange)

	if room := viper.GetString("room"); room != "" {
		err = session.JoinRoom(room)
	} else {
		err = session.CreateRoom()
	}
	if err != nil {
		return fmt.Errorf("failed to enter room: %w", err)
	}

	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("watchbot stopped")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
