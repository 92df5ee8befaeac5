package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/syncroom/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:  "SYNCROOM_SECRET",
		flagKey: "secret",
		usage:   "Secret used to sign rejoin tokens",
	}
	host = configVar[string]{
		envKey:       "SYNCROOM_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	port = configVar[int]{
		envKey:       "SYNCROOM_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Server port",
	}
	logLevel = configVar[string]{
		envKey:       "SYNCROOM_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	logPath = configVar[string]{
		envKey:  "SYNCROOM_LOG_PATH",
		flagKey: "log-path",
		usage:   "Log file path, logs go to stdout only when empty",
	}
	membersLimit = configVar[int]{
		envKey:       "SYNCROOM_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 9,
		usage:        "Maximum number of members in a room",
	}
	queueLimit = configVar[int]{
		envKey:       "SYNCROOM_QUEUE_LIMIT",
		flagKey:      "queue-limit",
		defaultValue: 25,
		usage:        "Maximum number of videos in a room queue",
	}
	throttleInterval = configVar[time.Duration]{
		envKey:       "SYNCROOM_THROTTLE_INTERVAL",
		flagKey:      "throttle-interval",
		defaultValue: 500 * time.Millisecond,
		usage:        "Minimum interval between accepted playback events per room",
	}
	lateJoinDelay = configVar[time.Duration]{
		envKey:       "SYNCROOM_LATE_JOIN_DELAY",
		flagKey:      "late-join-delay",
		defaultValue: time.Second,
		usage:        "Delay before a late joiner receives a video sync",
	}
	emptyRoomTTL = configVar[time.Duration]{
		envKey:       "SYNCROOM_EMPTY_ROOM_TTL",
		flagKey:      "empty-room-ttl",
		defaultValue: 2 * time.Minute,
		usage:        "How long an empty room is kept",
	}
	inactiveRoomTTL = configVar[time.Duration]{
		envKey:       "SYNCROOM_INACTIVE_ROOM_TTL",
		flagKey:      "inactive-room-ttl",
		defaultValue: 2 * time.Hour,
		usage:        "How long a room is kept without activity",
	}
	sweepInterval = configVar[time.Duration]{
		envKey:       "SYNCROOM_SWEEP_INTERVAL",
		flagKey:      "sweep-interval",
		defaultValue: time.Minute,
		usage:        "Interval between inactive room sweeps",
	}
	rejoinTokenTTL = configVar[time.Duration]{
		envKey:       "SYNCROOM_REJOIN_TOKEN_TTL",
		flagKey:      "rejoin-token-ttl",
		defaultValue: 24 * time.Hour,
		usage:        "Lifetime of rejoin tokens",
	}
	metadataTimeout = configVar[time.Duration]{
		envKey:       "SYNCROOM_METADATA_TIMEOUT",
		flagKey:      "metadata-timeout",
		defaultValue: 3 * time.Second,
		usage:        "Timeout for video metadata lookups",
	}
	metadataCacheTTL = configVar[time.Duration]{
		envKey:       "SYNCROOM_METADATA_CACHE_TTL",
		flagKey:      "metadata-cache-ttl",
		defaultValue: 24 * time.Hour,
		usage:        "Lifetime of cached video metadata",
	}
	redisHost = configVar[string]{
		envKey:  "REDIS_HOST",
		flagKey: "redis-host",
		usage:   "Redis host, metadata cache is disabled when empty",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisPassword = configVar[string]{
		envKey:  "REDIS_PASSWORD",
		flagKey: "redis-password",
		usage:   "Redis password",
	}
	redisDB = configVar[int]{
		envKey:  "REDIS_DB",
		flagKey: "redis-db",
		usage:   "Redis database",
	}
)

func bindString(fs *pflag.FlagSet, v configVar[string]) {
	fs.String(v.flagKey, v.defaultValue, v.usage)
	bind(fs, v.flagKey, v.envKey, v.defaultValue)
}

func bindInt(fs *pflag.FlagSet, v configVar[int]) {
	fs.Int(v.flagKey, v.defaultValue, v.usage)
	bind(fs, v.flagKey, v.envKey, v.defaultValue)
}

func bindDuration(fs *pflag.FlagSet, v configVar[time.Duration]) {
	fs.Duration(v.flagKey, v.defaultValue, v.usage)
	bind(fs, v.flagKey, v.envKey, v.defaultValue)
}

func bind(fs *pflag.FlagSet, flagKey, envKey string, defaultValue any) {
	_ = viper.BindPFlag(flagKey, fs.Lookup(flagKey))
	_ = viper.BindEnv(flagKey, envKey)
	viper.SetDefault(flagKey, defaultValue)
}

var rootCmd = &cobra.Command{
	Use:   "syncroom",
	Short: "Room based synchronized video playback server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadAppConfig()

		jsonConfig, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Printf("starting app with config: %s\n", jsonConfig)

		return app.Run(cmd.Context(), cfg)
	},
}

func init() {
	fs := rootCmd.PersistentFlags()

	bindString(fs, secret)
	bindString(fs, host)
	bindInt(fs, port)
	bindString(fs, logLevel)
	bindString(fs, logPath)
	bindInt(fs, membersLimit)
	bindInt(fs, queueLimit)
	bindDuration(fs, throttleInterval)
	bindDuration(fs, lateJoinDelay)
	bindDuration(fs, emptyRoomTTL)
	bindDuration(fs, inactiveRoomTTL)
	bindDuration(fs, sweepInterval)
	bindDuration(fs, rejoinTokenTTL)
	bindDuration(fs, metadataTimeout)
	bindDuration(fs, metadataCacheTTL)
	bindString(fs, redisHost)
	bindInt(fs, redisPort)
	bindString(fs, redisPassword)
	bindInt(fs, redisDB)
}

func loadAppConfig() *app.AppConfig {
	return &app.AppConfig{
		Secret:           viper.GetString(secret.flagKey),
		Host:             viper.GetString(host.flagKey),
		Port:             viper.GetInt(port.flagKey),
		LogLevel:         viper.GetString(logLevel.flagKey),
		LogPath:          viper.GetString(logPath.flagKey),
		MembersLimit:     viper.GetInt(membersLimit.flagKey),
		QueueLimit:       viper.GetInt(queueLimit.flagKey),
		ThrottleInterval: viper.GetDuration(throttleInterval.flagKey),
		LateJoinDelay:    viper.GetDuration(lateJoinDelay.flagKey),
		EmptyRoomTTL:     viper.GetDuration(emptyRoomTTL.flagKey),
		InactiveRoomTTL:  viper.GetDuration(inactiveRoomTTL.flagKey),
		SweepInterval:    viper.GetDuration(sweepInterval.flagKey),
		RejoinTokenTTL:   viper.GetDuration(rejoinTokenTTL.flagKey),
		MetadataTimeout:  viper.GetDuration(metadataTimeout.flagKey),
		MetadataCacheTTL: viper.GetDuration(metadataCacheTTL.flagKey),
		RedisHost:        viper.GetString(redisHost.flagKey),
		RedisPort:        viper.GetInt(redisPort.flagKey),
		RedisPassword:    viper.GetString(redisPassword.flagKey),
		RedisDB:          viper.GetInt(redisDB.flagKey),
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
