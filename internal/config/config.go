package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	Protocol    ProtocolConfig    `mapstructure:"protocol"`
	Presence    PresenceConfig    `mapstructure:"presence"`
	Poker       PokerConfig       `mapstructure:"poker"`
	Sweep       SweepConfig       `mapstructure:"sweep"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Events      EventsConfig      `mapstructure:"events"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMb"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress"`
}

type ProtocolConfig struct {
	SupportedVersions []string      `mapstructure:"supportedVersions"`
	HeartbeatMs       int           `mapstructure:"heartbeatMs"`
	MaxFrameBytes     int64         `mapstructure:"maxFrameBytes"`
	MaxViolations     int           `mapstructure:"maxViolations"`
	WriteWait         time.Duration `mapstructure:"writeWait"`
	SendBuffer        int           `mapstructure:"sendBuffer"`
}

type PresenceConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type PokerConfig struct {
	TurnTimeout  time.Duration `mapstructure:"turnTimeout"`
	HeartbeatTTL time.Duration `mapstructure:"heartbeatTTL"`
	BotDelay     time.Duration `mapstructure:"botDelay"`
	DefaultBuyIn int64         `mapstructure:"defaultBuyIn"`
	MinPlayers   int           `mapstructure:"minPlayers"`
	MaxPlayers   int           `mapstructure:"maxPlayers"`
}

type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type IdempotencyConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type LedgerConfig struct {
	StartingBalance int64 `mapstructure:"startingBalance"`
}

type EventsConfig struct {
	Driver  string   `mapstructure:"driver"` // noop, kafka, redis
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Stream  string   `mapstructure:"stream"`
	MaxLen  int64    `mapstructure:"maxLen"`
}

type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	ServiceName string        `mapstructure:"serviceName"`
	Interval    time.Duration `mapstructure:"interval"`
}

// HeartbeatInterval is the client heartbeat period advertised in helloAck.
func (p ProtocolConfig) HeartbeatInterval() time.Duration {
	return time.Duration(p.HeartbeatMs) * time.Millisecond
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("jwt.expire", 72)
	v.SetDefault("jwt.issuer", "poker-service")
	v.SetDefault("log.maxSizeMb", 100)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAgeDays", 14)

	v.SetDefault("protocol.supportedVersions", []string{"1.0"})
	v.SetDefault("protocol.heartbeatMs", 25000)
	v.SetDefault("protocol.maxFrameBytes", 32*1024)
	v.SetDefault("protocol.maxViolations", 3)
	v.SetDefault("protocol.writeWait", 5*time.Second)
	v.SetDefault("protocol.sendBuffer", 32)

	v.SetDefault("presence.ttl", 30*time.Second)

	v.SetDefault("poker.turnTimeout", 30*time.Second)
	v.SetDefault("poker.heartbeatTTL", 60*time.Second)
	v.SetDefault("poker.botDelay", 800*time.Millisecond)
	v.SetDefault("poker.defaultBuyIn", 1000)
	v.SetDefault("poker.minPlayers", 2)
	v.SetDefault("poker.maxPlayers", 9)

	v.SetDefault("sweep.interval", 5*time.Second)

	v.SetDefault("idempotency.size", 10000)
	v.SetDefault("idempotency.ttl", 10*time.Minute)

	v.SetDefault("ledger.startingBalance", 10000)

	v.SetDefault("events.driver", "noop")
	v.SetDefault("events.topic", "poker.table-events")
	v.SetDefault("events.stream", "poker:table-events")
	v.SetDefault("events.maxLen", 100000)

	v.SetDefault("telemetry.serviceName", "poker-service")
	v.SetDefault("telemetry.interval", 30*time.Second)
}

// Default returns a config populated only from defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode defaults, %v", err)
	}
	return &cfg
}

func LoadConfig(path string) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("POKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}
