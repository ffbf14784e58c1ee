package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port       string        `mapstructure:"port"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	Pprof      bool          `mapstructure:"pprof"`

	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Realtime   Realtime       `mapstructure:"realtime"`
	Journal    Journal        `mapstructure:"journal"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
}

// RedisConfig definition redis setting
// Addr empty means sentinel mode (REDIS_SENTINEL*_IP / _PORT from .env).
type RedisConfig struct {
	RedisDB int    `mapstructure:"redis_db"`
	Addr    string `mapstructure:"addr"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// Realtime websocket fan-out tuning
type Realtime struct {
	TypingTTL           time.Duration `mapstructure:"typing_ttl"`
	TypingSweepInterval time.Duration `mapstructure:"typing_sweep_interval"`
	PingInterval        time.Duration `mapstructure:"ping_interval"`
	PongWait            time.Duration `mapstructure:"pong_wait"`
	WriteWait           time.Duration `mapstructure:"write_wait"`
	SendBuffer          int           `mapstructure:"send_buffer"`
	EventsPerSecond     float64       `mapstructure:"events_per_second"`
	EventBurst          int           `mapstructure:"event_burst"`
	PresenceTTL         time.Duration `mapstructure:"presence_ttl"`
	MaxFrameBytes       int64         `mapstructure:"max_frame_bytes"`
}

// Defaults fill zero values
func (r Realtime) Defaults() Realtime {
	if r.TypingTTL <= 0 {
		r.TypingTTL = 5 * time.Second
	}
	if r.TypingSweepInterval <= 0 {
		r.TypingSweepInterval = time.Second
	}
	if r.PingInterval <= 0 {
		r.PingInterval = 30 * time.Second
	}
	if r.PongWait <= r.PingInterval {
		r.PongWait = r.PingInterval * 2
	}
	if r.WriteWait <= 0 {
		r.WriteWait = 10 * time.Second
	}
	if r.SendBuffer <= 0 {
		r.SendBuffer = 256
	}
	if r.EventsPerSecond <= 0 {
		r.EventsPerSecond = 20
	}
	if r.EventBurst <= 0 {
		r.EventBurst = 40
	}
	if r.PresenceTTL <= 0 {
		r.PresenceTTL = 24 * time.Hour
	}
	if r.MaxFrameBytes <= 0 {
		r.MaxFrameBytes = 64 * 1024
	}
	return r
}

// JournalDriver event journal sink
type JournalDriver string

const (
	// JournalNone journal disabled
	JournalNone JournalDriver = "none"
	// JournalKafka kafka topic
	JournalKafka JournalDriver = "kafka"
	// JournalRabbitMQ rabbitmq exchange
	JournalRabbitMQ JournalDriver = "rabbitmq"
	// JournalRedis redis pub/sub channel
	JournalRedis JournalDriver = "redis"
)

// Journal downstream event journal setting
type Journal struct {
	Driver        JournalDriver `mapstructure:"driver"`
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	URL           string        `mapstructure:"url"`
	Exchange      string        `mapstructure:"exchange"`
	Channel       string        `mapstructure:"channel"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// MinIOConfig attachment storage setting
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignTTL    time.Duration `mapstructure:"presign_ttl"`
	MaxFileBytes  int64         `mapstructure:"max_file_bytes"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}
