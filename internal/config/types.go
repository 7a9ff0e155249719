package config

import (
	"fmt"
	"time"
)

type Config struct {
	Environment string          `json:"environment"`
	Server      ServerConfig    `json:"server"`
	Upload      UploadConfig    `json:"upload"`
	Database    Database        `json:"database"`
	Redis       RedisConfig     `json:"redis"`
	Queue       QueueConfig     `json:"transcode_queue"`
	Debounce    DebounceConfig  `json:"debounce"`
	Media       MediaConfig     `json:"media"`
	Mirror      MirrorConfig    `json:"mirror"`
	Thumbnails  ThumbnailConfig `json:"thumbnails"`
	Sentry      SentryConfig    `json:"sentry"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
}

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

// QueueConfig drives both the producer side (stream, max_len) and the worker
// process (group, consumer, workers, block_timeout, burst).
type QueueConfig struct {
	Stream       string        `json:"stream"`        // redis stream name
	Group        string        `json:"group"`         // consumer group name
	Consumer     string        `json:"consumer"`      // consumer name within the group
	Workers      int           `json:"workers"`       // number of concurrent goroutines
	MaxLen       int64         `json:"max_len"`       // stream max length before trim
	BlockTimeout time.Duration `json:"block_timeout"` // XREADGROUP block timeout
	Burst        bool          `json:"burst"`         // drain the backlog once, then exit
}

type DebounceConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
}

// TTL returns the scheduling debounce window, defaulting to 10 seconds.
func (d DebounceConfig) TTL() time.Duration {
	if d.TTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.TTLSeconds) * time.Second
}

type MediaConfig struct {
	Root string `json:"root"`
}

type MirrorConfig struct {
	Enabled     bool   `json:"enabled"`
	AccountID   string `json:"account_id"`
	BucketName  string `json:"bucket_name"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
}

type ThumbnailConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}

// IsProduction gates non-production diagnostics such as the queue debug
// endpoint.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}
