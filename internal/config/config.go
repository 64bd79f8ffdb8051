package config

import "time"

type Config struct {
	Service   *ServiceConfig
	Redis     *RedisConfig
	Postgres  *PostgresConfig
	Presence  *PresenceConfig
	Queue     *QueueConfig
	Drafts    *DraftConfig
	WebSocket *WebSocketConfig
	Auth      *AuthConfig
	Logger    *LoggerConfig
	Tracer    *TracerConfig
	Shutdown  *ShutdownConfig
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	AutoMigrate     bool
}

type PresenceConfig struct {
	// ConnectionTTL bounds how long a connection marker survives without a touch.
	ConnectionTTL time.Duration
	SweepInterval time.Duration
}

type QueueConfig struct {
	DefaultTTL time.Duration
}

type DraftConfig struct {
	TTL time.Duration
}

type WebSocketConfig struct {
	ReadLimit    int64
	WriteTimeout time.Duration
	// PongWait is the read deadline extended by every pong; pings go out at 9/10 of it.
	PongWait     time.Duration
	SendBuffer   int
	CheckOrigin  bool
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Enabled bool
	Address string
}

type ShutdownConfig struct {
	Timeout time.Duration
}
