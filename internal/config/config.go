package config

import "time"

// AgentConfig is the root configuration for a sync agent instance.
type AgentConfig struct {
	Identity   IdentityConfig   `yaml:"identity"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Connection ConnectionConfig `yaml:"connection"`
	Storage    StorageConfig    `yaml:"storage"`
	Probe      ProbeConfig      `yaml:"probe"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// IdentityConfig names the dashboard session this agent serves.
type IdentityConfig struct {
	Role string `yaml:"role"` // e.g. "supervisor"
	ID   string `yaml:"id"`
}

// ServerConfig holds backend endpoints.
type ServerConfig struct {
	RestURL string `yaml:"rest_url"`
	WSURL   string `yaml:"ws_url"`
}

// AuthConfig holds the bearer credential. Use ${VAR} expansion to keep
// tokens out of config files.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// ConnectionConfig holds transport and state machine settings.
type ConnectionConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// StorageConfig selects the offline queue backend.
type StorageConfig struct {
	Backend  string   `yaml:"backend"` // "file", "postgres", or "memory"
	Dir      string   `yaml:"dir"`     // file backend
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ProbeConfig holds connectivity probe settings.
type ProbeConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig holds the agent's HTTP surface settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
