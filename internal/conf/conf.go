package conf

import "time"

// Bootstrap is the top-level configuration scanned from the config file.
type Bootstrap struct {
	Server *Server `json:"server"`
	Data   *Data   `json:"data"`
	Game   *Game   `json:"game"`
}

// Server holds transport configuration.
type Server struct {
	Http *HTTP `json:"http"`
}

// HTTP server options. Timeout is a Go duration string ("1s", "500ms").
type HTTP struct {
	Network string `json:"network"`
	Addr    string `json:"addr"`
	Timeout string `json:"timeout"`
}

// Data holds storage and messaging configuration. Empty sections fall
// back to in-process implementations (memory store, nop publisher).
type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
	Rabbitmq *Rabbitmq `json:"rabbitmq"`
}

type Database struct {
	Driver string `json:"driver"`
	Source string `json:"source"`
}

type Redis struct {
	Addr     string `json:"addr"`
	SceneTTL string `json:"scene_ttl"`
}

type Rabbitmq struct {
	Host       string `json:"host"`
	Port       string `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Vhost      string `json:"vhost"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// Game holds engine configuration.
type Game struct {
	// ConfigPath points to a game config JSON overriding the built-in one.
	ConfigPath string `json:"config_path"`
	// RgsLatency simulates server round-trip time ("0" for inline results).
	RgsLatency string `json:"rgs_latency"`
	// DefaultBalance is the demo-wallet starting balance for new players.
	DefaultBalance string `json:"default_balance"`
}

// Duration parses a duration string, returning def on empty or bad input.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
