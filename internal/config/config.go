package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	speechmodel "github.com/zhouzirui/debate-arena/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Speech   SpeechConfig
	Realtime RealtimeConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Speech: speech, Realtime: realtime, Log: logCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	shutdown, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return ServerConfig{Addr: port, ShutdownTimeout: shutdown}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, ShutdownTimeout: shutdown}, nil
}

// SpeechConfig 描述语音转写上游相关配置
type SpeechConfig struct {
	speechmodel.SpeechConfig
	Enabled bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	dialTimeout, err := parseDurationEnv("SPEECH_DIAL_TIMEOUT", 10*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	writeTimeout, err := parseDurationEnv("SPEECH_WRITE_TIMEOUT", 5*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	// 30 秒 16kHz 单声道 PCM16
	bufferLimit := 960000
	if override, err := parseOptionalIntEnv("SPEECH_BUFFER_LIMIT"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return SpeechConfig{}, fmt.Errorf("invalid SPEECH_BUFFER_LIMIT value %d: must not be negative", *override)
		}
		bufferLimit = *override
	}

	upstream := getEnvOrDefault("SPEECH_UPSTREAM_URL", "ws://localhost:8000")
	enabled, err := parseBoolEnv("SPEECH_ENABLED", true)
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{
		SpeechConfig: speechmodel.SpeechConfig{
			UpstreamURL:    upstream,
			TranscriptPath: getEnvOrDefault("SPEECH_TRANSCRIPT_PATH", "/ws/transcript"),
			DebatePath:     getEnvOrDefault("SPEECH_DEBATE_PATH", "/ws/debate"),
			APIKey:         strings.TrimSpace(os.Getenv("SPEECH_API_KEY")),
			DialTimeout:    dialTimeout,
			WriteTimeout:   writeTimeout,
			BufferLimit:    bufferLimit,
		},
		Enabled: enabled,
	}, nil
}

// RealtimeConfig 描述客户端 WebSocket 连接配置
type RealtimeConfig struct {
	SendBuffer        int
	ReadLimit         int64
	PingPeriod        time.Duration
	PongWait          time.Duration
	EventRateLimit    int
	EventRateInterval time.Duration
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	cfg := RealtimeConfig{
		SendBuffer:     64,
		ReadLimit:      1 << 20,
		EventRateLimit: 50,
	}

	if v, err := parseOptionalIntEnv("WS_SEND_BUFFER"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		if *v < 1 {
			return RealtimeConfig{}, fmt.Errorf("invalid WS_SEND_BUFFER value %d: must be positive", *v)
		}
		cfg.SendBuffer = *v
	}

	if v, err := parseOptionalIntEnv("WS_READ_LIMIT"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		cfg.ReadLimit = int64(*v)
	}

	if v, err := parseOptionalIntEnv("EVENT_RATE_LIMIT"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		cfg.EventRateLimit = *v
	}

	var err error
	if cfg.PingPeriod, err = parseDurationEnv("WS_PING_PERIOD", 54*time.Second); err != nil {
		return RealtimeConfig{}, err
	}
	if cfg.PongWait, err = parseDurationEnv("WS_PONG_WAIT", 60*time.Second); err != nil {
		return RealtimeConfig{}, err
	}
	if cfg.EventRateInterval, err = parseDurationEnv("EVENT_RATE_INTERVAL", time.Second); err != nil {
		return RealtimeConfig{}, err
	}
	if cfg.PingPeriod >= cfg.PongWait {
		return RealtimeConfig{}, fmt.Errorf("WS_PING_PERIOD (%s) must be shorter than WS_PONG_WAIT (%s)", cfg.PingPeriod, cfg.PongWait)
	}

	return cfg, nil
}

// LogConfig 描述日志输出配置
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value: %q", level)
	}

	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console"))
	if format != "console" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value: %q", format)
	}

	return LogConfig{Level: level, Format: format}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 支持 "1500ms" 这类写法，纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return d, nil
}
