package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// NATS (alerts and state events)
	// Default: nats://localhost:4222
	// Docker: Use nats://nats:4222 if running worker in Docker
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int

	// Alerting via NATS
	AlertsSubject  string
	StateSubject   string
	AlertsCooldown time.Duration // 0 = fire on every crowded tick
	AlertsEnabled  bool          // initial toggle value for new sessions

	// Detector
	DetectorBackend string // simulated | grpc
	DetectorGRPCURL string
	DetectorMethod  string
	DetectorTimeout time.Duration
	DetectorLatency time.Duration
	DetectorWarmup  time.Duration

	DetectorHealthInterval time.Duration

	// Sampling
	PreviewInterval  time.Duration // blank-check + preview cadence
	AnalysisInterval time.Duration // classification cadence
	SettleDelay      time.Duration

	// Media transport
	ConnectTimeout           time.Duration
	MaxConsecutiveReadErrors int
	FallbackProbeInterval    time.Duration
	FallbackProbeTimeout     time.Duration

	// Uploads
	UploadDir          string
	UploadMaxBytes     int64
	UploadSampleFrames int
	UploadRetention    time.Duration

	// Demo cameras
	DemoStreamsFile string

	// Stream Output
	OutputWidth        int
	OutputHeight       int
	PreviewJPEGQuality int

	// Swagger Configuration
	SwaggerHost string
	SwaggerPort int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "crowdwatch-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", true),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 5*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited

		// Alerting
		AlertsSubject:  getEnv("ALERTS_SUBJECT", "crowdwatch.alerts"),
		StateSubject:   getEnv("STATE_SUBJECT", "crowdwatch.state"),
		AlertsCooldown: getEnvDuration("ALERTS_COOLDOWN", 0),
		AlertsEnabled:  getEnvBool("ALERTS_ENABLED", true),

		// Detector
		DetectorBackend: getEnv("DETECTOR_BACKEND", "simulated"),
		DetectorGRPCURL: getEnv("DETECTOR_GRPC_URL", "localhost:50052"),
		DetectorMethod:  getEnv("DETECTOR_GRPC_METHOD", "/crowdwatch.Detector/Detect"),
		DetectorTimeout: getEnvDuration("DETECTOR_TIMEOUT", 5*time.Second),
		DetectorLatency: getEnvDuration("DETECTOR_LATENCY", 300*time.Millisecond),
		DetectorWarmup:  getEnvDuration("DETECTOR_WARMUP", 1500*time.Millisecond),

		DetectorHealthInterval: getEnvDuration("DETECTOR_HEALTH_INTERVAL", 5*time.Second),

		// Sampling
		PreviewInterval:  getEnvDuration("PREVIEW_INTERVAL", 1000*time.Millisecond),
		AnalysisInterval: getEnvDuration("ANALYSIS_INTERVAL", 2000*time.Millisecond),
		SettleDelay:      getEnvDuration("SETTLE_DELAY", 500*time.Millisecond),

		// Media transport
		ConnectTimeout:           getEnvDuration("CONNECT_TIMEOUT", 10*time.Second),
		MaxConsecutiveReadErrors: getEnvInt("MAX_CONSECUTIVE_READ_ERRORS", 10),
		FallbackProbeInterval:    getEnvDuration("FALLBACK_PROBE_INTERVAL", 5*time.Second),
		FallbackProbeTimeout:     getEnvDuration("FALLBACK_PROBE_TIMEOUT", 3*time.Second),

		// Uploads
		UploadDir:          getEnv("UPLOAD_DIR", os.TempDir()),
		UploadMaxBytes:     int64(getEnvInt("UPLOAD_MAX_BYTES", 512*1024*1024)),
		UploadSampleFrames: getEnvInt("UPLOAD_SAMPLE_FRAMES", 5),
		UploadRetention:    getEnvDuration("UPLOAD_RETENTION", time.Hour),

		// Demo cameras
		DemoStreamsFile: getEnv("DEMO_STREAMS_FILE", ""),

		// Stream Output
		OutputWidth:        getEnvInt("OUTPUT_WIDTH", 1280),
		OutputHeight:       getEnvInt("OUTPUT_HEIGHT", 720),
		PreviewJPEGQuality: getEnvInt("PREVIEW_JPEG_QUALITY", 80),

		// Swagger Configuration
		SwaggerHost: getEnv("SWAGGER_HOST", "localhost"),
		SwaggerPort: getEnvInt("SWAGGER_PORT", 8000),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
