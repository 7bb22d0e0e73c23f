package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the workbench service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	ClassroomBaseURL  string
	ClassroomTimeout  time.Duration
	DefaultLanguage   string
	SolutionFileName  string
	SaveFeedbackDelay time.Duration
	RedisURL          string
	SessionKey        string
	NATSURL           string
	NATSSubject       string
	AllowOrigins      string
	AccessLog         bool
	EvaluationLimit   int
	EvaluationWindow  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA_WORKBENCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Workbench")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8090")
	v.SetDefault("classroom.timeout", "30s")
	v.SetDefault("classroom.language", "cpp")
	v.SetDefault("solution.file_name", "main.cpp")
	v.SetDefault("save.feedback_delay", "2s")
	v.SetDefault("session.key", "gema:workbench:session")
	v.SetDefault("nats.subject", "gema.workbench.events")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("http.access_log", false)
	v.SetDefault("evaluation.rate_limit", 6)
	v.SetDefault("evaluation.rate_window", "1m")

	timeout, err := parseDuration(v.GetString("classroom.timeout"), 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid classroom timeout: %w", err)
	}

	feedbackDelay, err := parseDuration(v.GetString("save.feedback_delay"), 2*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid save feedback delay: %w", err)
	}

	evaluationWindow, err := parseDuration(v.GetString("evaluation.rate_window"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid evaluation rate window: %w", err)
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		ClassroomBaseURL:  strings.TrimRight(strings.TrimSpace(v.GetString("classroom.base_url")), "/"),
		ClassroomTimeout:  timeout,
		DefaultLanguage:   strings.ToLower(strings.TrimSpace(v.GetString("classroom.language"))),
		SolutionFileName:  strings.TrimSpace(v.GetString("solution.file_name")),
		SaveFeedbackDelay: feedbackDelay,
		RedisURL:          v.GetString("redis.url"),
		SessionKey:        v.GetString("session.key"),
		NATSURL:           v.GetString("nats.url"),
		NATSSubject:       v.GetString("nats.subject"),
		AllowOrigins:      v.GetString("cors.allow_origins"),
		AccessLog:         v.GetBool("http.access_log"),
		EvaluationLimit:   v.GetInt("evaluation.rate_limit"),
		EvaluationWindow:  evaluationWindow,
	}

	if cfg.ClassroomBaseURL == "" {
		return Config{}, fmt.Errorf("classroom base url must be provided")
	}

	if cfg.SolutionFileName == "" {
		return Config{}, fmt.Errorf("solution file name must not be empty")
	}

	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}
