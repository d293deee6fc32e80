package settings

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var Settings *AppSettings

func NewSettings() *AppSettings {
	settings := AppSettings{
		Port:               getEnvOrDefault("MULTICI_PORT", ":8080"),
		SQLiteDatabase:     getEnvOrDefault("MULTICI_DB_PATH", "file:.///db.sqlite"),
		MaxConcurrentRuns:  getEnvInt64OrDefault("MULTICI_MAX_CONCURRENT_RUNS", 2),
		MaxRunsPerRepo:     getEnvInt64OrDefault("MULTICI_MAX_RUNS_PER_REPOSITORY", 1),
		MaxQueuedRuns:      getEnvInt64OrDefault("MULTICI_MAX_QUEUED_RUNS", 64),
		MaxRunOutputBytes:  getEnvInt64OrDefault("MULTICI_MAX_RUN_OUTPUT_BYTES", 64*1024),
		ShutdownTimeout:    getEnvDurationSecondsOrDefault("MULTICI_SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
		DefaultStepTimeout: getEnvDurationSecondsOrDefault("MULTICI_DEFAULT_STEP_TIMEOUT_SECONDS", 10*time.Minute),
		PollInterval:       getEnvDurationSecondsOrDefault("MULTICI_POLL_INTERVAL_SECONDS", 30*time.Second),
		WatchWorkingCopies: getEnvOrDefault("MULTICI_WATCH_WORKING_COPIES", "false") == "true",
	}
	if !strings.HasPrefix(settings.Port, ":") {
		settings.Port = ":" + settings.Port
	}
	return &settings
}

func getEnvOrDefault(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Fatalf("invalid value for %s: %s", key, value)
	}
	return n
}

func getEnvDurationSecondsOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Fatalf("invalid value for %s: %s", key, value)
	}
	return time.Duration(n) * time.Second
}

type AppSettings struct {
	SQLiteDatabase     string
	Port               string
	MaxConcurrentRuns  int64
	MaxRunsPerRepo     int64
	MaxQueuedRuns      int64
	MaxRunOutputBytes  int64
	ShutdownTimeout    time.Duration
	DefaultStepTimeout time.Duration
	PollInterval       time.Duration
	WatchWorkingCopies bool
}

func (as *AppSettings) SQLiteDbString(readonly bool) string {
	params := make(url.Values)
	params.Add("_journal_mode", "WAL")
	params.Add("_busy_timeout", "5000")
	params.Add("_synchronous", "NORMAL")
	params.Add("_cache_size", "-20000")
	params.Add("_foreign_keys", "ON")
	if readonly {
		params.Add("mode", "ro")
	} else {
		params.Add("_txlock", "IMMEDIATE")
		params.Add("mode", "rwc")
	}

	return as.SQLiteDatabase + "?" + params.Encode()
}

func ReadDotenv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Fatal("err reading dotenv: ", err)
	}
}
