package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	AWSRegion       string
	S3Bucket        string
	CollectionID    string
	AttendanceTable string
	RedisAddr       string
	RedisEnabled    bool
	RateLimitPerMin int

	// Liveness session output is written by Rekognition under this prefix,
	// so the reference frame for session X lives at {prefix}{X}/...
	LivenessOutputPrefix string

	LivenessThreshold float32
	MatchThreshold    float32
	ManualThreshold   float32
	MaxSearchFaces    int32
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	return App{
		Env:                  getEnv("APP_ENV", "dev"),
		HTTPPort:             getEnv("HTTP_PORT", "3001"),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		CollectionID:         getEnv("REKOGNITION_COLLECTION", ""),
		AttendanceTable:      getEnv("DYNAMO_TABLE", ""),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisEnabled:         boolEnv("REDIS_ENABLED", false),
		RateLimitPerMin:      intEnv("RATE_LIMIT_PER_MIN", 120),
		LivenessOutputPrefix: getEnv("LIVENESS_OUTPUT_PREFIX", "sessions/"),
		LivenessThreshold:    float32Env("LIVENESS_CONFIDENCE_THRESHOLD", 85),
		MatchThreshold:       float32Env("FACE_MATCH_THRESHOLD", 70),
		ManualThreshold:      float32Env("MANUAL_CHECKIN_THRESHOLD", 90),
		MaxSearchFaces:       int32(intEnv("MAX_SEARCH_FACES", 5)),
	}
}

// Validate reports every required variable that is missing, so operators can
// fix their environment in one pass.
func (a App) Validate() error {
	var missing []string
	if a.AWSRegion == "" {
		missing = append(missing, "AWS_REGION")
	}
	if a.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if a.CollectionID == "" {
		missing = append(missing, "REKOGNITION_COLLECTION")
	}
	if a.AttendanceTable == "" {
		missing = append(missing, "DYNAMO_TABLE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func float32Env(key string, fallback float32) float32 {
	if val := os.Getenv(key); val != "" {
		var parsed float32
		if _, err := fmt.Sscanf(val, "%g", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid number for %s, using fallback %g", key, fallback)
	}
	return fallback
}
