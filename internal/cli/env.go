package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read as flag defaults.
const (
	EnvDB           = "APPROVAL_DB"
	EnvModels       = "APPROVAL_MODELS"
	EnvPolicyModel  = "APPROVAL_POLICY_MODEL"
	EnvPolicy       = "APPROVAL_POLICY"
	EnvStaff        = "APPROVAL_STAFF"
	EnvRedisAddr    = "APPROVAL_REDIS_ADDR"
	EnvKafkaBrokers = "APPROVAL_KAFKA_BROKERS"
	EnvKafkaTopic   = "APPROVAL_KAFKA_TOPIC"
)

// loadDotEnv loads path into the process environment. Variables already set
// win over the file, and a missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// orEnv returns value, or the value of key when value is empty.
// Explicit flags win over the environment.
func orEnv(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}
