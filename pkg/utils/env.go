package utils

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadConfig loads a .env file from the given directory into the process
// environment. Missing files are fine; explicit environment variables always
// win over .env contents.
func LoadConfig(path string) {
	envFile := filepath.Join(path, ".env")
	if err := godotenv.Load(envFile); err == nil {
		logrus.Debugf("[CONFIG] Loaded environment from %s", envFile)
	}
}
