package main

import (
	"os"

	"github.com/joho/godotenv"
)

func loadEnv(filenames ...string) {
	for _, filename := range filenames {
		if s, err := os.Stat(filename); err == nil && !s.IsDir() {
			_ = godotenv.Load(filename)
		}
	}
}

// loadDefaultEnv reads .env files for ENV, which defaults to development.
// Variables already set in the process win over file values.
func loadDefaultEnv() {
	if _, ok := os.LookupEnv("ENV"); !ok {
		_ = os.Setenv("ENV", "development")
	}
	env := os.Getenv("ENV")
	loadEnv(".env."+env+".local", ".env."+env, ".env.local", ".env")
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
