package config

import "os"

// Envs carries the process configuration, read once from the environment.
var Envs = struct {
	LISTEN_ADDR string
	DB_PATH     string
	STUN_URL    string
	GIN_MODE    string
}{
	LISTEN_ADDR: getenv("LISTEN_ADDR", ":8080"),
	DB_PATH:     getenv("DB_PATH", "./pawnsquare.db"),
	STUN_URL:    getenv("STUN_URL", "stun:stun.l.google.com:19302"),
	GIN_MODE:    os.Getenv("GIN_MODE"),
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
