// Package config loads a node's configuration from environment variables,
// in the same getEnv-with-fallback style the fleet uses (compare
// redis_supervisor_service/internal/config/config.go), plus godotenv so a
// .env file works in local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// PeerConfig is one configured ensemble member.
type PeerConfig struct {
	ID      string
	Address string
	Weight  uint64
}

// Config holds everything a flenode process needs to start.
type Config struct {
	SelfID string

	// BindAddr is where this node's peer-to-peer gRPC transport listens.
	BindAddr string
	Peers    []PeerConfig

	// LedgerPath is the sqlite3 file backing the transaction log / data
	// tree stand-in.
	LedgerPath string

	// HTTPAddr is where the admin HTTP surface listens.
	HTTPAddr string

	// DockerHost, if set, is passed to the Docker client for the restart
	// admin action; empty means "use the client's default resolution".
	DockerHost string
}

// Load reads Config from the environment, loading a .env file first if one
// is present (godotenv.Load silently no-ops when the file is absent).
func Load() (*Config, error) {
	_ = godotenv.Load()

	selfID := strings.TrimSpace(getEnv("NODE_ID", ""))
	if selfID == "" {
		return nil, fmt.Errorf("config: NODE_ID is required")
	}

	bindAddr := strings.TrimSpace(getEnv("BIND_ADDR", ":7000"))
	if bindAddr == "" {
		return nil, fmt.Errorf("config: BIND_ADDR must not be empty")
	}

	peersStr := strings.TrimSpace(getEnv("PEERS", ""))
	peers, err := parsePeers(peersStr)
	if err != nil {
		return nil, err
	}

	ledgerPath := strings.TrimSpace(getEnv("LEDGER_PATH", "data/ledger.db"))
	httpAddr := strings.TrimSpace(getEnv("HTTP_ADDR", ":8080"))

	return &Config{
		SelfID:     selfID,
		BindAddr:   bindAddr,
		Peers:      peers,
		LedgerPath: ledgerPath,
		HTTPAddr:   httpAddr,
		DockerHost: strings.TrimSpace(getEnv("DOCKER_HOST", "")),
	}, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parsePeers parses "id=address=weight,id=address=weight,..." entries. A
// missing weight defaults to 1 (voting participant); weight 0 marks an
// observer.
func parsePeers(peers string) ([]PeerConfig, error) {
	if peers == "" {
		return nil, nil
	}

	entries := strings.Split(peers, ",")
	result := make([]PeerConfig, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, "=")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=address or id=address=weight)", entry)
		}

		id := strings.TrimSpace(parts[0])
		addr := strings.TrimSpace(parts[1])
		if id == "" || addr == "" {
			return nil, fmt.Errorf("invalid peer format: %s (id and address must not be empty)", entry)
		}

		weight := uint64(1)
		if len(parts) == 3 {
			w, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid weight in peer format %s: %w", entry, err)
			}
			weight = w
		}

		result = append(result, PeerConfig{ID: id, Address: addr, Weight: weight})
	}

	return result, nil
}
