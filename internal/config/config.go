// Package config loads and validates replica and client topology
// configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ReplicaConfig holds everything a replica process needs to join a
// BFT2F cluster (§6 command-line surface, mirrored as env vars so the
// same binary can run under an orchestrator).
type ReplicaConfig struct {
	ID      uint32   `json:"id" validate:"gte=0"`
	Bind    string   `json:"bind" validate:"required,hostname_port"`
	Peers   []string `json:"peers" validate:"required,dive,hostname_port"`
	Clients []string `json:"clients" validate:"dive,hostname_port"`
	F       int      `json:"f" validate:"gte=1"`
	Faulty  bool     `json:"faulty"`

	CheckpointInterval uint64        `json:"checkpoint_interval" validate:"gte=1"`
	Watermark          uint64        `json:"watermark" validate:"gte=1"`
	CohesionWindow     uint64        `json:"cohesion_window" validate:"gte=1"`
	ViewTimeout        time.Duration `json:"view_timeout" validate:"gt=0"`
	Keystore           string        `json:"keystore" validate:"required"`

	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`

	AdminBind string `json:"admin_bind"`
	Persist   string `json:"persist"`
	RedisAddr string `json:"redis_addr"`
}

// ClientConfig holds everything a client process needs to issue
// requests against a cluster.
type ClientConfig struct {
	ID       uint32   `json:"id" validate:"gte=0"`
	Bind     string   `json:"bind" validate:"required,hostname_port"`
	Replicas []string `json:"replicas" validate:"required,dive,hostname_port"`
	F        int      `json:"f" validate:"gte=1"`
	Keystore string   `json:"keystore" validate:"required"`
	LogLevel string   `json:"log_level" validate:"oneof=debug info warn error"`
}

// N returns the replica count implied by f under the BFT2F resilience
// bound (§1: N = 3f+1).
func (c *ReplicaConfig) N() int { return 3*c.F + 1 }

// LoadReplicaConfig reads a ReplicaConfig from the environment,
// falling back to the given defaults for anything unset, then
// validates it.
func LoadReplicaConfig(id uint32, bind string, peers, clients []string, f int) (*ReplicaConfig, error) {
	cfg := &ReplicaConfig{
		ID:                 id,
		Bind:               bind,
		Peers:              peers,
		Clients:            clients,
		F:                  f,
		Faulty:             getEnvBool("BFT_FAULTY", false),
		CheckpointInterval: uint64(getEnvInt("BFT_CHECKPOINT_INTERVAL", 100)),
		Watermark:          uint64(getEnvInt("BFT_WATERMARK", 200)),
		CohesionWindow:     uint64(getEnvInt("BFT_COHESION_WINDOW", 128)),
		ViewTimeout:        time.Duration(getEnvInt("BFT_VIEW_TIMEOUT", 5000)) * time.Millisecond,
		Keystore:           getEnv("BFT_KEYSTORE", "./keystore"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AdminBind:          getEnv("BFT_ADMIN_BIND", ""),
		Persist:            getEnv("BFT_PERSIST_DSN", ""),
		RedisAddr:          getEnv("BFT_REDIS_ADDR", ""),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Peers) != cfg.N() {
		return nil, fmt.Errorf("config: %d peers given but f=%d requires N=3f+1=%d", len(cfg.Peers), cfg.F, cfg.N())
	}
	return cfg, nil
}

// LoadClientConfig reads a ClientConfig from the environment and
// validates it.
func LoadClientConfig(id uint32, bind string, replicas []string, f int) (*ClientConfig, error) {
	cfg := &ClientConfig{
		ID:       id,
		Bind:     bind,
		Replicas: replicas,
		F:        f,
		Keystore: getEnv("BFT_KEYSTORE", "./keystore"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if want := 3*f + 1; len(cfg.Replicas) != want {
		return nil, fmt.Errorf("config: %d replicas given but f=%d requires N=3f+1=%d", len(cfg.Replicas), f, want)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over a Replica/ClientConfig,
// registering a hostname_port tag since net.SplitHostPort alone
// doesn't fit the validator's FieldLevel interface cleanly.
func Validate(s interface{}) error {
	v := validator.New()
	v.RegisterValidation("hostname_port", validateHostPort)

	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var msgs []string
	for _, fe := range err.(validator.ValidationErrors) {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

func validateHostPort(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return false
	}
	idx := strings.LastIndex(value, ":")
	if idx <= 0 || idx == len(value)-1 {
		return false
	}
	_, err := strconv.Atoi(value[idx+1:])
	return err == nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
