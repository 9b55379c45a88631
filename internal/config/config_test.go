package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReplicaConfigRejectsWrongPeerCount(t *testing.T) {
	_, err := LoadReplicaConfig(0, "127.0.0.1:9000", []string{"127.0.0.1:9001"}, nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires N=3f+1=4")
}

func TestLoadReplicaConfigAccepts(t *testing.T) {
	peers := []string{"127.0.0.1:9000", "127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"}
	cfg, err := LoadReplicaConfig(0, "127.0.0.1:9000", peers, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.N())
	assert.Equal(t, uint64(100), cfg.CheckpointInterval)
}

func TestLoadReplicaConfigRejectsBadHostPort(t *testing.T) {
	peers := []string{"not-a-hostport", "127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"}
	_, err := LoadReplicaConfig(0, "127.0.0.1:9000", peers, nil, 1)
	require.Error(t, err)
}

func TestLoadClientConfig(t *testing.T) {
	replicas := []string{"127.0.0.1:9000", "127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"}
	cfg, err := LoadClientConfig(1, "127.0.0.1:9500", replicas, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cfg.ID)
}
