package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfsched/kernel/internal/config"
)

func TestNoopSinkWhenDisabled(t *testing.T) {
	sink, err := NewSink(config.AuditConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, sink.Enabled())

	err = sink.Record(context.Background(), Entry{PID: 7, Name: "worker"})
	assert.NoError(t, err)
	assert.NoError(t, sink.Close())
}

func TestNoopSinkWhenDSNEmpty(t *testing.T) {
	sink, err := NewSink(config.AuditConfig{Enabled: true, DSN: ""}, nil)
	require.NoError(t, err)
	assert.False(t, sink.Enabled())
}
