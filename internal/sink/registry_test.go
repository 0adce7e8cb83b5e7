package sink

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownTargetError_Error(t *testing.T) {
	err := &UnknownTargetError{
		Kind:      "fake_db",
		Available: []string{"duckdb", "postgres", "sqlite"},
	}

	msg := err.Error()

	assert.Contains(t, msg, "fake_db", "error should mention the unknown kind")
	assert.Contains(t, msg, "stepdb.yaml", "error should mention config file")
}

func TestRegister(t *testing.T) {
	Register("test_writer_internal", func(_ *slog.Logger) Writer { return nil })

	assert.True(t, IsRegistered("test_writer_internal"))

	factory, ok := Get("test_writer_internal")
	assert.True(t, ok)
	assert.NotNil(t, factory)
}

func TestBundledWritersRegistered(t *testing.T) {
	for _, kind := range []string{KindSQLite, KindDuckDB, KindPostgres} {
		assert.True(t, IsRegistered(kind), "bundled writer %s should self-register", kind)
	}
}

func TestNewWriter_EmptyKind(t *testing.T) {
	_, err := NewWriter(Config{}, nil)
	require.Error(t, err)
	assert.Equal(t, "target kind not specified", err.Error())
}

func TestNewWriter_UnknownKind(t *testing.T) {
	_, err := NewWriter(Config{Kind: "oracle"}, nil)

	var unknown *UnknownTargetError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "oracle", unknown.Kind)
	assert.Contains(t, unknown.Available, KindSQLite)
}

func TestNewWriter_Dialects(t *testing.T) {
	tests := []struct {
		kind    string
		dialect string
	}{
		{KindSQLite, "sqlite"},
		{KindDuckDB, "duckdb"},
		{KindPostgres, "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			w, err := NewWriter(Config{Kind: tt.kind}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, w.DialectName())
		})
	}
}
