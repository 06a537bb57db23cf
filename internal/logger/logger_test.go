package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_LogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			Init(tt.level, false)
			assert.Equal(t, tt.expected, zerolog.GlobalLevel())
			assert.NotNil(t, Get())
		})
	}
}

func TestInitWithWriter(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("info", false, &buf)

	Info().Str("service_id", "7").Msg("session open")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "7", entry["service_id"])
	assert.Equal(t, "session open", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestInitWithWriter_Pretty(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("debug", true, &buf)

	Debug().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestScopedLoggers(t *testing.T) {
	tests := []struct {
		name  string
		make  func() zerolog.Logger
		field string
		value string
	}{
		{"component", func() zerolog.Logger { return WithComponent("session") }, "component", "session"},
		{"connection", func() zerolog.Logger { return WithConnection("c-1") }, "conn_id", "c-1"},
		{"message", func() zerolog.Logger { return WithMessage("m1") }, "message_id", "m1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log = zerolog.New(&buf)
			zerolog.SetGlobalLevel(zerolog.InfoLevel)

			l := tt.make()
			l.Info().Msg("scoped")

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.value, entry[tt.field])
		})
	}
}

func TestLogLevels_Filtered(t *testing.T) {
	var buf bytes.Buffer
	log = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	Debug().Msg("debug message")
	Info().Msg("info message")
	assert.Empty(t, buf.String())

	Warn().Msg("warn message")
	assert.Contains(t, buf.String(), "warn message")
	buf.Reset()

	Error().Msg("error message")
	assert.Contains(t, buf.String(), "error message")
}
