package logger_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/mobilebackend/cloudbackend.go/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	require.Equal(t, 0, buff.Len())
	templogger.Logger.Info().Str("topicId", "#cat").Msg("Test")
	require.Contains(t, buff.String(), "Test")
	require.Contains(t, buff.String(), `"topicId":"#cat"`)
}

func TestLogLevel(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Level("warn").Make()
	require.NoError(t, err)

	templogger.Logger.Info().Msg("hidden")
	require.Equal(t, 0, buff.Len())

	templogger.Logger.Warn().Msg("shown")
	require.Contains(t, buff.String(), "shown")
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	templogger, err := logger.New().FromPath(path).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger.LogFile)
	templogger.Logger.Info().Msg("to file")
	require.NoError(t, templogger.Close())
	require.FileExists(t, path)
}
