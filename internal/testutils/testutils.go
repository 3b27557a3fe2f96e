package testutils

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// MakeRandomString returns a 20 byte random hex string.
func MakeRandomString(t *testing.T) string {
	buf := make([]byte, 20)
	_, err := rand.Read(buf)
	require.NoError(t, err, "failed to generate random string")

	return fmt.Sprintf("%x", buf)
}

// NewTestLogging creates a new logging instance for testing purposes.
//
// The loggers use zaptest to integrate with the testing.T instance, allowing log output to be
// captured and displayed in test results. The logging level is set to Debug to provide detailed
// output during tests.
func NewTestLogging(t *testing.T) *logging.Logging {
	return logging.NewLoggingWithFactory(
		"testing",
		zap.DebugLevel,
		logging.Options{},
		func(level zapcore.Level) zapcore.Core {
			return zaptest.NewLogger(t, zaptest.Level(level)).Core()
		},
	)
}

// NewTestLogger creates a single component logger for testing purposes,
// backed by zaptest like NewTestLogging.
func NewTestLogger(t *testing.T) *logging.Logger {
	return logging.NewLogger(zaptest.NewLogger(t).Sugar())
}
