package logger

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug", false).GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("chatty", true).GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, New("info", true).Formatter)
}

func TestLogError(t *testing.T) {
	log, hook := test.NewNullLogger()

	LogError(log, "payment", "Capture", "capture declined", map[string]string{"execution_id": "e-1"}, errors.New("card_declined"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "card_declined", entry.Message)
	assert.Equal(t, "payment", entry.Data["module"])
	assert.Equal(t, "Capture", entry.Data["funcName"])
	assert.Contains(t, entry.Data, "data")

	LogError(log, "payment", "Capture", "no data", nil, errors.New("timeout"))
	assert.NotContains(t, hook.LastEntry().Data, "data")
}
