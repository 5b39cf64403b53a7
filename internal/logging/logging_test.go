package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	log := New(Options{Output: &bytes.Buffer{}})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewQuietOnceSuppressesInfo(t *testing.T) {
	log := New(Options{Quiet: 1, Output: &bytes.Buffer{}})
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}

func TestNewQuietTwiceSuppressesWarnings(t *testing.T) {
	log := New(Options{Quiet: 2, Output: &bytes.Buffer{}})
	assert.Equal(t, logrus.ErrorLevel, log.GetLevel())
}

func TestNewVerboseEscalatesThroughDebugToTrace(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, New(Options{Verbose: 1, Output: &bytes.Buffer{}}).GetLevel())
	assert.Equal(t, logrus.DebugLevel, New(Options{Verbose: 2, Output: &bytes.Buffer{}}).GetLevel())
	assert.Equal(t, logrus.TraceLevel, New(Options{Verbose: 3, Output: &bytes.Buffer{}}).GetLevel())
}

func TestNewFormatTimeLevelFunctionMsgEnablesCaller(t *testing.T) {
	log := New(Options{Format: FormatTimeLevelFuncMsg, Output: &bytes.Buffer{}})
	assert.True(t, log.ReportCaller)
}

func TestNewColorNoneDisablesColors(t *testing.T) {
	log := New(Options{Color: ColorNone, Output: &bytes.Buffer{}})
	tf, ok := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
	assert.True(t, tf.DisableColors)
}

func TestNewColorANSIForcesColors(t *testing.T) {
	log := New(Options{Color: ColorANSI, Output: &bytes.Buffer{}})
	tf, ok := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
	assert.True(t, tf.ForceColors)
}

func TestNewWritesToProvidedOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf})
	log.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}
