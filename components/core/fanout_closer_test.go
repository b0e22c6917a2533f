package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFanoutCloserReverseOrder(t *testing.T) {
	var order []string

	closer := &FanoutCloser{}
	closer.Add("first", FuncCloser(func() error {
		order = append(order, "first")
		return nil
	}))
	closer.Add("second", FuncCloser(func() error {
		order = append(order, "second")
		return errors.New("failed to close")
	}))
	closer.Add("third", FuncCloser(func() error {
		order = append(order, "third")
		return nil
	}))

	require.Nil(t, closer.Close())
	require.Equal(t, []string{"third", "second", "first"}, order)
}

func TestFanoutCloserCloseOnce(t *testing.T) {
	callCount := 0

	closer := &FanoutCloser{}
	closer.Add("counter", FuncCloser(func() error {
		callCount++
		return nil
	}))

	require.Nil(t, closer.Close())
	require.Nil(t, closer.Close())
	require.Equal(t, 1, callCount)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		text  string
		level LogLevel
	}{
		{"debug", LogLevelDebug},
		{"Trace", LogLevelDebug},
		{"", LogLevelInfo},
		{"Information", LogLevelInfo},
		{"WARN", LogLevelWarning},
		{"warning", LogLevelWarning},
		{"error", LogLevelError},
		{"None", LogLevelNone},
	}

	for _, test := range tests {
		level, err := ParseLogLevel(test.text)
		require.Nil(t, err)
		require.Equal(t, test.level, level)
	}

	_, err := ParseLogLevel("verbose")
	require.NotNil(t, err)
}
