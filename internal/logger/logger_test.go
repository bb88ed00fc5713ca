package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logging.DEBUG, ParseLevel("debug"))
	assert.Equal(t, logging.WARNING, ParseLevel(" Warning "))
	assert.Equal(t, logging.INFO, ParseLevel("loud"))
	assert.Equal(t, logging.INFO, ParseLevel(""))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitLogger(logging.WARNING, &buf)
	defer InitLogger(logging.INFO, os.Stderr)

	Info("hidden")
	Warningf("shown %d", 1)
	Printer{}.Print("also hidden\n")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARNING - shown 1")
}
