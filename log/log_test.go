package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitLog_Level(t *testing.T) {
	defer InitLog(InfoLog, Stdout)

	var buf bytes.Buffer
	InitLog(WarnLog, &buf)
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
}

func TestInitLog_Trace(t *testing.T) {
	defer InitLog(InfoLog, Stdout)

	var buf bytes.Buffer
	InitLog(TraceLog, &buf)
	Tracef("height %d", 99)
	Sync()

	assert.Contains(t, buf.String(), "[trace] height 99")
}
