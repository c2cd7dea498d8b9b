package iolog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetherproc/tether/internal/iolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog_Incoming(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	l := iolog.New(zap.New(core))
	l.Incoming("uciok", "engine1")

	entries := logs.All()
	require.Len(t, entries, 1)

	assert.Equal(t, "recv", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "engine1", fields["proc"])
	assert.Equal(t, "uciok", fields["line"])
}

func TestLog_OutgoingStripsNewline(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	l := iolog.New(zap.New(core))
	l.Outgoing("isready\r\n", "engine1")

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "isready", fields["text"])
}

func TestNop_DoesNothing(t *testing.T) {
	l := iolog.Nop()

	// must be safe without any backing logger
	l.Incoming("line", "name")
	l.Outgoing("text", "name")
}
