package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapforwarder/internal/types"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

type fakeSink struct {
	err   error
	calls []types.NotificationRecord
}

func (f *fakeSink) Send(_ context.Context, rec types.NotificationRecord) error {
	f.calls = append(f.calls, rec)
	return f.err
}

func TestEmit_Success(t *testing.T) {
	trap, metric := &fakeSink{}, &fakeSink{}
	e := NewEmitter(trap, metric, nil)

	out, err := e.Emit(context.Background(), trapRecord())
	require.NoError(t, err)
	assert.Equal(t, types.TrapState("sent, metric-sent"), out.TrapState)
	assert.Len(t, trap.calls, 1)
	require.Len(t, metric.calls, 1)
	assert.Equal(t, types.TrapState("sent"), metric.calls[0].TrapState)
}

func TestEmit_MetricFailureIsNotFatal(t *testing.T) {
	e := NewEmitter(&fakeSink{}, &fakeSink{err: errors.New("refused")}, nil)

	out, err := e.Emit(context.Background(), trapRecord())
	require.NoError(t, err)
	assert.Equal(t, types.TrapState("sent, metric-failed"), out.TrapState)
	assert.Equal(t, "SEQ1", out.SequenceID())
}

type warnLogger struct {
	types.NopLogger
	warnings [][]any
}

func (l *warnLogger) Warn(msg string, args ...any) { l.warnings = append(l.warnings, append([]any{msg}, args...)) }
func (l *warnLogger) With(...any) types.Logger      { return l }

func TestEmit_MetricFailureLoggedWithCode(t *testing.T) {
	logger := &warnLogger{}
	e := NewEmitter(&fakeSink{}, &fakeSink{err: errors.New("refused")}, logger)

	_, err := e.Emit(context.Background(), trapRecord())
	require.NoError(t, err)
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], string(types.ErrCodeUpstreamMetric))
}

func TestEmit_TrapFailureIsFatal(t *testing.T) {
	metric := &fakeSink{}
	e := NewEmitter(&fakeSink{err: errors.New("timeout")}, metric, nil)

	in := trapRecord()
	out, err := e.Emit(context.Background(), in)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamTrap, appErr.Code)
	assert.Equal(t, types.TrapState("exception"), out.TrapState)
	assert.Empty(t, metric.calls)
	assert.Empty(t, in.TrapState)
}

func TestEmit_TrapOnly(t *testing.T) {
	e := NewEmitter(&fakeSink{}, nil, nil)
	out, err := e.Emit(context.Background(), trapRecord())
	require.NoError(t, err)
	assert.Equal(t, types.TrapState("sent"), out.TrapState)
}
