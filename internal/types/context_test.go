package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestLoggerFromContext(t *testing.T) {
	assert.Nil(t, LoggerFromContext(context.Background()))

	ctx := WithLogger(context.Background(), NopLogger{})
	assert.Equal(t, NopLogger{}, LoggerFromContext(ctx))
}
