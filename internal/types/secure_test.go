package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretString_Redacts(t *testing.T) {
	s := SecretString("hunter2")

	assert.Equal(t, "***REDACTED***", s.String())
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%v", s))
	assert.Equal(t, "hunter2", s.Unmask())
	assert.True(t, s.IsSet())
	assert.False(t, SecretString("").IsSet())

	out, err := json.Marshal(struct {
		Password SecretString `json:"password"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"***REDACTED***"}`, string(out))
}
