package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	in, out, key, err := parseArgs([]string{"panic_x.ogg.enc"}, "private_key.pem")
	require.NoError(t, err)
	assert.Equal(t, "panic_x.ogg.enc", in)
	assert.Equal(t, "panic_x.ogg", out)
	assert.Equal(t, "private_key.pem", key)

	in, out, key, err = parseArgs([]string{"a.enc", "b.ogg"}, "private_key.pem")
	require.NoError(t, err)
	assert.Equal(t, "a.enc", in)
	assert.Equal(t, "b.ogg", out)
	assert.Equal(t, "private_key.pem", key)

	_, out, key, err = parseArgs([]string{"a.enc", "b.ogg", "/keys/priv.pem"}, "private_key.pem")
	require.NoError(t, err)
	assert.Equal(t, "b.ogg", out)
	assert.Equal(t, "/keys/priv.pem", key, "positional key overrides the flag default")
}

func TestParseArgsErrors(t *testing.T) {
	_, _, _, err := parseArgs(nil, "private_key.pem")
	assert.Error(t, err)

	_, _, _, err = parseArgs([]string{"a", "b", "c", "d"}, "private_key.pem")
	assert.Error(t, err)

	// Input without .enc and no explicit output would overwrite itself.
	_, _, _, err = parseArgs([]string{"recording.ogg"}, "private_key.pem")
	assert.ErrorContains(t, err, "output path equals input path")
}
