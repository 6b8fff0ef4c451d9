package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomIntBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		v := RandomInt(3, 7)
		assert.GreaterOrEqual(t, v, 3)
		assert.LessOrEqual(t, v, 7)
	}
	assert.Equal(t, 5, RandomInt(5, 5))
	assert.Equal(t, 9, RandomInt(9, 2))
}

func TestRandomDuration(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := RandomDuration(2*time.Second, 4*time.Second)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
	assert.Equal(t, time.Duration(0), RandomDuration(-time.Second, 0))
}

func TestEncodeURLParams(t *testing.T) {
	type params struct {
		Offset int    `url:"offset"`
		Lang   string `url:"lang,omitempty"`
	}
	got, err := EncodeURLParams(params{Offset: -420})
	require.NoError(t, err)
	assert.Equal(t, "offset=-420", got)
}

func TestBeautifyJSON(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", BeautifyJSON([]byte(`{"a":1}`)))
	assert.Equal(t, "OK", BeautifyJSON([]byte("OK")))
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "abc", TruncateForLog("abc", 5))
	assert.Equal(t, "ab...", TruncateForLog("abcdef", 2))
}
