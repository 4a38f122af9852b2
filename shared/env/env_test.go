package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetters_FallBackToDefaults(t *testing.T) {
	assert.Equal(t, "fallback", GetString("SHIPTRACK_TEST_UNSET_STRING", "fallback"))
	assert.Equal(t, 7, GetInt("SHIPTRACK_TEST_UNSET_INT", 7))
	assert.True(t, GetBool("SHIPTRACK_TEST_UNSET_BOOL", true))
	assert.Equal(t, 3*time.Second, GetDuration("SHIPTRACK_TEST_UNSET_DURATION", 3*time.Second))
	assert.Equal(t, []string{"a"}, GetStringSlice("SHIPTRACK_TEST_UNSET_SLICE", []string{"a"}))
}

func TestGetters_ReadEnvironment(t *testing.T) {
	t.Setenv("SHIPTRACK_TEST_STRING", "  value ")
	t.Setenv("SHIPTRACK_TEST_INT", "42")
	t.Setenv("SHIPTRACK_TEST_BOOL", "false")
	t.Setenv("SHIPTRACK_TEST_DURATION", "1500ms")
	t.Setenv("SHIPTRACK_TEST_SLICE", "1, 3 ,,42")

	assert.Equal(t, "value", GetString("SHIPTRACK_TEST_STRING", ""))
	assert.Equal(t, 42, GetInt("SHIPTRACK_TEST_INT", 0))
	assert.False(t, GetBool("SHIPTRACK_TEST_BOOL", true))
	assert.Equal(t, 1500*time.Millisecond, GetDuration("SHIPTRACK_TEST_DURATION", 0))
	assert.Equal(t, []string{"1", "3", "42"}, GetStringSlice("SHIPTRACK_TEST_SLICE", nil))
}

func TestGetDuration_InvalidValueUsesDefault(t *testing.T) {
	t.Setenv("SHIPTRACK_TEST_BAD_DURATION", "soon")
	assert.Equal(t, time.Minute, GetDuration("SHIPTRACK_TEST_BAD_DURATION", time.Minute))
}
