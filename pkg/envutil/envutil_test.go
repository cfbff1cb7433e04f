package envutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrouesnel/sheets-replicator/pkg/envutil"
)

func TestFromEnvironment(t *testing.T) {
	env, err := envutil.FromEnvironment([]string{
		"PATH=/usr/bin",
		"REPLICATOR_CONFIG_SHEET=abc123",
		"EMPTY=",
		"WITH=equals=signs",
	})
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin", env["PATH"])
	assert.Equal(t, "abc123", env["REPLICATOR_CONFIG_SHEET"])
	assert.Equal(t, "", env["EMPTY"])
	assert.Equal(t, "equals=signs", env["WITH"])
}

func TestFromEnvironmentMalformedEntry(t *testing.T) {
	_, err := envutil.FromEnvironment([]string{"NOT_AN_ASSIGNMENT"})
	require.Error(t, err)
}

func TestToEnvironmentRoundTrip(t *testing.T) {
	env := map[string]string{"A": "1", "B": "2"}

	roundTripped, err := envutil.FromEnvironment(envutil.ToEnvironment(env))
	require.NoError(t, err)
	assert.Equal(t, env, roundTripped)
}
