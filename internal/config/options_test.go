package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultOptions_IsValid(t *testing.T) {
	require.NoError(t, NewDefaultOptions().Validate())
}

func TestOptions_Validate_AddressCollisions(t *testing.T) {
	o := NewDefaultOptions()
	o.HealthProbeAddr = o.MetricsAddr
	require.Error(t, o.Validate())

	o = NewDefaultOptions()
	o.StatusAddr = o.MetricsAddr
	require.Error(t, o.Validate())
}

func TestOptions_Validate_LeaderElectionRequiresIDAndNamespace(t *testing.T) {
	o := NewDefaultOptions()
	o.LeaderElectionID = ""
	require.Error(t, o.Validate())

	o = NewDefaultOptions()
	o.LeaderElectionNamespace = ""
	require.Error(t, o.Validate())
}

func TestOptions_Validate_LogLevelAndFormat(t *testing.T) {
	o := NewDefaultOptions()
	o.LogLevel = "verbose"
	require.Error(t, o.Validate())

	o = NewDefaultOptions()
	o.LogFormat = "xml"
	require.Error(t, o.Validate())
}

func TestOptions_Complete_FillsDefaults(t *testing.T) {
	o := &Options{}
	require.NoError(t, o.Complete())

	defaults := NewDefaultOptions()
	assert.Equal(t, defaults.MetricsAddr, o.MetricsAddr)
	assert.Equal(t, defaults.HealthProbeAddr, o.HealthProbeAddr)
	assert.Equal(t, defaults.StatusAddr, o.StatusAddr)
	assert.Equal(t, defaults.LeaderElectionID, o.LeaderElectionID)
	assert.Equal(t, defaults.LeaderElectionNamespace, o.LeaderElectionNamespace)
	assert.Equal(t, defaults.LogLevel, o.LogLevel)
	assert.Equal(t, defaults.LogFormat, o.LogFormat)
}

func TestOptions_Complete_PreservesSetFields(t *testing.T) {
	o := &Options{MetricsAddr: ":9999", LogLevel: "debug"}
	require.NoError(t, o.Complete())

	assert.Equal(t, ":9999", o.MetricsAddr)
	assert.Equal(t, "debug", o.LogLevel)
}
