package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/quarry-search/quarry/internal/config"
)

func TestDefaultConfigTemplate_ParsesCleanly(t *testing.T) {
	cfg := config.NewConfig()
	require.NoError(t, yaml.Unmarshal([]byte(DefaultConfigTemplate), cfg))
	require.NoError(t, cfg.Validate())
}

// The template documents the defaults, so applying it over a fresh
// config must change nothing.
func TestDefaultConfigTemplate_MatchesBuiltInDefaults(t *testing.T) {
	fromTemplate := config.NewConfig()
	require.NoError(t, yaml.Unmarshal([]byte(DefaultConfigTemplate), fromTemplate))

	assert.Equal(t, config.NewConfig(), fromTemplate)
}
