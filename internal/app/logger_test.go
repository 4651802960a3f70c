package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teamchat/pkg/logger"
)

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(logger.Replace(nil))

	require.NoError(t, ConfigureLogging("debug"))
	require.NoError(t, ConfigureLogging(""))
}
