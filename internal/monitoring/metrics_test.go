package monitoring

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	require.Equal(t, "2xx", StatusClass(204))
	require.Equal(t, "4xx", StatusClass(401))
	require.Equal(t, "5xx", StatusClass(503))
	require.Equal(t, "unknown", StatusClass(0))
}

func TestSetChannelStateIsExclusive(t *testing.T) {
	states := []string{"idle", "connecting", "open", "closed"}
	SetChannelState("open", states)
	require.Equal(t, 1.0, testutil.ToFloat64(ChannelState.WithLabelValues("open")))
	require.Equal(t, 0.0, testutil.ToFloat64(ChannelState.WithLabelValues("connecting")))

	SetChannelState("closed", states)
	require.Equal(t, 0.0, testutil.ToFloat64(ChannelState.WithLabelValues("open")))
	require.Equal(t, 1.0, testutil.ToFloat64(ChannelState.WithLabelValues("closed")))
}

func TestResultLabel(t *testing.T) {
	require.Equal(t, "ok", ResultLabel(nil))
	require.Equal(t, "error", ResultLabel(errors.New("x")))
}
