package dashboard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeDelta(t *testing.T) {
	base := func() View {
		return View{
			Stats: map[string]any{"api_calls": float64(100), "errors": float64(3)},
			APIs: []map[string]any{
				{"id": float64(1), "name": "orders", "status": "active"},
				{"id": "2", "name": "users"},
			},
		}
	}

	t.Run("stats shallow merge", func(t *testing.T) {
		v := base()
		sec, ok := mergeDelta(&v, Delta{Type: DeltaStatsUpdate, Data: map[string]any{"api_calls": float64(150)}})
		require.True(t, ok)
		require.Equal(t, SectionStats, sec)
		require.Equal(t, map[string]any{"api_calls": float64(150), "errors": float64(3)}, v.Stats)
	})

	t.Run("analytics into empty section", func(t *testing.T) {
		v := base()
		_, ok := mergeDelta(&v, Delta{Type: DeltaAnalyticsUpdate, Data: map[string]any{"p95": float64(12)}})
		require.True(t, ok)
		require.Equal(t, map[string]any{"p95": float64(12)}, v.Analytics)
	})

	t.Run("api update matches numeric and string ids", func(t *testing.T) {
		v := base()
		_, ok := mergeDelta(&v, Delta{Type: DeltaAPIUpdate, Data: map[string]any{"id": "1", "status": "paused"}})
		require.True(t, ok)
		require.Len(t, v.APIs, 2)
		require.Equal(t, "paused", v.APIs[0]["status"])
		require.Equal(t, "orders", v.APIs[0]["name"])

		mergeDelta(&v, Delta{Type: DeltaAPIUpdate, Data: map[string]any{"id": float64(2), "name": "accounts"}})
		require.Equal(t, "accounts", v.APIs[1]["name"])
	})

	t.Run("api update with unknown id appends", func(t *testing.T) {
		v := base()
		mergeDelta(&v, Delta{Type: DeltaAPIUpdate, Data: map[string]any{"id": float64(9), "name": "billing"}})
		require.Len(t, v.APIs, 3)
	})

	t.Run("api created appends once", func(t *testing.T) {
		v := base()
		mergeDelta(&v, Delta{Type: DeltaAPICreated, Data: map[string]any{"id": float64(3), "name": "search"}})
		mergeDelta(&v, Delta{Type: DeltaAPICreated, Data: map[string]any{"id": float64(3), "name": "search"}})
		require.Len(t, v.APIs, 3)
		require.Equal(t, "search", v.APIs[2]["name"])
	})

	t.Run("api deleted removes by id", func(t *testing.T) {
		v := base()
		_, ok := mergeDelta(&v, Delta{Type: DeltaAPIDeleted, Data: map[string]any{"id": float64(1)}})
		require.True(t, ok)
		require.Len(t, v.APIs, 1)
		require.Equal(t, "users", v.APIs[0]["name"])
	})

	t.Run("unknown type leaves view untouched", func(t *testing.T) {
		v := base()
		_, ok := mergeDelta(&v, Delta{Type: "team_invite", Data: map[string]any{"id": float64(1)}})
		require.False(t, ok)
		require.Equal(t, base(), v)
	})
}

func TestCloneIsDeep(t *testing.T) {
	v := View{
		Stats: map[string]any{"nested": map[string]any{"a": float64(1)}, "list": []any{"x"}},
		APIs:  []map[string]any{{"id": float64(1)}},
	}
	c := v.Clone()
	c.Stats["nested"].(map[string]any)["a"] = float64(2)
	c.Stats["list"].([]any)[0] = "y"
	c.APIs[0]["id"] = float64(5)

	require.Equal(t, float64(1), v.Stats["nested"].(map[string]any)["a"])
	require.Equal(t, "x", v.Stats["list"].([]any)[0])
	require.Equal(t, float64(1), v.APIs[0]["id"])
}
