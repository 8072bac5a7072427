package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueRunsInPushOrder(t *testing.T) {
	var q Queue
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		q.Push(func() { got = append(got, i) })
	}
	q.Drain()
	require.Equal(t, []int{0, 1, 2}, got)
}

func TestQueueReentrantPushRunsAfterCurrent(t *testing.T) {
	var q Queue
	var got []string
	q.Push(func() {
		got = append(got, "outer-start")
		q.Push(func() { got = append(got, "inner") })
		q.Drain()
		got = append(got, "outer-end")
	})
	q.Drain()
	require.Equal(t, []string{"outer-start", "outer-end", "inner"}, got)
}

func TestQueueConcurrentDrainRunsEachOnce(t *testing.T) {
	var q Queue
	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
			q.Drain()
		}()
	}
	wg.Wait()
	q.Drain()
	require.Equal(t, 50, count)
}
