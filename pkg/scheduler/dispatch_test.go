package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/oneloop/pkg/wire"
)

type fakeItem struct {
	N int
}

type fakeResult struct {
	N, Worker int
}

// fakeWorker mimics pkg/worker's state machine closely enough to drive
// runPhase end to end: TASK_BEGIN -> (READY_FOR_WORK, NEW_ITEM, RESULT)*
// -> TASK_END, over a real wire.Conn pair.
func fakeWorker(t *testing.T, conn wire.Conn, index int) {
	ctx := context.Background()
	env, err := conn.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.TagTaskBegin, env.Tag)

	for {
		require.NoError(t, conn.Send(ctx, wire.Envelope{Tag: wire.TagReadyForWork, Worker: index}))
		env, err := conn.Recv(ctx)
		require.NoError(t, err)
		if env.Tag == wire.TagTaskEnd {
			return
		}
		require.Equal(t, wire.TagNewItem, env.Tag)

		var item fakeItem
		require.NoError(t, wire.Decode(env.Payload, &item))

		payload, err := wire.Encode(fakeResult{N: item.N, Worker: index})
		require.NoError(t, err)
		require.NoError(t, conn.Send(ctx, wire.Envelope{Tag: wire.TagResult, Worker: index, Payload: payload}))
	}
}

func TestRunPhaseDispatchesEveryItemAndCommitsInOrderPerWorker(t *testing.T) {
	m1, w1 := wire.NewChannelPair()
	m2, w2 := wire.NewChannelPair()
	s := &Scheduler{conns: []wire.Conn{m1, m2}, inbound: make(chan inboundMsg, 16)}
	s.fanIn(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); fakeWorker(t, w1, 1) }()
	go func() { defer wg.Done(); fakeWorker(t, w2, 2) }()

	items := make([]fakeItem, 8)
	for i := range items {
		items[i] = fakeItem{N: i}
	}

	var mu sync.Mutex
	seenByWorker := map[int][]int{}
	err := runPhase[fakeItem, fakeResult](context.Background(), s, wire.PhaseFilter, items, func(r fakeResult) error {
		mu.Lock()
		defer mu.Unlock()
		seenByWorker[r.Worker] = append(seenByWorker[r.Worker], r.N)
		return nil
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not observe TASK_END")
	}

	total := 0
	for _, ns := range seenByWorker {
		total += len(ns)
		for i := 1; i < len(ns); i++ {
			assert.Less(t, ns[i-1], ns[i], "per-worker FIFO: results must commit in dispatch order")
		}
	}
	assert.Equal(t, len(items), total)
}

func TestLowestReadyPrefersSmallestIndex(t *testing.T) {
	assert.Equal(t, 0, lowestReady(map[int]bool{2: true, 0: true, 1: true}))
	assert.Equal(t, 1, lowestReady(map[int]bool{3: true, 1: true}))
	assert.Equal(t, -1, lowestReady(map[int]bool{}))
}
