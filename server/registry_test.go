package server

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() GameConfig {
	return GameConfig{
		Step:              10,
		ArenaSize:         800,
		TagRadius:         40,
		PassCooldown:      time.Second,
		Fuse:              20 * time.Second,
		TickInterval:      10 * time.Millisecond,
		EndOnLastSurvivor: true,
	}
}

// fakeClock is a manually advanced time source for the registry.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func pipeEntry(t *testing.T, name, sprite string, x, y int) *PlayerEntry {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return NewPlayerEntry(name, sprite, x, y, a)
}

func TestRegistryInsertRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)
	require.NoError(t, reg.Insert(pipeEntry(t, "alice", "red", 100, 100)))

	err := reg.Insert(pipeEntry(t, "alice", "blue", 100, 100))
	assert.ErrorIs(t, err, ErrNameTaken)

	err = reg.Insert(pipeEntry(t, "bob", "red", 100, 100))
	assert.ErrorIs(t, err, ErrSpriteTaken)

	assert.Equal(t, 1, reg.Count())
}

func TestRegistryInsertAfterSeal(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)
	reg.Seal()
	assert.True(t, reg.Sealed())
	assert.ErrorIs(t, reg.Insert(pipeEntry(t, "alice", "red", 100, 100)), ErrIntakeClosed)
	assert.Zero(t, reg.Count())
}

func TestRegistryConcurrentInsertsKeepNamesUnique(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)

	const workers = 40
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every name is attempted twice, each with its own sprite
			e := pipeEntry(t, fmt.Sprintf("p%d", i%(workers/2)), fmt.Sprintf("s%d", i), 100, 100)
			if reg.Insert(e) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers/2, ok)
	assert.Equal(t, workers/2, reg.Count())
	seen := map[string]bool{}
	for _, p := range reg.Snapshot().Players {
		assert.False(t, seen[p.Name], "duplicate name %s", p.Name)
		seen[p.Name] = true
	}
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	pool := NewSpritePool([]string{"red", "blue"})
	reg := NewRegistry(testRules(), pool, nil)

	sprite, err := pool.Acquire()
	require.NoError(t, err)
	e := pipeEntry(t, "alice", sprite, 100, 100)
	require.NoError(t, reg.Insert(e))
	assert.Equal(t, 1, pool.Available())

	assert.True(t, reg.Remove(e.ID()))
	assert.False(t, reg.Remove(e.ID()))
	assert.Zero(t, reg.Count())
	assert.Equal(t, 2, pool.Available(), "sprite returns to the pool once")
}

func TestRegistryRemoveHolderHandsBombOn(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)
	a := pipeEntry(t, "alice", "red", 100, 100)
	b := pipeEntry(t, "bob", "blue", 600, 600)
	require.NoError(t, reg.Insert(a))
	require.NoError(t, reg.Insert(b))
	require.NoError(t, reg.AssignBomb(a.ID()))

	reg.Remove(a.ID())

	holder, ok := reg.Holder()
	require.True(t, ok)
	assert.Equal(t, "bob", holder)
}

func TestRegistryAssignBombSingleHolder(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)
	var ids []string
	for i, s := range []string{"red", "blue", "pink"} {
		e := pipeEntry(t, fmt.Sprintf("p%d", i), s, 100+200*i, 100)
		require.NoError(t, reg.Insert(e))
		ids = append(ids, e.ID())
	}
	for _, id := range append(ids, ids...) {
		require.NoError(t, reg.AssignBomb(id))
		holders := 0
		for _, p := range reg.Snapshot().Players {
			if p.HasBomb {
				holders++
				assert.Equal(t, id, p.ID)
			}
		}
		assert.Equal(t, 1, holders)
	}
	assert.ErrorIs(t, reg.AssignBomb("nobody"), ErrUnknownPlayer)
}

func TestRegistryPickRandomIsUniform(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)
	_, ok := reg.PickRandom()
	assert.False(t, ok)

	for i, s := range []string{"red", "blue", "pink"} {
		require.NoError(t, reg.Insert(pipeEntry(t, fmt.Sprintf("p%d", i), s, 100, 100)))
	}
	const trials = 3000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		e, ok := reg.PickRandom()
		require.True(t, ok)
		counts[e.Name()]++
	}
	require.Len(t, counts, 3)
	for name, n := range counts {
		// expected 1000, standard deviation about 26
		assert.InDelta(t, trials/3, n, 200, "player %s picked %d times", name, n)
	}
}

func TestRegistryApplyMoveClampsToArena(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)
	e := pipeEntry(t, "alice", "red", 5, 795)
	require.NoError(t, reg.Insert(e))

	res, err := reg.ApplyMove(e.ID(), DirUp)
	require.NoError(t, err)
	assert.True(t, res.Moved)
	_, err = reg.ApplyMove(e.ID(), DirLeft)
	require.NoError(t, err)

	p, ok := reg.Get(e.ID())
	require.True(t, ok)
	assert.Equal(t, 0, p.X)
	assert.Equal(t, 785, p.Y)

	for i := 0; i < 3; i++ {
		_, err = reg.ApplyMove(e.ID(), DirDown)
		require.NoError(t, err)
	}
	p, _ = reg.Get(e.ID())
	assert.Equal(t, 800, p.Y)

	_, err = reg.ApplyMove("nobody", DirUp)
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestRegistryTagPassesBombWithCooldown(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testRules(), nil, nil)
	reg.now = clock.Now

	a := pipeEntry(t, "alice", "red", 100, 100)
	b := pipeEntry(t, "bob", "blue", 100, 135)
	far := pipeEntry(t, "carol", "pink", 700, 700)
	for _, e := range []*PlayerEntry{a, b, far} {
		require.NoError(t, reg.Insert(e))
	}
	require.NoError(t, reg.AssignBomb(a.ID()))

	res, err := reg.ApplyMove(a.ID(), DirDown)
	require.NoError(t, err)
	assert.Equal(t, "bob", res.PassedTo)
	holder, _ := reg.Holder()
	assert.Equal(t, "bob", holder)

	// bob touches alice right away: cooldown holds the bomb
	res, err = reg.ApplyMove(b.ID(), DirUp)
	require.NoError(t, err)
	assert.Empty(t, res.PassedTo)

	clock.Advance(2 * time.Second)
	res, err = reg.ApplyMove(b.ID(), DirUp)
	require.NoError(t, err)
	assert.Equal(t, "alice", res.PassedTo)
}

func TestRegistryTickDetonatesAfterFuse(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testRules(), nil, nil)
	reg.now = clock.Now

	a := pipeEntry(t, "alice", "red", 100, 100)
	b := pipeEntry(t, "bob", "blue", 600, 600)
	require.NoError(t, reg.Insert(a))
	require.NoError(t, reg.Insert(b))
	require.NoError(t, reg.AssignBomb(a.ID()))

	clock.Advance(10 * time.Second)
	_, fired := reg.Tick()
	assert.False(t, fired)

	clock.Advance(11 * time.Second)
	res, fired := reg.Tick()
	require.True(t, fired)
	assert.Equal(t, "alice", res.Eliminated)
	assert.Equal(t, "bob", res.NewHolder)

	count, alive, survivor := reg.Standing()
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, alive)
	assert.Equal(t, "bob", survivor)

	// eliminated players cannot move
	res2, err := reg.ApplyMove(a.ID(), DirRight)
	require.NoError(t, err)
	assert.False(t, res2.Moved)

	// bob's fuse is fresh
	_, fired = reg.Tick()
	assert.False(t, fired)
	clock.Advance(21 * time.Second)
	res, fired = reg.Tick()
	require.True(t, fired)
	assert.Equal(t, "bob", res.Eliminated)
	assert.Empty(t, res.NewHolder)
	assert.Zero(t, reg.AliveCount())
}

func TestRegistrySnapshotsAreConsistent(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)
	base := pipeEntry(t, "base", "s-base", 100, 100)
	require.NoError(t, reg.Insert(base))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			e := pipeEntry(t, fmt.Sprintf("p%d", i), fmt.Sprintf("s%d", i), 100, 100)
			_ = reg.Insert(e)
			_ = reg.AssignBomb(e.ID())
			_, _ = reg.ApplyMove(base.ID(), DirRight)
			reg.Remove(e.ID())
		}
	}()

	var last uint64
	for i := 0; i < 2000; i++ {
		snap := reg.Snapshot()
		assert.GreaterOrEqual(t, snap.Seq, last)
		last = snap.Seq
		holders := 0
		names := map[string]bool{}
		for _, p := range snap.Players {
			if p.HasBomb {
				holders++
			}
			assert.False(t, names[p.Name])
			names[p.Name] = true
		}
		assert.LessOrEqual(t, holders, 1)
	}
	close(stop)
	wg.Wait()
}

func TestRegistryChangesSignalsMutations(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)
	e := pipeEntry(t, "alice", "red", 100, 100)
	require.NoError(t, reg.Insert(e))
	select {
	case <-reg.Changes():
	default:
		t.Fatal("insert did not signal")
	}
	// signals coalesce
	reg.Remove(e.ID())
	reg.Remove(e.ID())
	select {
	case <-reg.Changes():
	default:
		t.Fatal("remove did not signal")
	}
	select {
	case <-reg.Changes():
		t.Fatal("unexpected extra signal")
	default:
	}
}

func TestRegistryUpdateRulesIsAtomic(t *testing.T) {
	reg := NewRegistry(testRules(), nil, nil)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.UpdateRules(func(r *GameConfig) { r.TagRadius++ })
		}()
	}
	wg.Wait()

	assert.Equal(t, 40+workers, reg.Rules().TagRadius)
	got := reg.UpdateRules(func(r *GameConfig) { r.Fuse = time.Second })
	assert.Equal(t, time.Second, got.Fuse)
	assert.Equal(t, 40+workers, got.TagRadius)
}
