package server

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"chasingyou/protocol"
)

// Snapshot 同一版本下所有玩家的一致副本
type Snapshot struct {
	Seq     uint64
	Players []protocol.PlayerState
}

type MoveResult struct {
	Moved    bool
	PassedTo string // 炸弹易手时为新持有者的名字
}

// TickResult 引信燃尽的结果
type TickResult struct {
	Eliminated string // 被淘汰的持有者
	NewHolder  string
}

// Registry 唯一共享、加锁保护的玩家集合。
// 对条目及玩家可变字段的读写都必须经由其方法
type Registry struct {
	mu      sync.RWMutex
	entries []*PlayerEntry
	sealed  bool
	seq     uint64

	rules     GameConfig
	bombSince time.Time
	lastPass  time.Time

	sprites *SpritePool
	metrics *Metrics
	changes chan struct{}
	now     func() time.Time
}

// NewRegistry 创建空注册表。sprites 非空时，移除玩家会归还其精灵
func NewRegistry(rules GameConfig, sprites *SpritePool, metrics *Metrics) *Registry {
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Registry{
		rules:   rules,
		sprites: sprites,
		metrics: metrics,
		changes: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Changes 每次变更后发出信号，多次信号会合并
func (r *Registry) Changes() <-chan struct{} {
	return r.changes
}

func (r *Registry) notifyLocked() {
	r.seq++
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

// Insert 登记新加入的玩家，名字与精灵都必须唯一
func (r *Registry) Insert(e *PlayerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrIntakeClosed
	}
	for _, cur := range r.entries {
		if cur.Player.Name == e.Player.Name {
			return fmt.Errorf("%w: %q", ErrNameTaken, e.Player.Name)
		}
		if cur.Player.Sprite == e.Player.Sprite {
			return fmt.Errorf("%w: %q", ErrSpriteTaken, e.Player.Sprite)
		}
		if cur.Player.ID == e.Player.ID {
			return fmt.Errorf("duplicate player id %s", e.Player.ID)
		}
	}
	r.entries = append(r.entries, e)
	r.notifyLocked()
	return nil
}

// Remove 移除指定玩家；不存在时返回 false，同一玩家的两个循环都可以调用
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return false
	}
	gone := r.entries[idx]
	r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	if r.sprites != nil {
		r.sprites.Release(gone.Player.Sprite)
	}
	if gone.Player.HasBomb {
		gone.Player.HasBomb = false
		if next := r.randomAliveLocked(""); next != nil {
			r.giveBombLocked(next)
			Log.Infof("bomb holder %s left, bomb handed to %s", gone.Player.Name, next.Player.Name)
		}
	}
	r.notifyLocked()
	return true
}

func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) AliveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.Player.Alive {
			n++
		}
	}
	return n
}

// Standing 返回玩家数、存活数，以及仅剩一人存活时其名字
func (r *Registry) Standing() (count, alive int, survivor string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Player.Alive {
			alive++
			survivor = e.Player.Name
		}
	}
	if alive != 1 {
		survivor = ""
	}
	return len(r.entries), alive, survivor
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{Seq: r.seq, Players: make([]protocol.PlayerState, 0, len(r.entries))}
	for _, e := range r.entries {
		s.Players = append(s.Players, e.Player.State())
	}
	return s
}

// Entries 按加入顺序返回条目副本；玩家字段仍须经由注册表读取
func (r *Registry) Entries() []*PlayerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*PlayerEntry(nil), r.entries...)
}

func (r *Registry) Get(id string) (protocol.PlayerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.entries[i].Player.State(), true
	}
	return protocol.PlayerState{}, false
}

// PickRandom 均匀随机选取一个玩家
func (r *Registry) PickRandom() (*PlayerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return nil, false
	}
	return r.entries[rand.IntN(len(r.entries))], true
}

// AssignBomb 让 id 成为唯一持有者并重新点燃引信
func (r *Registry) AssignBomb(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	for _, e := range r.entries {
		e.Player.HasBomb = false
	}
	r.giveBombLocked(r.entries[i])
	r.notifyLocked()
	return nil
}

func (r *Registry) Holder() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h := r.holderLocked(); h != nil {
		return h.Player.Name, true
	}
	return "", false
}

// ApplyMove 将一次移动写入玩家状态：在场地内移动一步，
// 若此时持有者碰到其他存活玩家则传递炸弹。已淘汰玩家的意图被忽略
func (r *Registry) ApplyMove(id string, dir Direction) (MoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	p := &r.entries[i].Player
	if !p.Alive || dir == DirNone {
		return MoveResult{}, nil
	}
	step := r.rules.Step
	switch dir {
	case DirUp:
		p.Y -= step
	case DirDown:
		p.Y += step
	case DirLeft:
		p.X -= step
	case DirRight:
		p.X += step
	}
	p.X = clamp(p.X, 0, r.rules.ArenaSize)
	p.Y = clamp(p.Y, 0, r.rules.ArenaSize)

	res := MoveResult{Moved: true}
	if next := r.tagTargetLocked(); next != nil {
		r.holderLocked().Player.HasBomb = false
		r.giveBombLocked(next)
		r.lastPass = r.now()
		r.metrics.IncBombPasses()
		res.PassedTo = next.Player.Name
	}
	r.notifyLocked()
	return res, nil
}

// Tick 引信燃尽时引爆：持有者出局，随机一名存活玩家接过新炸弹
func (r *Registry) Tick() (TickResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.holderLocked()
	if h == nil || r.rules.Fuse <= 0 || r.now().Sub(r.bombSince) < r.rules.Fuse {
		return TickResult{}, false
	}
	h.Player.HasBomb = false
	h.Player.Alive = false
	r.metrics.IncEliminations()
	res := TickResult{Eliminated: h.Player.Name}
	if next := r.randomAliveLocked(h.Player.ID); next != nil {
		r.giveBombLocked(next)
		res.NewHolder = next.Player.Name
	}
	r.notifyLocked()
	return res, true
}

func (r *Registry) Rules() GameConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules
}

// UpdateRules 在锁内修改规则并返回修改后的副本，并发的局部修改互不覆盖
func (r *Registry) UpdateRules(fn func(*GameConfig)) GameConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.rules)
	return r.rules
}

func (r *Registry) indexLocked(id string) int {
	for i, e := range r.entries {
		if e.Player.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) holderLocked() *PlayerEntry {
	for _, e := range r.entries {
		if e.Player.HasBomb {
			return e
		}
	}
	return nil
}

func (r *Registry) giveBombLocked(e *PlayerEntry) {
	e.Player.HasBomb = true
	r.bombSince = r.now()
}

func (r *Registry) randomAliveLocked(exceptID string) *PlayerEntry {
	alive := make([]*PlayerEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Player.Alive && e.Player.ID != exceptID {
			alive = append(alive, e)
		}
	}
	if len(alive) == 0 {
		return nil
	}
	return alive[rand.IntN(len(alive))]
}

// tagTargetLocked 在触碰半径内选离持有者最近的存活玩家，遵守传递冷却
func (r *Registry) tagTargetLocked() *PlayerEntry {
	h := r.holderLocked()
	if h == nil || !h.Player.Alive {
		return nil
	}
	if !r.lastPass.IsZero() && r.now().Sub(r.lastPass) < r.rules.PassCooldown {
		return nil
	}
	radius2 := r.rules.TagRadius * r.rules.TagRadius
	var best *PlayerEntry
	bestD := radius2 + 1
	for _, e := range r.entries {
		if e == h || !e.Player.Alive {
			continue
		}
		dx, dy := e.Player.X-h.Player.X, e.Player.Y-h.Player.Y
		if d := dx*dx + dy*dy; d <= radius2 && d < bestD {
			best, bestD = e, d
		}
	}
	return best
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
