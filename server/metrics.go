package server

import (
	"sync/atomic"
)

// Metrics 记录对局运行期的关键指标（用于监控与调试）
type Metrics struct {
	JoinsAccepted   int64 // 接入成功
	JoinsRejected   int64 // 握手失败或被拒
	Disconnects     int64 // 因传输错误移除
	Broadcasts      int64 // 已写出的状态帧
	IntentsApplied  int64 // 已生效的移动
	IntentsRejected int64 // 解码或校验失败
	BombPasses      int64 // 触碰传递炸弹
	Eliminations    int64 // 引信燃尽
}

func (m *Metrics) IncJoinsAccepted()   { atomic.AddInt64(&m.JoinsAccepted, 1) }
func (m *Metrics) IncJoinsRejected()   { atomic.AddInt64(&m.JoinsRejected, 1) }
func (m *Metrics) IncDisconnects()     { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) IncBroadcasts()      { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *Metrics) IncIntentsApplied()  { atomic.AddInt64(&m.IntentsApplied, 1) }
func (m *Metrics) IncIntentsRejected() { atomic.AddInt64(&m.IntentsRejected, 1) }
func (m *Metrics) IncBombPasses()      { atomic.AddInt64(&m.BombPasses, 1) }
func (m *Metrics) IncEliminations()    { atomic.AddInt64(&m.Eliminations, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"joins_accepted":   atomic.LoadInt64(&m.JoinsAccepted),
		"joins_rejected":   atomic.LoadInt64(&m.JoinsRejected),
		"disconnects":      atomic.LoadInt64(&m.Disconnects),
		"broadcasts":       atomic.LoadInt64(&m.Broadcasts),
		"intents_applied":  atomic.LoadInt64(&m.IntentsApplied),
		"intents_rejected": atomic.LoadInt64(&m.IntentsRejected),
		"bomb_passes":      atomic.LoadInt64(&m.BombPasses),
		"eliminations":     atomic.LoadInt64(&m.Eliminations),
	}
}
