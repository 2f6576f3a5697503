package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"chasingyou/protocol"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BroadcastRate 同一玩家两次状态帧之间的最小间隔，0 表示不限速；对局中可修改
type BroadcastRate struct {
	interval atomic.Int64
}

func NewBroadcastRate(d time.Duration) *BroadcastRate {
	b := &BroadcastRate{}
	b.Set(d)
	return b
}

func (b *BroadcastRate) Set(d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.interval.Store(int64(d))
}

func (b *BroadcastRate) Interval() time.Duration {
	return time.Duration(b.interval.Load())
}

func (b *BroadcastRate) limit() rate.Limit {
	d := b.Interval()
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// Handler 负责一个玩家的收发两个循环。两者共用连接，
// 先发现对端断开的一方关闭连接并移除玩家
type Handler struct {
	entry   *PlayerEntry
	reg     *Registry
	net     NetConfig
	rate    *BroadcastRate
	metrics *Metrics
	log     *zap.SugaredLogger
	// 对局结束时生成 finish 帧
	farewell func() protocol.Finish

	dropOnce  sync.Once
	closeOnce sync.Once
	dropMu    sync.Mutex
	dropErr   error
}

func NewHandler(entry *PlayerEntry, reg *Registry, netCfg NetConfig, br *BroadcastRate, metrics *Metrics, farewell func() protocol.Finish) *Handler {
	if br == nil {
		br = NewBroadcastRate(0)
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Handler{
		entry:    entry,
		reg:      reg,
		net:      netCfg,
		rate:     br,
		metrics:  metrics,
		log:      Log.With("player", entry.Name()),
		farewell: farewell,
	}
}

// SendLoop 持续广播快照，直到对局结束或写失败。
// 对局结束时补发最终状态和 finish 帧
func (h *Handler) SendLoop(ctx context.Context) error {
	current := h.rate.limit()
	limiter := rate.NewLimiter(current, 1)

	for {
		if l := h.rate.limit(); l != current {
			current = l
			limiter.SetLimit(l)
		}
		if err := limiter.Wait(ctx); err != nil {
			h.sayGoodbye()
			return nil
		}
		if err := h.writeState(PhaseRunning); err != nil {
			h.log.Infof("Player disconnected: %v", err)
			h.drop(err)
			return nil
		}
	}
}

// RecvLoop 读取客户端意图，直到对端挂断或对局结束。
// 任何一帧（包括 ping）都会续期读超时，静止但在线的玩家不会被踢出
func (h *Handler) RecvLoop(ctx context.Context) error {
	// 对局结束时只打断读，连接留给发送循环写告别帧
	stop := context.AfterFunc(ctx, func() {
		_ = h.entry.Conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if t := h.net.ReadTimeout; t > 0 && ctx.Err() == nil {
			_ = h.entry.Conn.SetReadDeadline(time.Now().Add(t))
		}
		b, err := protocol.ReadFrame(h.entry.Conn, h.net.MaxFrameBytes)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, protocol.ErrEmptyFrame) {
			h.metrics.IncIntentsRejected()
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.log.Info("Player closed the connection")
			} else {
				h.log.Infof("Player receive failed: %v", err)
			}
			h.drop(err)
			return nil
		}
		env, err := protocol.DecodeEnvelope(b)
		if err != nil {
			h.metrics.IncIntentsRejected()
			h.log.Debugf("undecodable frame: %v", err)
			continue
		}
		h.fold(env)
	}
}

func (h *Handler) fold(env protocol.Envelope) {
	switch env.T {
	case protocol.MsgMove:
	case protocol.MsgPing:
		return
	default:
		h.metrics.IncIntentsRejected()
		h.log.Debugf("unexpected %q", env.T)
		return
	}
	in, err := parseMove(h.entry.ID(), env)
	if err != nil {
		h.metrics.IncIntentsRejected()
		h.log.Debugf("%v", err)
		return
	}
	res, err := h.reg.ApplyMove(in.PlayerID, in.Command)
	if err != nil {
		h.metrics.IncIntentsRejected()
		return
	}
	if res.Moved {
		h.metrics.IncIntentsApplied()
		h.log.Debugw("move applied", "dir", in.Command.String(), "seq", in.Seq)
	}
	if res.PassedTo != "" {
		h.log.Infof("%s tagged %s, bomb passed", h.entry.Name(), res.PassedTo)
	}
}

func (h *Handler) writeState(phase Phase) error {
	snap := h.reg.Snapshot()
	b, err := protocol.Encode(protocol.MsgState, protocol.State{
		Seq:     snap.Seq,
		Phase:   phase.String(),
		Players: snap.Players,
	})
	if err != nil {
		return err
	}
	if t := h.net.WriteTimeout; t > 0 {
		_ = h.entry.Conn.SetWriteDeadline(time.Now().Add(t))
	}
	if err := protocol.WriteFrame(h.entry.Conn, b); err != nil {
		return err
	}
	h.metrics.IncBroadcasts()
	return nil
}

// sayGoodbye 尽力而为：最终快照、finish 帧，然后关闭
func (h *Handler) sayGoodbye() {
	if h.farewell != nil {
		if err := h.writeState(PhaseFinished); err == nil {
			if t := h.net.WriteTimeout; t > 0 {
				_ = h.entry.Conn.SetWriteDeadline(time.Now().Add(t))
			}
			_ = protocol.Send(h.entry.Conn, protocol.MsgFinish, h.farewell())
		}
	}
	h.close()
}

func (h *Handler) close() {
	h.closeOnce.Do(func() {
		_ = h.entry.Conn.Close()
	})
}

// Err 返回玩家被移除的原因，包装 ErrPeerDisconnected；
// 在线或正常结束时为 nil
func (h *Handler) Err() error {
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	return h.dropErr
}

// drop 关闭连接并移除玩家，只执行一次
func (h *Handler) drop(cause error) {
	h.close()
	h.dropOnce.Do(func() {
		h.dropMu.Lock()
		h.dropErr = fmt.Errorf("%w: %s: %w", ErrPeerDisconnected, h.entry.Name(), cause)
		h.dropMu.Unlock()
		if h.reg.Remove(h.entry.ID()) {
			h.metrics.IncDisconnects()
			h.log.Info("Removed the disconnected player")
		}
	})
}
