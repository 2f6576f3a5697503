package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"chasingyou/protocol"
)

// Listener 等待阶段接入玩家。接入循环独占一个协程，握手逐个处理
type Listener struct {
	cfg     *Config
	reg     *Registry
	sprites *SpritePool
	metrics *Metrics

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	// onAdmit 在登记之后、接管连接之前调用，测试用
	onAdmit func(*PlayerEntry)
}

// Listen 绑定玩家端口，失败时包装 ErrBind
func Listen(ctx context.Context, cfg *Config, reg *Registry, sprites *SpritePool, metrics *Metrics) (*Listener, error) {
	if metrics == nil {
		metrics = &Metrics{}
	}
	addr := cfg.Addr()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrBind, addr, err)
	}
	lctx, cancel := context.WithCancel(ctx)
	return &Listener{
		cfg:     cfg,
		reg:     reg,
		sprites: sprites,
		metrics: metrics,
		ln:      ln,
		ctx:     lctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Done 接入循环退出后关闭
func (l *Listener) Done() <-chan struct{} { return l.done }

func (l *Listener) Serve() {
	l.startOnce.Do(func() {
		go l.acceptLoop()
	})
}

// Close 结束接入并打断进行中的握手，可重复调用。
// 返回时已没有握手在运行，已加入的连接只归其玩家条目所有
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.ln.Close()
		l.startOnce.Do(func() { close(l.done) })
		<-l.done
		Log.Info("STOPPED WAITING FOR PLAYERS TO CONNECT")
	})
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (l *Listener) acceptLoop() {
	defer close(l.done)
	// 空握手时接入循环会自行结束
	defer l.ln.Close()

	Log.Infof("WAITING FOR PLAYERS TO CONNECT on %s", l.ln.Addr())
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			Log.Warnf("accept: %v", err)
			select {
			case <-l.ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		if stop := l.handshake(conn); stop {
			Log.Info("empty handshake received, intake stopped")
			return
		}
	}
}

// handshake 接纳或拒绝一个连接；返回 true 表示需要停止接入
func (l *Listener) handshake(conn net.Conn) (stop bool) {
	abort := context.AfterFunc(l.ctx, func() { _ = conn.Close() })
	defer abort()

	if t := l.cfg.Net.HandshakeTimeout; t > 0 {
		_ = conn.SetDeadline(time.Now().Add(t))
	}

	env, err := protocol.Receive(conn, l.cfg.Net.MaxFrameBytes)
	if err != nil {
		l.metrics.IncJoinsRejected()
		_ = conn.Close()
		if errors.Is(err, io.EOF) {
			Log.Infof("join from %s: hung up before sending a name", conn.RemoteAddr())
		} else {
			Log.Warnf("join from %s: %v", conn.RemoteAddr(), err)
		}
		return l.cfg.Intake.StopOnEmptyHandshake && l.ctx.Err() == nil
	}

	name, err := parseJoin(env)
	if err != nil {
		l.reject(conn, protocol.RejectInvalidName, err)
		return l.cfg.Intake.StopOnEmptyHandshake
	}

	entry, welcome, err := l.admit(name, conn)
	if err != nil {
		code := protocol.RejectInvalidName
		switch {
		case errors.Is(err, ErrCapacityExceeded):
			code = protocol.RejectCapacity
		case errors.Is(err, ErrNameTaken):
			code = protocol.RejectNameTaken
		case errors.Is(err, ErrIntakeClosed):
			code = protocol.RejectIntakeClosed
		}
		l.reject(conn, code, err)
		return false
	}

	if l.onAdmit != nil {
		l.onAdmit(entry)
	}
	// Close 已经抢先关掉了连接：撤销这次加入
	if !abort() {
		l.reg.Remove(entry.ID())
		l.metrics.IncJoinsRejected()
		Log.Infof("join from %s dropped: intake closed during the handshake", name)
		return false
	}

	if err := protocol.Send(conn, protocol.MsgWelcome, welcome); err != nil {
		Log.Warnf("welcome to %s failed: %v", name, err)
		_ = conn.Close()
		l.reg.Remove(entry.ID())
		return false
	}
	_ = conn.SetDeadline(time.Time{})
	l.metrics.IncJoinsAccepted()
	Log.Infof("PLAYER ACCEPTED, address=%s name=%s sprite=%s pos=(%d,%d)", entry.Addr, name, welcome.Sprite, welcome.X, welcome.Y)
	return false
}

// admit 分配精灵与出生点并登记玩家
func (l *Listener) admit(name string, conn net.Conn) (*PlayerEntry, protocol.Welcome, error) {
	sprite, err := l.sprites.Acquire()
	if err != nil {
		return nil, protocol.Welcome{}, err
	}
	x := spawnCoord(l.cfg.Spawn)
	y := spawnCoord(l.cfg.Spawn)
	entry := NewPlayerEntry(name, sprite, x, y, conn)
	welcome := protocol.Welcome{ID: entry.ID(), Name: name, Sprite: sprite, X: x, Y: y}
	if err := l.reg.Insert(entry); err != nil {
		l.sprites.Release(sprite)
		return nil, protocol.Welcome{}, err
	}
	return entry, welcome, nil
}

func (l *Listener) reject(conn net.Conn, code string, cause error) {
	l.metrics.IncJoinsRejected()
	Log.Infof("join from %s rejected (%s): %v", conn.RemoteAddr(), code, cause)
	_ = protocol.Send(conn, protocol.MsgReject, protocol.Reject{Code: code, Reason: cause.Error()})
	_ = conn.Close()
}

// spawnCoord 在 [Min, Max] 内均匀取值
func spawnCoord(s SpawnConfig) int {
	if s.Max <= s.Min {
		return s.Min
	}
	return s.Min + rand.IntN(s.Max-s.Min+1)
}
