package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"chasingyou/protocol"

	"golang.org/x/sync/errgroup"
)

// Phase 对局所处阶段
type Phase int32

const (
	PhaseWaiting Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting_for_players"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseFinished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Outcome 对局结束方式
type Outcome string

const (
	OutcomeNoPlayers   Outcome = "no_players"
	OutcomeWinner      Outcome = "winner"
	OutcomeAbandoned   Outcome = "abandoned"
	OutcomeNoSurvivors Outcome = "no_survivors"
	OutcomeAborted     Outcome = "aborted"
)

type Result struct {
	Outcome Outcome
	Winner  string // 仅 OutcomeWinner 时有值
	Players int    // 开局时的玩家数
}

// Confirmer 开局闸门：ConfirmStart 阻塞到管理员同意，拒绝时返回错误
type Confirmer interface {
	ConfirmStart(ctx context.Context) error
}

// Intake 开局前必须关闭的玩家接入
type Intake interface {
	Close() error
}

// Game 驱动一局游戏走完各阶段，只能运行一次
type Game struct {
	cfg     *Config
	reg     *Registry
	intake  Intake
	rate    *BroadcastRate
	metrics *Metrics

	phase atomic.Int32

	mu      sync.Mutex
	result  Result
	decided bool
}

func NewGame(cfg *Config, reg *Registry, intake Intake, br *BroadcastRate, metrics *Metrics) *Game {
	if br == nil {
		br = NewBroadcastRate(cfg.Broadcast.MinInterval)
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Game{
		cfg:     cfg,
		reg:     reg,
		intake:  intake,
		rate:    br,
		metrics: metrics,
	}
}

// Phase 可在任意协程读取
func (g *Game) Phase() Phase {
	return Phase(g.phase.Load())
}

// Result 决出之前为零值
func (g *Game) Result() Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result
}

func (g *Game) setPhase(p Phase) {
	g.phase.Store(int32(p))
	Log.Infof("game phase: %s", p)
}

// decide 记录结果，以第一次为准
func (g *Game) decide(r Result) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.decided {
		return false
	}
	g.result, g.decided = r, true
	return true
}

// Run 等待管理员确认后进行对局直到结束。
// 管理员拒绝或 ctx 取消时返回 ErrOperatorAbort
func (g *Game) Run(ctx context.Context, confirm Confirmer) (Result, error) {
	g.setPhase(PhaseWaiting)
	if err := confirm.ConfirmStart(ctx); err != nil {
		return g.abort(err)
	}
	if err := context.Cause(ctx); err != nil {
		return g.abort(err)
	}

	g.setPhase(PhaseStarting)
	if err := g.intake.Close(); err != nil {
		Log.Warnf("closing intake: %v", err)
	}
	g.reg.Seal()

	started := g.reg.Count()
	if started == 0 {
		Log.Info("NO PLAYERS JOINED")
		g.decide(Result{Outcome: OutcomeNoPlayers})
		g.setPhase(PhaseFinished)
		return g.Result(), nil
	}
	holder, _ := g.reg.PickRandom()
	if err := g.reg.AssignBomb(holder.ID()); err != nil {
		return g.abort(err)
	}
	Log.Infof("STARTING THE GAME WITH %d PLAYERS, %s holds the bomb", started, holder.Name())

	return g.play(ctx, started)
}

func (g *Game) play(ctx context.Context, started int) (Result, error) {
	// 先记录结果再取消处理器，告别帧才能带上结果
	gctx, stop := context.WithCancel(context.Background())
	defer stop()
	unwatch := context.AfterFunc(ctx, func() {
		if g.decide(Result{Outcome: OutcomeAborted, Players: started}) {
			Log.Warn("game aborted by the operator")
		}
		stop()
	})
	defer unwatch()

	farewell := func() protocol.Finish {
		r := g.Result()
		return protocol.Finish{Outcome: string(r.Outcome), Winner: r.Winner}
	}

	g.setPhase(PhaseRunning)
	var grp errgroup.Group
	for _, e := range g.reg.Entries() {
		h := NewHandler(e, g.reg, g.cfg.Net, g.rate, g.metrics, farewell)
		grp.Go(func() error { return h.SendLoop(gctx) })
		grp.Go(func() error { return h.RecvLoop(gctx) })
	}
	grp.Go(func() error { return g.referee(gctx, started, stop) })
	err := grp.Wait()

	g.setPhase(PhaseFinished)
	res := g.Result()
	Log.Infof("FINISHED THE GAME: %s %s", res.Outcome, res.Winner)
	if res.Outcome == OutcomeAborted {
		return res, fmt.Errorf("%w: %w", ErrOperatorAbort, context.Cause(ctx))
	}
	return res, err
}

// abort 在处理器启动前结束对局：关闭接入并断开所有已加入的连接
func (g *Game) abort(cause error) (Result, error) {
	if err := g.intake.Close(); err != nil {
		Log.Warnf("closing intake: %v", err)
	}
	g.reg.Seal()
	for _, e := range g.reg.Entries() {
		_ = e.Conn.Close()
	}
	g.decide(Result{Outcome: OutcomeAborted, Players: g.reg.Count()})
	g.setPhase(PhaseFinished)
	Log.Warnf("game aborted: %v", cause)
	return g.Result(), fmt.Errorf("%w: %w", ErrOperatorAbort, cause)
}
