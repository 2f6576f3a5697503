package server

import (
	"context"
	"time"
)

// referee 燃烧引信并裁决对局：每次注册表变更后重新评判，决出后停止对局
func (g *Game) referee(ctx context.Context, started int, stop context.CancelFunc) error {
	interval := g.reg.Rules().TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		count, alive, survivor := g.reg.Standing()
		if res, ok := judge(count, alive, survivor, started, g.reg.Rules().EndOnLastSurvivor); ok {
			if g.decide(res) {
				Log.Infof("game decided: %s %s", res.Outcome, res.Winner)
			}
			stop()
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-g.reg.Changes():
		case <-ticker.C:
			if res, ok := g.reg.Tick(); ok {
				Log.Infof("BOMB EXPLODED, %s is out", res.Eliminated)
				if res.NewHolder != "" {
					Log.Infof("%s now holds the bomb", res.NewHolder)
				}
			}
		}
	}
}

// judge 根据局势给出结果；单人开局不会因只剩一人而获胜
func judge(count, alive int, survivor string, started int, endOnLastSurvivor bool) (Result, bool) {
	switch {
	case count == 0:
		return Result{Outcome: OutcomeAbandoned, Players: started}, true
	case alive == 0:
		return Result{Outcome: OutcomeNoSurvivors, Players: started}, true
	case alive == 1 && started >= 2 && endOnLastSurvivor:
		return Result{Outcome: OutcomeWinner, Winner: survivor, Players: started}, true
	}
	return Result{}, false
}
