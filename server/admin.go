package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// Admin 运维 HTTP 接口：热更新配置、指标、状态与观战
type Admin struct {
	cfg     *Config
	game    *Game
	reg     *Registry
	rate    *BroadcastRate
	metrics *Metrics
}

func NewAdmin(cfg *Config, game *Game, reg *Registry, br *BroadcastRate, metrics *Metrics) *Admin {
	return &Admin{cfg: cfg, game: game, reg: reg, rate: br, metrics: metrics}
}

func (a *Admin) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/config", a.HandleConfig)
	mux.HandleFunc("/metrics", a.HandleMetrics)
	mux.HandleFunc("/status", a.HandleStatus)
	mux.HandleFunc("/watch", a.HandleWatch)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// adminConfig 可热更新的配置项（字段缺省表示不修改）
type adminConfig struct {
	BroadcastIntervalMs *int64 `json:"broadcastIntervalMs,omitempty" validate:"omitempty,gte=0"`
	FuseMs              *int64 `json:"fuseMs,omitempty" validate:"omitempty,gte=0"`
	TagRadius           *int   `json:"tagRadius,omitempty" validate:"omitempty,gte=0"`
	PassCooldownMs      *int64 `json:"passCooldownMs,omitempty" validate:"omitempty,gte=0"`
}

// HandleConfig 读取或更新当前规则
// GET /admin/config  返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段
func (a *Admin) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules := a.reg.Rules()
		interval := a.rate.Interval().Milliseconds()
		fuse := rules.Fuse.Milliseconds()
		cooldown := rules.PassCooldown.Milliseconds()
		writeJSON(w, http.StatusOK, adminConfig{
			BroadcastIntervalMs: &interval,
			FuseMs:              &fuse,
			TagRadius:           &rules.TagRadius,
			PassCooldownMs:      &cooldown,
		})
	case http.MethodPost:
		var body adminConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := Validator().Struct(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.BroadcastIntervalMs != nil {
			a.rate.Set(time.Duration(*body.BroadcastIntervalMs) * time.Millisecond)
		}
		rules := a.reg.UpdateRules(func(rules *GameConfig) {
			if body.FuseMs != nil {
				rules.Fuse = time.Duration(*body.FuseMs) * time.Millisecond
			}
			if body.TagRadius != nil {
				rules.TagRadius = *body.TagRadius
			}
			if body.PassCooldownMs != nil {
				rules.PassCooldown = time.Duration(*body.PassCooldownMs) * time.Millisecond
			}
		})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		Log.Infof("config updated: broadcast=%s fuse=%s tagRadius=%d passCooldown=%s",
			a.rate.Interval(), rules.Fuse, rules.TagRadius, rules.PassCooldown)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出运行指标
// GET /metrics
func (a *Admin) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":   a.game.Phase().String(),
		"metrics": a.metrics.Snapshot(),
	})
}

// HandleStatus 输出阶段、结果（如已决出）与玩家列表
func (a *Admin) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot()
	res := a.game.Result()
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":   a.game.Phase().String(),
		"outcome": res.Outcome,
		"winner":  res.Winner,
		"seq":     snap.Seq,
		"players": snap.Players,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
