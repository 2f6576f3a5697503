package server

import (
	"net/http"
	"time"

	"chasingyou/protocol"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 观战者都在局域网内
		return true
	},
}

// HandleWatch 向只读观战者推送状态，直到对局结束或观战者离开
// GET /watch
func (a *Admin) HandleWatch(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("watch upgrade: %v", err)
		return
	}
	defer ws.Close()

	// 观战者不发消息，读泵只用来发现断开
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadLimit(512)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := a.cfg.Admin.WatchInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	Log.Infof("spectator %s watching", r.RemoteAddr)

	for {
		phase := a.game.Phase()
		snap := a.reg.Snapshot()
		b, err := protocol.Encode(protocol.MsgState, protocol.State{
			Seq:     snap.Seq,
			Phase:   phase.String(),
			Players: snap.Players,
		})
		if err != nil {
			return
		}
		_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
		if phase == PhaseFinished {
			res := a.game.Result()
			fb, err := protocol.Encode(protocol.MsgFinish, protocol.Finish{Outcome: string(res.Outcome), Winner: res.Winner})
			if err == nil {
				_ = ws.WriteMessage(websocket.TextMessage, fb)
			}
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game finished"),
				time.Now().Add(time.Second))
			return
		}
		select {
		case <-gone:
			Log.Infof("spectator %s left", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
