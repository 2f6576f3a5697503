package server

import (
	"net"

	"chasingyou/protocol"

	"github.com/google/uuid"
)

// Direction 移动方向（服务端权威解释客户端“意图”）
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return protocol.DirUp
	case DirDown:
		return protocol.DirDown
	case DirLeft:
		return protocol.DirLeft
	case DirRight:
		return protocol.DirRight
	default:
		return "none"
	}
}

// Player 玩家实体（服务端权威状态）。
// ID、Name、Sprite 创建后不变，其余字段只在注册表锁内读写
type Player struct {
	ID      string
	Name    string
	Sprite  string
	X       int
	Y       int
	Alive   bool
	HasBomb bool
}

func (p *Player) State() protocol.PlayerState {
	return protocol.PlayerState{
		ID:      p.ID,
		Name:    p.Name,
		Sprite:  p.Sprite,
		X:       p.X,
		Y:       p.Y,
		Alive:   p.Alive,
		HasBomb: p.HasBomb,
	}
}

// PlayerEntry 玩家与其连接、对端地址的绑定，是注册表中的存储单元；
// Conn 只归该玩家的处理器使用
type PlayerEntry struct {
	Player Player
	Conn   net.Conn
	Addr   string
}

// NewPlayerEntry 创建存活玩家并分配新 ID
func NewPlayerEntry(name, sprite string, x, y int, conn net.Conn) *PlayerEntry {
	e := &PlayerEntry{
		Player: Player{
			ID:     uuid.New().String(),
			Name:   name,
			Sprite: sprite,
			X:      x,
			Y:      y,
			Alive:  true,
		},
		Conn: conn,
	}
	if conn != nil && conn.RemoteAddr() != nil {
		e.Addr = conn.RemoteAddr().String()
	}
	return e
}

func (e *PlayerEntry) ID() string   { return e.Player.ID }
func (e *PlayerEntry) Name() string { return e.Player.Name }
