package protocol

// 客户端 -> 服务端

// Join 握手消息，仅携带显示名
type Join struct {
	Name string `json:"name" validate:"required,min=1,max=20,printascii"`
}

// Move 移动意图；Seq 为客户端自增序号，服务端只记日志
type Move struct {
	Dir string `json:"dir" validate:"required,oneof=up down left right"`
	Seq int64  `json:"seq,omitempty" validate:"gte=0"`
}

// Ping 保活：静止不动的玩家靠它证明自己还在线
type Ping struct{}

// 服务端 -> 客户端

type Welcome struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Sprite string `json:"sprite"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type Reject struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// PlayerState 玩家的公开状态，广播给所有人
type PlayerState struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Sprite  string `json:"sprite"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Alive   bool   `json:"alive"`
	HasBomb bool   `json:"hasBomb"`
}

type State struct {
	Seq     uint64        `json:"seq"`
	Phase   string        `json:"phase"`
	Players []PlayerState `json:"players"`
}

type Finish struct {
	Outcome string `json:"outcome"`
	Winner  string `json:"winner,omitempty"`
}
