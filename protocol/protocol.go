// Package protocol 定义服务端与客户端共用的线路格式：
// 长度前缀帧中承载的 JSON 信封。
package protocol

import "encoding/json"

// 信封类型
const (
	MsgJoin    = "join"
	MsgMove    = "move"
	MsgPing    = "ping"
	MsgWelcome = "welcome"
	MsgReject  = "reject"
	MsgState   = "state"
	MsgFinish  = "finish"
)

// 拒绝加入时返回给客户端的原因码
const (
	RejectCapacity     = "capacity"
	RejectNameTaken    = "name_taken"
	RejectInvalidName  = "invalid_name"
	RejectIntakeClosed = "intake_closed"
)

const (
	DirUp    = "up"
	DirDown  = "down"
	DirLeft  = "left"
	DirRight = "right"
)

// HeaderSize 帧头：4 字节大端长度
const HeaderSize = 4

// DefaultMaxFrame 单帧负载上限
const DefaultMaxFrame = 64 << 10

type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"` // 原始负载
}
