package server

import (
	"fmt"
	"strings"
	"sync"

	"chasingyou/protocol"

	"github.com/go-playground/validator/v10"
)

// Input 客户端输入（意图），由接收循环写入注册表
type Input struct {
	PlayerID string
	Command  Direction
	Seq      int64 // 客户端序号，只写入调试日志
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator 共享的校验器单例
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// parseJoin 取出并校验 join 消息中的显示名
func parseJoin(env protocol.Envelope) (string, error) {
	if env.T != protocol.MsgJoin {
		return "", fmt.Errorf("%w: expected %q, got %q", ErrJoin, protocol.MsgJoin, env.T)
	}
	req, err := protocol.DecodePayload[protocol.Join](env)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrJoin, err)
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := Validator().Struct(req); err != nil {
		return "", fmt.Errorf("%w: invalid name %q: %v", ErrJoin, req.Name, err)
	}
	return req.Name, nil
}

func parseMove(playerID string, env protocol.Envelope) (Input, error) {
	mv, err := protocol.DecodePayload[protocol.Move](env)
	if err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	mv.Dir = strings.ToLower(mv.Dir)
	if err := Validator().Struct(mv); err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	var dir Direction
	switch mv.Dir {
	case protocol.DirUp:
		dir = DirUp
	case protocol.DirDown:
		dir = DirDown
	case protocol.DirLeft:
		dir = DirLeft
	case protocol.DirRight:
		dir = DirRight
	}
	return Input{PlayerID: playerID, Command: dir, Seq: mv.Seq}, nil
}
