package server

import "errors"

var (
	// ErrBind 监听地址不可用，致命
	ErrBind = errors.New("cannot bind listening endpoint")
	// ErrJoin 握手失败
	ErrJoin = errors.New("join failed")
	// ErrPeerDisconnected 对端断开
	ErrPeerDisconnected = errors.New("peer disconnected")
	// ErrCapacityExceeded 精灵池已空
	ErrCapacityExceeded = errors.New("player capacity exceeded")
	// ErrOperatorAbort 管理员中止了对局
	ErrOperatorAbort = errors.New("operator abort")

	ErrNameTaken     = errors.New("name already taken")
	ErrSpriteTaken   = errors.New("sprite already in use")
	ErrIntakeClosed  = errors.New("intake closed")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrInvalidIntent = errors.New("invalid intent")
)
