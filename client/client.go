// Package client 玩家侧的最小客户端：加入对局并收发帧，渲染交给调用方。
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"chasingyou/protocol"
)

// DefaultKeepAlive 空闲时发送 ping 的间隔，需小于服务端读超时
const DefaultKeepAlive = 15 * time.Second

// RejectError 服务端拒绝加入
type RejectError struct {
	Code   string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("join rejected (%s): %s", e.Code, e.Reason)
}

type Client struct {
	conn     net.Conn
	maxFrame int
	Welcome  protocol.Welcome

	wmu       sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

type options struct {
	keepAlive time.Duration
}

type Option func(*options)

// WithKeepAlive 设置 ping 间隔，0 表示不发送
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}

// Dial 连接 addr 并以 name 加入
func Dial(ctx context.Context, addr, name string, opts ...Option) (*Client, error) {
	o := options{keepAlive: DefaultKeepAlive}
	for _, opt := range opts {
		opt(&o)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c := &Client{conn: conn, maxFrame: protocol.DefaultMaxFrame, done: make(chan struct{})}
	if err := protocol.Send(conn, protocol.MsgJoin, protocol.Join{Name: name}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	env, err := protocol.Receive(conn, c.maxFrame)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch env.T {
	case protocol.MsgWelcome:
		w, err := protocol.DecodePayload[protocol.Welcome](env)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		c.Welcome = w
	case protocol.MsgReject:
		_ = conn.Close()
		rj, err := protocol.DecodePayload[protocol.Reject](env)
		if err != nil {
			return nil, err
		}
		return nil, &RejectError{Code: rj.Code, Reason: rj.Reason}
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected %q frame during join", env.T)
	}
	_ = conn.SetDeadline(time.Time{})
	if o.keepAlive > 0 {
		go c.keepAlive(o.keepAlive)
	}
	return c, nil
}

// keepAlive 定时发送 ping，直到 Close 或写失败
func (c *Client) keepAlive(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}

func (c *Client) Next() (protocol.Envelope, error) {
	return protocol.Receive(c.conn, c.maxFrame)
}

// NextState 跳过其他帧直到收到 state；收到 finish 时返回 *FinishedError
func (c *Client) NextState() (protocol.State, error) {
	for {
		env, err := c.Next()
		if err != nil {
			return protocol.State{}, err
		}
		switch env.T {
		case protocol.MsgState:
			return protocol.DecodePayload[protocol.State](env)
		case protocol.MsgFinish:
			f, err := protocol.DecodePayload[protocol.Finish](env)
			if err != nil {
				return protocol.State{}, fmt.Errorf("decode finish: %w", err)
			}
			return protocol.State{}, &FinishedError{Finish: f}
		}
	}
}

// FinishedError 携带结束 NextState 等待的 finish 帧
type FinishedError struct {
	Finish protocol.Finish
}

func (e *FinishedError) Error() string {
	return fmt.Sprintf("game finished: %s %s", e.Finish.Outcome, e.Finish.Winner)
}

func (c *Client) Move(dir string, seq int64) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return protocol.Send(c.conn, protocol.MsgMove, protocol.Move{Dir: dir, Seq: seq})
}

// Ping 发送一次保活帧
func (c *Client) Ping() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return protocol.Send(c.conn, protocol.MsgPing, protocol.Ping{})
}

// SetDeadline 同时约束读和写
func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}
