package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge 帧头声明的长度超过读取上限
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// ErrEmptyFrame 零长度帧
var ErrEmptyFrame = errors.New("protocol: empty frame")

func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("protocol: encode envelope without type")
	}
	if payload == nil {
		return nil, fmt.Errorf("protocol: encode nil payload for %q", t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("protocol: envelope without type")
	}
	return e, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("protocol: empty payload for type %q", env.T)
	}
	err := json.Unmarshal(env.P, &out)
	return out, err
}

// WriteFrame 写出带长度前缀的一帧；帧头与负载一次 Write 写出
func WriteFrame(w io.Writer, b []byte) error {
	if len(b) == 0 {
		return ErrEmptyFrame
	}
	buf := make([]byte, HeaderSize+len(b))
	binary.BigEndian.PutUint32(buf, uint32(len(b)))
	copy(buf[HeaderSize:], b)
	_, err := w.Write(buf)
	return err
}

// ReadFrame 读取一帧。帧头之前的正常 EOF 返回 io.EOF，
// 帧中途断开返回 io.ErrUnexpectedEOF
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxFrame
	}
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if n > uint32(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// Send 编码为 t 类型信封并作为一帧写出
func Send(w io.Writer, t string, payload any) error {
	b, err := Encode(t, payload)
	if err != nil {
		return err
	}
	return WriteFrame(w, b)
}

// Receive 读取一帧并解出信封
func Receive(r io.Reader, max int) (Envelope, error) {
	b, err := ReadFrame(r, max)
	if err != nil {
		return Envelope{}, err
	}
	return DecodeEnvelope(b)
}
