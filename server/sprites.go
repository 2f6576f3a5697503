package server

import (
	"math/rand/v2"
	"sync"
)

// SpritePool 分配外观标识，容量即玩家上限
type SpritePool struct {
	mu        sync.Mutex
	all       map[string]struct{}
	available []string
}

func NewSpritePool(sprites []string) *SpritePool {
	p := &SpritePool{all: make(map[string]struct{}, len(sprites))}
	for _, s := range sprites {
		if _, dup := p.all[s]; dup || s == "" {
			continue
		}
		p.all[s] = struct{}{}
		p.available = append(p.available, s)
	}
	return p
}

func (p *SpritePool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.available) == 0 {
		return "", ErrCapacityExceeded
	}
	i := rand.IntN(len(p.available))
	s := p.available[i]
	p.available[i] = p.available[len(p.available)-1]
	p.available = p.available[:len(p.available)-1]
	return s, nil
}

// Release 归还精灵；未知或已在池中的忽略
func (p *SpritePool) Release(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.all[s]; !ok {
		return
	}
	for _, a := range p.available {
		if a == s {
			return
		}
	}
	p.available = append(p.available, s)
}

func (p *SpritePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

func (p *SpritePool) Capacity() int {
	return len(p.all)
}
