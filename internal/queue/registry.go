package queue

import (
	"context"
	"playstats_backend/internal/model"
	"sync"
)

// Handler 处理一种消息类型。同一 payload 可能被执行多次，实现必须幂等
type Handler interface {
	Handle(ctx context.Context, msg *model.QueueMessage) error
}

type HandlerFunc func(ctx context.Context, msg *model.QueueMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg *model.QueueMessage) error {
	return f(ctx, msg)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(msgType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = h
}

func (r *Registry) Get(msgType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[msgType]
	return h, ok
}
