package sink

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/exec-collector/pkg/execplugin"
	"github.com/exec-collector/pkg/logger"
)

// ErrQueueClosed Close 之后的 Dispatch 返回该错误
var ErrQueueClosed = errors.New("dispatch queue closed")

// Queue 把多个 worker 的 Dispatch 串行到单个 goroutine，用于非并发安全的 sink
type Queue struct {
	next execplugin.Sink
	ch   chan execplugin.ValueList

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewQueue 创建单写者队列，size 为缓冲长度
func NewQueue(next execplugin.Sink, size int) *Queue {
	if size < 0 {
		size = 0
	}
	q := &Queue{
		next: next,
		ch:   make(chan execplugin.ValueList, size),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for vl := range q.ch {
		if err := q.next.Dispatch(vl); err != nil {
			logger.Warn("sink dispatch failed",
				zap.String("type_instance", vl.Label),
				zap.Error(err))
		}
	}
}

// Dispatch 入队，缓冲满时阻塞
func (q *Queue) Dispatch(vl execplugin.ValueList) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.ch <- vl
	return nil
}

// Close 停止接收并等待已入队的值投递完成
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
	return nil
}
