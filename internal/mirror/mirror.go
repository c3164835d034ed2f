package mirror

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Record is the durable view of one room member. The coordinator stores and
// forwards the game fields without interpreting them.
type Record struct {
	Username     string `json:"username"`
	Captain      bool   `json:"captain"`
	ConnectionID string `json:"connectionId,omitempty"`
	Score        int    `json:"score"`
	AnswerOrder  int    `json:"answerOrder"`
	Active       bool   `json:"active"`
}

// Store is a best-effort durable copy of room membership. Failures are logged
// and swallowed; in-memory state stays authoritative.
type Store interface {
	Put(ctx context.Context, roomID, username string, rec Record) error
	Delete(ctx context.Context, roomID, username string) error
	Clear(ctx context.Context) error
}

const writeTimeout = 1500 * time.Millisecond

type opKind int

const (
	opPut opKind = iota
	opDelete
)

type op struct {
	kind     opKind
	roomID   string
	username string
	rec      Record
}

// Writer decouples mirror I/O from the mutation path: ops go into a bounded
// queue drained by one background goroutine. Enqueueing never blocks; when
// the queue is full the op is dropped and logged.
type Writer struct {
	store Store
	ops   chan op
}

func NewWriter(store Store, queueSize int) *Writer {
	return &Writer{store: store, ops: make(chan op, queueSize)}
}

// Run drains the queue until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case o := <-w.ops:
				w.apply(ctx, o)
			}
		}
	}()
}

func (w *Writer) apply(ctx context.Context, o op) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var err error
	switch o.kind {
	case opPut:
		err = w.store.Put(ctx, o.roomID, o.username, o.rec)
	case opDelete:
		err = w.store.Delete(ctx, o.roomID, o.username)
	}
	if err != nil {
		zap.L().Warn("mirror.write_failed",
			zap.String("room_id", o.roomID),
			zap.String("username", o.username),
			zap.Error(err))
	}
}

func (w *Writer) Put(roomID, username string, rec Record) {
	w.enqueue(op{kind: opPut, roomID: roomID, username: username, rec: rec})
}

func (w *Writer) Delete(roomID, username string) {
	w.enqueue(op{kind: opDelete, roomID: roomID, username: username})
}

func (w *Writer) enqueue(o op) {
	select {
	case w.ops <- o:
	default:
		zap.L().Warn("mirror.queue_full",
			zap.String("room_id", o.roomID),
			zap.String("username", o.username))
	}
}
