// room/room.go
package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
)

// 事件名，传输层据此映射消息号
const (
	EventRoomUpdated      = "roomUpdated"
	EventGameStarted      = "gameStarted"
	EventGameStateUpdated = "gameStateUpdated"
	EventLiarResult       = "liarResult"
	EventRouletteResult   = "rouletteResult"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// ErrRoomClosed is returned for operations on a closed room.
var ErrRoomClosed = apperr.New(apperr.KindRoomNotFound, "room is closed")

var errRoomBusy = apperr.New(apperr.KindInvalidRequest, "room has subscribers")

// Event is a domain event produced by a mutation.
type Event struct {
	Name string
	Data interface{}
}

// Update is one committed change as seen by subscribers. Room is an immutable
// snapshot and must not be modified.
type Update struct {
	Seq    uint64
	RoomID string
	Room   *models.GameRoom
	Events []Event
}

// Mutation edits a working copy of the room. Returning an error discards the
// copy. Returning no events and no error means nothing changed.
type Mutation func(r *models.GameRoom) ([]Event, error)

type commandKind int

const (
	cmdMutate commandKind = iota
	cmdSubscribe
	cmdUnsubscribe
	cmdCloseIfIdle
)

type command struct {
	kind   commandKind
	mutate Mutation
	subID  string
	subCh  chan Update
	resp   chan error
}

// Options configures a room actor.
type Options struct {
	Saver    Saver
	Buffer   int
	Observer Observer
	// OnIdle runs on the actor goroutine when the last subscriber leaves, and
	// OnActive when the first one arrives. Neither may call back into the room.
	OnIdle   func(roomID string)
	OnActive func(roomID string)
}

// Room 房间执行体：一个 goroutine 独占房间状态，所有修改经命令通道串行执行
type Room struct {
	id       string
	opts     Options
	snapshot atomic.Pointer[models.GameRoom]
	seq      atomic.Uint64
	subCount atomic.Int32

	// owned by the actor goroutine
	subscribers map[string]chan Update
	failed      error

	cmdCh     chan command
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewRoom takes ownership of r and starts its actor.
func NewRoom(r *models.GameRoom, opts Options) *Room {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	room := &Room{
		id:          r.ID,
		opts:        opts,
		subscribers: make(map[string]chan Update),
		cmdCh:       make(chan command, 16),
		closeChan:   make(chan struct{}),
	}
	room.snapshot.Store(r)
	go room.loop()
	return room
}

// GetID 返回房间ID
func (r *Room) GetID() string {
	return r.id
}

// Snapshot returns the last committed state. The result is shared and must be
// treated as read-only.
func (r *Room) Snapshot() *models.GameRoom {
	return r.snapshot.Load()
}

// Seq returns the sequence number of the last committed update.
func (r *Room) Seq() uint64 {
	return r.seq.Load()
}

// SubscriberCount returns the number of live subscriptions.
func (r *Room) SubscriberCount() int {
	return int(r.subCount.Load())
}

// Do runs m with exclusive access to the room. ctx only bounds the wait: a
// mutation that was admitted runs to completion even if ctx ends.
func (r *Room) Do(ctx context.Context, m Mutation) error {
	return r.send(ctx, command{kind: cmdMutate, mutate: m, resp: make(chan error, 1)})
}

// Subscribe registers id for updates, replacing any earlier subscription with
// the same id. The current snapshot is delivered first. The channel is closed
// on Unsubscribe or when the room closes.
func (r *Room) Subscribe(ctx context.Context, id string) (<-chan Update, error) {
	ch := make(chan Update, r.opts.Buffer)
	if err := r.send(ctx, command{kind: cmdSubscribe, subID: id, subCh: ch, resp: make(chan error, 1)}); err != nil {
		return nil, err
	}
	return ch, nil
}

// Unsubscribe removes id. Unknown ids are ignored.
func (r *Room) Unsubscribe(ctx context.Context, id string) error {
	return r.send(ctx, command{kind: cmdUnsubscribe, subID: id, resp: make(chan error, 1)})
}

// Err returns the fatal error that stopped the room, if any.
func (r *Room) Err() error {
	resp := make(chan error, 1)
	err := r.send(context.Background(), command{kind: cmdMutate, resp: resp})
	if err == ErrRoomClosed {
		return nil
	}
	return err
}

// CloseIfIdle closes the room when nobody is subscribed. The check and the
// close happen on the actor, so a concurrent Subscribe either lands first and
// keeps the room open or fails with ErrRoomClosed.
func (r *Room) CloseIfIdle() bool {
	err := r.send(context.Background(), command{kind: cmdCloseIfIdle, resp: make(chan error, 1)})
	return err == nil || err == ErrRoomClosed
}

// Close stops the actor. Subscribers see their channels closed.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.closeChan)
	})
}

func (r *Room) send(ctx context.Context, cmd command) error {
	select {
	case r.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closeChan:
		return ErrRoomClosed
	}
	select {
	case err := <-cmd.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closeChan:
		return ErrRoomClosed
	}
}

// loop 房间主循环
func (r *Room) loop() {
	defer r.closeSubscribers()
	for {
		select {
		case cmd := <-r.cmdCh:
			select {
			case <-r.closeChan:
				cmd.resp <- ErrRoomClosed
				return
			default:
			}
			cmd.resp <- r.handleCommand(cmd)
		case <-r.closeChan:
			return
		}
	}
}

func (r *Room) handleCommand(cmd command) error {
	switch cmd.kind {
	case cmdSubscribe:
		if old, ok := r.subscribers[cmd.subID]; ok {
			close(old)
		}
		r.subscribers[cmd.subID] = cmd.subCh
		r.setSubCount()
		cmd.subCh <- Update{Seq: r.seq.Load(), RoomID: r.id, Room: r.snapshot.Load()}
		if len(r.subscribers) == 1 && r.opts.OnActive != nil {
			r.opts.OnActive(r.id)
		}
		return nil
	case cmdUnsubscribe:
		ch, ok := r.subscribers[cmd.subID]
		if !ok {
			return nil
		}
		delete(r.subscribers, cmd.subID)
		close(ch)
		r.setSubCount()
		if len(r.subscribers) == 0 && r.opts.OnIdle != nil {
			r.opts.OnIdle(r.id)
		}
		return nil
	case cmdCloseIfIdle:
		if len(r.subscribers) > 0 {
			return errRoomBusy
		}
		r.Close()
		return nil
	default:
		if cmd.mutate == nil {
			return r.failed
		}
		return r.apply(cmd.mutate)
	}
}

func (r *Room) apply(m Mutation) error {
	if r.failed != nil {
		return r.failed
	}

	work := r.snapshot.Load().Clone()
	events, err := safeRun(m, work)
	if err != nil {
		if apperr.IsFatal(err) {
			r.failed = err
			logger.Log.Errorf("room %s failed: %v", r.id, err)
		}
		return err
	}
	if len(events) == 0 {
		return nil
	}

	seq := r.seq.Load() + 1
	r.snapshot.Store(work)
	r.seq.Store(seq)

	if r.opts.Saver != nil {
		if err := r.opts.Saver.SaveRoom(work); err != nil {
			logger.Log.Errorf("room %s: persist seq %d: %v", r.id, seq, err)
		}
	}
	r.publish(Update{Seq: seq, RoomID: r.id, Room: work, Events: events})
	return nil
}

func safeRun(m Mutation, work *models.GameRoom) (events []Event, err error) {
	defer func() {
		if p := recover(); p != nil {
			events = nil
			err = apperr.New(apperr.KindInternal, fmt.Sprint("mutation panicked: ", p))
		}
	}()
	return m(work)
}

// publish delivers u to every subscriber. A full queue drops its oldest entry
// so the newest update always gets through.
func (r *Room) publish(u Update) {
	for id, ch := range r.subscribers {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
			r.opts.Observer.IncDroppedUpdates()
			logger.Log.Debugf("room %s: subscriber %s is slow, dropped an update", r.id, id)
		default:
		}
		select {
		case ch <- u:
		default:
			logger.Log.Warnf("room %s: could not deliver seq %d to %s", r.id, u.Seq, id)
		}
	}
}

func (r *Room) setSubCount() {
	r.subCount.Store(int32(len(r.subscribers)))
}

func (r *Room) closeSubscribers() {
	for id, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, id)
	}
	r.setSubCount()
}
