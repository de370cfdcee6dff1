// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Resolution 定时器扫描精度
const Resolution = 100 * time.Millisecond

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager 基于最小堆的定时器，按 Resolution 扫描到期任务
type TimerManager struct {
	clock  quartz.Clock
	queue  TimerQueue
	mutex  sync.Mutex
	nextId int64
	ticker *quartz.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewTimerManager starts a manager driven by clock. Pass quartz.NewReal() in
// production and a quartz mock in tests.
func NewTimerManager(clock quartz.Clock) *TimerManager {
	if clock == nil {
		clock = quartz.NewReal()
	}
	manager := &TimerManager{
		clock:  clock,
		queue:  make(TimerQueue, 0),
		nextId: 1,
		done:   make(chan struct{}),
	}
	heap.Init(&manager.queue)
	manager.ticker = clock.NewTicker(Resolution, "timer", "scan")
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay, then every interval if interval > 0.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  m.clock.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

// ResetTimer pushes a pending timer back to now+delay. It reports false when
// the timer already fired or was removed.
func (m *TimerManager) ResetTimer(timerId int64, delay time.Duration) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, task := range m.queue {
		if task.Id == timerId {
			task.Execute = m.clock.Now().Add(delay)
			heap.Fix(&m.queue, task.index)
			return true
		}
	}
	return false
}

func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.Id == timerId {
			heap.Remove(&m.queue, i)
			break
		}
	}
}

// Len returns the number of pending timers.
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop halts scanning. Pending timers never fire.
func (m *TimerManager) Stop() {
	m.once.Do(func() {
		close(m.done)
	})
}

func (m *TimerManager) process() {
	defer m.ticker.Stop()

	for {
		select {
		case <-m.ticker.C:
			for _, task := range m.due() {
				go task.Callback()
			}
		case <-m.done:
			return
		}
	}
}

func (m *TimerManager) due() []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.clock.Now()
	var fired []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		fired = append(fired, task)

		if task.Interval > 0 {
			next := *task
			next.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, &next)
		}
	}
	return fired
}
