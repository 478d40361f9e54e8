package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "dispatcher")

// Dispatcher fans a single upstream event subscription out to every active,
// non-disabled worker whose market/account matches. Delivery per worker is
// serial: a handler runs to completion before the worker sees the next
// event. One slow worker never blocks another.
type Dispatcher struct {
	mu      sync.RWMutex
	workers []*workerLoop
	wg      sync.WaitGroup
}

type workerLoop struct {
	w  Worker
	ch chan Event
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a worker and starts its delivery loop.
func (d *Dispatcher) Register(ctx context.Context, w Worker) {
	wl := &workerLoop{w: w, ch: make(chan Event, 64)}
	d.mu.Lock()
	d.workers = append(d.workers, wl)
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-wl.ch:
				d.deliver(wl.w, ev)
			}
		}
	}()
}

// Dispatch routes one upstream event in arrival order.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, wl := range d.workers {
		w := wl.w
		if w.Disabled() {
			continue
		}
		switch ev.Kind {
		case KindMarket:
			if ev.Market != "" && ev.Market != w.MarketSymbol() {
				continue
			}
		case KindAccount:
			if ev.Account != "" && ev.Account != w.Account() {
				continue
			}
		}
		select {
		case wl.ch <- ev:
		default:
			// queue full: the worker is behind; dropping is safe because
			// every maintenance pass re-reads full state from the ledger
			log.Warnf("worker %s event queue full, dropping %s", w.Name(), ev.Kind)
		}
	}
}

// deliver 是每个 worker 的派发边界：worker 内部的意外 panic 在这里被吸收，
// 不会传播到其他 worker 或整个进程。
func (d *Dispatcher) deliver(w Worker, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"worker":  w.Name(),
				"market":  w.MarketSymbol(),
				"account": w.Account(),
			}).Errorf("panic in %s handler: %v", ev.Kind, r)
		}
	}()
	switch ev.Kind {
	case KindBlock:
		w.OnBlock(ev.Height)
	case KindMarket:
		w.OnMarketUpdate()
	case KindAccount:
		w.OnAccountUpdate()
	}
}

// Wait blocks until all delivery loops exit (after ctx cancellation).
func (d *Dispatcher) Wait() { d.wg.Wait() }

// AccountLocks serializes ledger-mutating calls per account so two workers
// sharing one account never interleave half-applied batches. Keyed by
// account, not global.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*sync.Mutex)}
}

func (a *AccountLocks) Get(account string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[account]
	if !ok {
		l = &sync.Mutex{}
		a.locks[account] = l
	}
	return l
}
