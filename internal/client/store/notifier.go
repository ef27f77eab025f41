package store

import "sync"

// Notifier is an explicit publish/subscribe registry keyed by table name.
// Its lifetime is scoped to the Store instance; there is no global bus.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription
}

// Subscription delivers a signal whenever a commit touches one of the
// subscribed tables. Signals are coalesced: a slow consumer sees at least
// one signal for any number of commits since its last read.
type Subscription struct {
	id     int
	tables map[string]struct{}
	ch     chan struct{}

	n    *Notifier
	once sync.Once
}

// C is the signal channel. It is closed when the subscription is closed.
func (s *Subscription) C() <-chan struct{} { return s.ch }

// Close removes the subscription from the registry and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.n.mu.Lock()
		delete(s.n.subs, s.id)
		s.n.mu.Unlock()
		close(s.ch)
	})
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]*Subscription)}
}

// Subscribe registers interest in the given tables. With no tables the
// subscription matches every commit.
func (n *Notifier) Subscribe(tables ...string) *Subscription {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &Subscription{id: n.nextID, tables: set, ch: make(chan struct{}, 1), n: n}
	n.subs[sub.id] = sub
	return sub
}

// Publish signals every subscription overlapping the touched tables.
// It never blocks: a signal already pending on a subscription stands in
// for this one.
func (n *Notifier) Publish(tables ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subs {
		if !sub.matches(tables) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// CloseAll closes every active subscription.
func (n *Notifier) CloseAll() {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (s *Subscription) matches(tables []string) bool {
	if len(s.tables) == 0 {
		return true
	}
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}
