package cartstore

import (
	"sync"
	"time"
)

// Item is one line in a buyer's in-progress selection, carrying the
// denormalized display fields the storefront renders without a round-trip.
type Item struct {
	ProductID         string  `json:"productId"`
	Title             string  `json:"title"`
	Price             float64 `json:"price"`
	ImageURL          string  `json:"imageUrl"`
	Size              string  `json:"size"`
	Condition         string  `json:"condition"`
	SellerID          string  `json:"sellerId"`
	SellerName        string  `json:"sellerName"`
	Quantity          int     `json:"quantity"`
	AvailableQuantity int     `json:"availableQuantity,omitempty"`
	Status            string  `json:"status,omitempty"`
}

// Message mirrors the full cart state to sibling replicas of the same user.
type Message struct {
	Type      string `json:"type"`
	Items     []Item `json:"items"`
	Seq       uint64 `json:"seq"`
	Replica   string `json:"replica"`
	Timestamp int64  `json:"timestamp"`
}

const MessageTypeCartUpdated = "CART_UPDATED"

// Bus carries cart state between replicas. Delivery is best-effort; the
// store is a convenience mirror, not a source of truth.
type Bus interface {
	Publish(msg Message)
	Subscribe(fn func(Message)) (cancel func())
}

// Snapshotter persists the cart between sessions.
type Snapshotter interface {
	Save(msg Message) error
	Load() (Message, bool, error)
}

type Option func(*Store)

func WithBus(b Bus) Option {
	return func(s *Store) { s.bus = b }
}

func WithSnapshotter(sn Snapshotter) Option {
	return func(s *Store) { s.snap = sn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store holds one replica's view of the cart. Replicas of the same user
// converge via last-writer-wins ordered by a monotonic sequence number,
// with the wall clock only as a tiebreak.
type Store struct {
	mu      sync.Mutex
	replica string
	seq     uint64
	stamp   int64
	items   []Item

	bus    Bus
	snap   Snapshotter
	now    func() time.Time
	unsub  func()
	closed bool
}

func New(replica string, opts ...Option) (*Store, error) {
	s := &Store{
		replica: replica,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.snap != nil {
		msg, ok, err := s.snap.Load()
		if err != nil {
			return nil, err
		}
		if ok {
			s.items = msg.Items
			s.seq = msg.Seq
			s.stamp = msg.Timestamp
		}
	}

	if s.bus != nil {
		s.unsub = s.bus.Subscribe(s.receive)
	}
	return s, nil
}

func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// AddItem appends the item with quantity 1, or bumps the quantity of an
// existing line. Growth is clamped to AvailableQuantity when known; there
// is no error path.
func (s *Store) AddItem(item Item) {
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ProductID == item.ProductID {
				next := s.items[i].Quantity + 1
				if avail := s.items[i].AvailableQuantity; avail > 0 && next > avail {
					next = avail
				}
				s.items[i].Quantity = next
				return
			}
		}
		item.Quantity = 1
		if item.AvailableQuantity > 0 && item.Quantity > item.AvailableQuantity {
			item.Quantity = item.AvailableQuantity
		}
		s.items = append(s.items, item)
	})
}

func (s *Store) RemoveItem(productID string) {
	s.mutate(func() {
		s.removeLocked(productID)
	})
}

// UpdateQuantity sets the line's quantity, clamped to AvailableQuantity
// when known. A quantity of zero or less removes the line.
func (s *Store) UpdateQuantity(productID string, quantity int) {
	s.mutate(func() {
		if quantity <= 0 {
			s.removeLocked(productID)
			return
		}
		for i := range s.items {
			if s.items[i].ProductID == productID {
				if avail := s.items[i].AvailableQuantity; avail > 0 && quantity > avail {
					quantity = avail
				}
				s.items[i].Quantity = quantity
				return
			}
		}
	})
}

func (s *Store) Clear() {
	s.mutate(func() {
		s.items = nil
	})
}

func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, it := range s.items {
		total += it.Quantity
	}
	return total
}

func (s *Store) TotalPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0.0
	for _, it := range s.items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

func (s *Store) removeLocked(productID string) {
	kept := s.items[:0]
	for _, it := range s.items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	s.items = kept
}

// mutate runs fn under the lock, bumps the sequence number, then snapshots
// and broadcasts the new state outside the lock.
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.seq++
	s.stamp = s.now().UnixMilli()
	msg := Message{
		Type:      MessageTypeCartUpdated,
		Items:     cloneItems(s.items),
		Seq:       s.seq,
		Replica:   s.replica,
		Timestamp: s.stamp,
	}
	bus, snap := s.bus, s.snap
	s.mu.Unlock()

	if snap != nil {
		_ = snap.Save(msg)
	}
	if bus != nil {
		bus.Publish(msg)
	}
}

// receive applies an incoming broadcast if it is strictly newer than the
// local state: higher sequence number first, later timestamp as tiebreak.
func (s *Store) receive(msg Message) {
	if msg.Type != MessageTypeCartUpdated || msg.Replica == s.replica {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if msg.Seq < s.seq || (msg.Seq == s.seq && msg.Timestamp <= s.stamp) {
		s.mu.Unlock()
		return
	}
	s.items = cloneItems(msg.Items)
	s.seq = msg.Seq
	s.stamp = msg.Timestamp
	snap := s.snap
	s.mu.Unlock()

	if snap != nil {
		_ = snap.Save(msg)
	}
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
