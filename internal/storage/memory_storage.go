package storage

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
)

// MemoryStorage keeps every record in process memory. Update runs against a
// staged copy of the state that replaces the live state only when fn
// succeeds.
type MemoryStorage struct {
	mu    sync.RWMutex
	state *memoryState
}

type memoryState struct {
	raffles     map[Address]*Raffle
	tickets     map[Address]*Ticket
	slots       map[Address]*Slots
	events      []*Event
	cursors     map[string]uint64
	parked      map[parkedKey]ParkedEvent
	nonces      map[nonceKey]int64
	obligations map[string]*RefundObligation
	seq         uint64
}

type parkedKey struct {
	consumer string
	seq      uint64
}

type nonceKey struct {
	holder Address
	nonce  string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		state: &memoryState{
			raffles:     make(map[Address]*Raffle),
			tickets:     make(map[Address]*Ticket),
			slots:       make(map[Address]*Slots),
			cursors:     make(map[string]uint64),
			parked:      make(map[parkedKey]ParkedEvent),
			nonces:      make(map[nonceKey]int64),
			obligations: make(map[string]*RefundObligation),
		},
	}
}

func (s *memoryState) stage() *memoryState {
	return &memoryState{
		raffles:     maps.Clone(s.raffles),
		tickets:     maps.Clone(s.tickets),
		slots:       maps.Clone(s.slots),
		events:      slices.Clone(s.events),
		cursors:     maps.Clone(s.cursors),
		parked:      maps.Clone(s.parked),
		nonces:      maps.Clone(s.nonces),
		obligations: maps.Clone(s.obligations),
		seq:         s.seq,
	}
}

func (m *MemoryStorage) Update(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := m.state.stage()
	if err := fn(&memoryTx{state: staged}); err != nil {
		return err
	}

	m.state = staged
	return nil
}

func (m *MemoryStorage) View(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	// Writes made during a view are discarded.
	return fn(&memoryTx{state: m.state.stage()})
}

func (m *MemoryStorage) Close() error {
	return nil
}

// memoryTx stores clones so callers never share records with the state.
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetRaffle(id Address) (*Raffle, error) {
	raffle, ok := t.state.raffles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return raffle.clone(), nil
}

func (t *memoryTx) CreateRaffle(raffle *Raffle) error {
	if _, ok := t.state.raffles[raffle.ID]; ok {
		return ErrAlreadyExists
	}
	t.state.raffles[raffle.ID] = raffle.clone()
	return nil
}

func (t *memoryTx) SaveRaffle(raffle *Raffle) error {
	t.state.raffles[raffle.ID] = raffle.clone()
	return nil
}

func (t *memoryTx) ListRafflesByStatus(status RaffleStatus, limit int) ([]*Raffle, error) {
	var raffles []*Raffle
	for _, raffle := range t.state.raffles {
		if raffle.Status == status {
			raffles = append(raffles, raffle.clone())
		}
	}

	sort.Slice(raffles, func(i, j int) bool {
		if raffles[i].OpenedAt != raffles[j].OpenedAt {
			return raffles[i].OpenedAt < raffles[j].OpenedAt
		}
		return raffles[i].ID.String() < raffles[j].ID.String()
	})
	return truncate(raffles, limit), nil
}

func (t *memoryTx) GetTicket(id Address) (*Ticket, error) {
	ticket, ok := t.state.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.clone(), nil
}

func (t *memoryTx) CreateTicket(ticket *Ticket) error {
	if _, ok := t.state.tickets[ticket.ID]; ok {
		return ErrAlreadyExists
	}
	t.state.tickets[ticket.ID] = ticket.clone()
	return nil
}

func (t *memoryTx) SaveTicket(ticket *Ticket) error {
	t.state.tickets[ticket.ID] = ticket.clone()
	return nil
}

func (t *memoryTx) ListTickets(raffle Address) ([]*Ticket, error) {
	var tickets []*Ticket
	for _, ticket := range t.state.tickets {
		if ticket.Raffle == raffle {
			tickets = append(tickets, ticket.clone())
		}
	}

	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].Start < tickets[j].Start
	})
	return tickets, nil
}

func (t *memoryTx) GetSlots(id Address) (*Slots, error) {
	slots, ok := t.state.slots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slots.clone(), nil
}

func (t *memoryTx) SaveSlots(slots *Slots) error {
	t.state.slots[slots.ID] = slots.clone()
	return nil
}

func (t *memoryTx) AppendEvent(event *Event) error {
	t.state.seq++
	event.Seq = t.state.seq
	t.state.events = append(t.state.events, event.clone())
	return nil
}

func (t *memoryTx) GetEvent(seq uint64) (*Event, error) {
	index := sort.Search(len(t.state.events), func(i int) bool {
		return t.state.events[i].Seq >= seq
	})
	if index == len(t.state.events) || t.state.events[index].Seq != seq {
		return nil, ErrNotFound
	}
	return t.state.events[index].clone(), nil
}

func (t *memoryTx) ListEvents(afterSeq uint64, limit int) ([]*Event, error) {
	index := sort.Search(len(t.state.events), func(i int) bool {
		return t.state.events[i].Seq > afterSeq
	})

	var events []*Event
	for _, event := range t.state.events[index:] {
		events = append(events, event.clone())
	}
	return truncate(events, limit), nil
}

func (t *memoryTx) GetEventCursor(consumer string) (uint64, error) {
	return t.state.cursors[consumer], nil
}

func (t *memoryTx) SaveEventCursor(cursor *EventCursor) error {
	t.state.cursors[cursor.Consumer] = cursor.Seq
	return nil
}

func (t *memoryTx) ParkEvent(parked *ParkedEvent) error {
	t.state.parked[parkedKey{parked.Consumer, parked.Seq}] = *parked
	return nil
}

func (t *memoryTx) ListParkedEvents(consumer string, limit int) ([]*ParkedEvent, error) {
	var parked []*ParkedEvent
	for key, event := range t.state.parked {
		if key.consumer == consumer {
			parked = append(parked, &event)
		}
	}

	sort.Slice(parked, func(i, j int) bool {
		return parked[i].Seq < parked[j].Seq
	})
	return truncate(parked, limit), nil
}

func (t *memoryTx) DeleteParkedEvent(consumer string, seq uint64) error {
	delete(t.state.parked, parkedKey{consumer, seq})
	return nil
}

func (t *memoryTx) ConsumeNonce(nonce *ConsumedNonce) error {
	key := nonceKey{nonce.Holder, nonce.Nonce}
	if _, ok := t.state.nonces[key]; ok {
		return ErrNonceConsumed
	}
	t.state.nonces[key] = nonce.Expiry
	return nil
}

func (t *memoryTx) DeleteExpiredNonces(now int64) (int64, error) {
	var deleted int64
	for key, expiry := range t.state.nonces {
		if expiry <= now {
			delete(t.state.nonces, key)
			deleted++
		}
	}
	return deleted, nil
}

func (t *memoryTx) CreateObligation(obligation *RefundObligation) error {
	if _, ok := t.state.obligations[obligation.ID]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range t.state.obligations {
		if existing.Ticket == obligation.Ticket {
			return ErrAlreadyExists
		}
	}
	t.state.obligations[obligation.ID] = obligation.clone()
	return nil
}

func (t *memoryTx) GetObligation(id string) (*RefundObligation, error) {
	obligation, ok := t.state.obligations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return obligation.clone(), nil
}

func (t *memoryTx) SaveObligation(obligation *RefundObligation) error {
	t.state.obligations[obligation.ID] = obligation.clone()
	return nil
}

func (t *memoryTx) ListPendingObligations(limit int) ([]*RefundObligation, error) {
	var obligations []*RefundObligation
	for _, obligation := range t.state.obligations {
		if !obligation.Fulfilled {
			obligations = append(obligations, obligation.clone())
		}
	}

	sort.Slice(obligations, func(i, j int) bool {
		if obligations[i].RequestedAt != obligations[j].RequestedAt {
			return obligations[i].RequestedAt < obligations[j].RequestedAt
		}
		return obligations[i].ID < obligations[j].ID
	})
	return truncate(obligations, limit), nil
}

func truncate[T any](records []T, limit int) []T {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
