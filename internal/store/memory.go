// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/rainbowcity/dialogue/internal/types"
)

// omap is a map that remembers insertion order. Listing methods on the
// memory stores promise creation order, which a plain map cannot give.
type omap[K comparable, V any] struct {
	items map[K]V
	order []K
}

func newOmap[K comparable, V any]() omap[K, V] {
	return omap[K, V]{items: make(map[K]V)}
}

func (m *omap[K, V]) put(k K, v V) {
	if _, ok := m.items[k]; !ok {
		m.order = append(m.order, k)
	}
	m.items[k] = v
}

func (m *omap[K, V]) get(k K) (V, bool) {
	v, ok := m.items[k]
	return v, ok
}

func (m *omap[K, V]) del(k K) {
	if _, ok := m.items[k]; !ok {
		return
	}
	delete(m.items, k)
	for i, key := range m.order {
		if key == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *omap[K, V]) values() []V {
	out := make([]V, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.items[k])
	}
	return out
}

// The memory stores hand out copies on every boundary crossing so a caller
// can never alias store-held state. Cloning goes one level deep: metadata
// maps and ID slices are duplicated along with the struct.

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIDs[T any](ids []T) []T {
	if ids == nil {
		return nil
	}
	out := make([]T, len(ids))
	copy(out, ids)
	return out
}

func cloneDialogue(d *types.Dialogue) *types.Dialogue {
	cp := *d
	cp.Participants = cloneIDs(d.Participants)
	cp.Sessions = cloneIDs(d.Sessions)
	cp.Metadata = cloneMeta(d.Metadata)
	return &cp
}

func cloneSession(s *types.Session) *types.Session {
	cp := *s
	cp.Turns = cloneIDs(s.Turns)
	cp.Metadata = cloneMeta(s.Metadata)
	return &cp
}

func cloneTurn(t *types.Turn) *types.Turn {
	cp := *t
	cp.Messages = cloneIDs(t.Messages)
	cp.Metadata = cloneMeta(t.Metadata)
	return &cp
}

func cloneMessage(m *types.Message) *types.Message {
	cp := *m
	cp.Metadata = cloneMeta(m.Metadata)
	return &cp
}

// MemoryDialogueStore is an in-process DialogueStore guarded by a RWMutex.
type MemoryDialogueStore struct {
	mu        sync.RWMutex
	dialogues omap[types.DialogueID, *types.Dialogue]
}

func NewMemoryDialogueStore() *MemoryDialogueStore {
	return &MemoryDialogueStore{dialogues: newOmap[types.DialogueID, *types.Dialogue]()}
}

func (s *MemoryDialogueStore) Create(_ context.Context, d *types.Dialogue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogues.put(d.ID, cloneDialogue(d))
	return nil
}

func (s *MemoryDialogueStore) Get(_ context.Context, id types.DialogueID) (*types.Dialogue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dialogues.get(id)
	if !ok {
		return nil, fmt.Errorf("dialogue %s: %w", id, types.ErrNotFound)
	}
	return cloneDialogue(d), nil
}

func (s *MemoryDialogueStore) Update(_ context.Context, d *types.Dialogue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dialogues.get(d.ID); !ok {
		return fmt.Errorf("dialogue %s: %w", d.ID, types.ErrNotFound)
	}
	s.dialogues.put(d.ID, cloneDialogue(d))
	return nil
}

func (s *MemoryDialogueStore) Delete(_ context.Context, id types.DialogueID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dialogues.get(id); !ok {
		return fmt.Errorf("dialogue %s: %w", id, types.ErrNotFound)
	}
	s.dialogues.del(id)
	return nil
}

func (s *MemoryDialogueStore) List(_ context.Context) ([]*types.Dialogue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.dialogues.values()
	out := make([]*types.Dialogue, 0, len(all))
	for _, d := range all {
		out = append(out, cloneDialogue(d))
	}
	return out, nil
}

func (s *MemoryDialogueStore) Active(ctx context.Context) ([]*types.Dialogue, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions omap[types.SessionID, *types.Session]
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: newOmap[types.SessionID, *types.Session]()}
}

func (s *MemorySessionStore) Create(_ context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.put(sess.ID, cloneSession(sess))
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id types.SessionID) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions.get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, types.ErrNotFound)
	}
	return cloneSession(sess), nil
}

func (s *MemorySessionStore) Update(_ context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions.get(sess.ID); !ok {
		return fmt.Errorf("session %s: %w", sess.ID, types.ErrNotFound)
	}
	s.sessions.put(sess.ID, cloneSession(sess))
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions.get(id); !ok {
		return fmt.Errorf("session %s: %w", id, types.ErrNotFound)
	}
	s.sessions.del(id)
	return nil
}

func (s *MemorySessionStore) ByDialogue(_ context.Context, id types.DialogueID) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*types.Session{}
	for _, sess := range s.sessions.values() {
		if sess.DialogueID == id {
			out = append(out, cloneSession(sess))
		}
	}
	return out, nil
}

// MemoryTurnStore is an in-process TurnStore.
type MemoryTurnStore struct {
	mu    sync.RWMutex
	turns omap[types.TurnID, *types.Turn]
}

func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{turns: newOmap[types.TurnID, *types.Turn]()}
}

func (s *MemoryTurnStore) Create(_ context.Context, t *types.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns.put(t.ID, cloneTurn(t))
	return nil
}

func (s *MemoryTurnStore) Get(_ context.Context, id types.TurnID) (*types.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.turns.get(id)
	if !ok {
		return nil, fmt.Errorf("turn %s: %w", id, types.ErrNotFound)
	}
	return cloneTurn(t), nil
}

func (s *MemoryTurnStore) Update(_ context.Context, t *types.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns.get(t.ID); !ok {
		return fmt.Errorf("turn %s: %w", t.ID, types.ErrNotFound)
	}
	s.turns.put(t.ID, cloneTurn(t))
	return nil
}

func (s *MemoryTurnStore) Delete(_ context.Context, id types.TurnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns.get(id); !ok {
		return fmt.Errorf("turn %s: %w", id, types.ErrNotFound)
	}
	s.turns.del(id)
	return nil
}

func (s *MemoryTurnStore) BySession(_ context.Context, id types.SessionID) ([]*types.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*types.Turn{}
	for _, t := range s.turns.values() {
		if t.SessionID == id {
			out = append(out, cloneTurn(t))
		}
	}
	return out, nil
}

func (s *MemoryTurnStore) Open(_ context.Context) ([]*types.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*types.Turn{}
	for _, t := range s.turns.values() {
		if t.Status == types.TurnOpen {
			out = append(out, cloneTurn(t))
		}
	}
	return out, nil
}

// MemoryMessageStore is an in-process MessageStore.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages omap[types.MessageID, *types.Message]
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: newOmap[types.MessageID, *types.Message]()}
}

func (s *MemoryMessageStore) Create(_ context.Context, m *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages.put(m.ID, cloneMessage(m))
	return nil
}

func (s *MemoryMessageStore) Get(_ context.Context, id types.MessageID) (*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages.get(id)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, types.ErrNotFound)
	}
	return cloneMessage(m), nil
}

func (s *MemoryMessageStore) Update(_ context.Context, m *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages.get(m.ID); !ok {
		return fmt.Errorf("message %s: %w", m.ID, types.ErrNotFound)
	}
	s.messages.put(m.ID, cloneMessage(m))
	return nil
}

func (s *MemoryMessageStore) Delete(_ context.Context, id types.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages.get(id); !ok {
		return fmt.Errorf("message %s: %w", id, types.ErrNotFound)
	}
	s.messages.del(id)
	return nil
}

func (s *MemoryMessageStore) ByTurn(_ context.Context, id types.TurnID) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*types.Message{}
	for _, m := range s.messages.values() {
		if m.TurnID == id {
			out = append(out, cloneMessage(m))
		}
	}
	return out, nil
}

func (s *MemoryMessageStore) ByDialogue(_ context.Context, id types.DialogueID, limit int) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*types.Message{}
	for _, m := range s.messages.values() {
		if m.DialogueID == id {
			out = append(out, cloneMessage(m))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// NewMemoryStores returns a full in-process store bundle.
func NewMemoryStores() types.Stores {
	return types.Stores{
		Dialogues: NewMemoryDialogueStore(),
		Sessions:  NewMemorySessionStore(),
		Turns:     NewMemoryTurnStore(),
		Messages:  NewMemoryMessageStore(),
	}
}
