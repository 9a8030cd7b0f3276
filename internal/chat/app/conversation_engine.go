package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/logger"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// knownCapacity how many recent message ids are remembered for redelivery checks
const knownCapacity = 4096

// ConversationEngine reconciles fetched history, realtime inserts and local sends
// into the open conversation view and the per-contact unread counts.
//
// All state sits behind mu. Store calls are made without holding it and their
// results are applied only when the load generation they were issued under is
// still current.
type ConversationEngine struct {
	selfID   string
	msgRepo  repository.MessageRepository
	realtime repository.Realtime
	timeout  time.Duration
	now      func() time.Time

	mu         sync.Mutex
	state      domain.ConversationState
	activeID   string
	generation uint64
	view       []domain.Message
	pending    []domain.Message // inserts for the active contact received while loading
	unread     map[string]int
	known      *lru.Cache // recent message ids already shown or counted
	contacts   []domain.Contact
	reloadSeq  uint64
	reloads    map[uint64]map[string]string // per contact reload in flight: counted id -> sender
	listeners  []func(domain.Snapshot)

	cancel context.CancelFunc
	sub    repository.Subscription
}

// NewConversationEngine create ConversationEngine for selfID
func NewConversationEngine(selfID string, msgRepo repository.MessageRepository, realtime repository.Realtime, timeout time.Duration) *ConversationEngine {
	known, _ := lru.New(knownCapacity)
	return &ConversationEngine{
		selfID:   selfID,
		msgRepo:  msgRepo,
		realtime: realtime,
		timeout:  timeout,
		now:      time.Now,
		state:    domain.StateClosed,
		unread:   map[string]int{},
		known:    known,
		reloads:  map[uint64]map[string]string{},
	}
}

// Start opens the session-wide insert subscription
func (e *ConversationEngine) Start(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(context.Background())
	sub, err := e.realtime.SubscribeInserts(subCtx, func(msg domain.Message) {
		if err := e.HandleInsert(subCtx, msg); err != nil {
			logger.Log.Warn("handle insert", zap.String("message_id", msg.ID), zap.Error(err))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe inserts: %w", err)
	}

	e.mu.Lock()
	e.cancel = cancel
	e.sub = sub
	e.mu.Unlock()
	return nil
}

// Stop closes the insert subscription and closes the conversation
func (e *ConversationEngine) Stop() {
	e.mu.Lock()
	sub, cancel := e.sub, e.cancel
	e.sub, e.cancel = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}
	e.Deselect()
}

// OnChange registers fn, called after every state transition outside the lock
func (e *ConversationEngine) OnChange(fn func(domain.Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// SetContacts merges a directory load into the contact list and replaces the
// unread counts. The active contact keeps an unread count of zero.
func (e *ConversationEngine) SetContacts(contacts []domain.Contact) {
	e.mu.Lock()
	e.setContactsLocked(contacts)
	e.commitLocked()
}

// ReloadContacts runs load and merges its result like SetContacts.
// Unread increments counted while load runs are added on top of the loaded counts.
func (e *ConversationEngine) ReloadContacts(ctx context.Context, load func(ctx context.Context) ([]domain.Contact, error)) error {
	e.mu.Lock()
	e.reloadSeq++
	seq := e.reloadSeq
	e.reloads[seq] = map[string]string{}
	e.mu.Unlock()

	contacts, err := load(ctx)

	e.mu.Lock()
	counted := e.reloads[seq]
	delete(e.reloads, seq)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.setContactsLocked(contacts)
	for _, sender := range counted {
		if sender != e.activeID {
			e.unread[sender]++
		}
	}
	e.commitLocked()
	return nil
}

// setContactsLocked keeps the current order and previews of contacts still
// present, appends new ones in load order and drops the rest.
func (e *ConversationEngine) setContactsLocked(contacts []domain.Contact) {
	loaded := make(map[string]domain.Contact, len(contacts))
	for _, c := range contacts {
		loaded[c.ID] = c
	}

	merged := make([]domain.Contact, 0, len(contacts))
	placed := make(map[string]struct{}, len(contacts))
	for _, cur := range e.contacts {
		c, ok := loaded[cur.ID]
		if !ok {
			continue
		}
		if cur.LastMessage != "" {
			c.LastMessage = cur.LastMessage
		}
		merged = append(merged, c)
		placed[c.ID] = struct{}{}
	}
	for _, c := range contacts {
		if _, ok := placed[c.ID]; ok {
			continue
		}
		merged = append(merged, c)
		placed[c.ID] = struct{}{}
	}
	e.contacts = merged

	e.unread = make(map[string]int, len(contacts))
	for _, c := range contacts {
		if c.UnreadCount > 0 {
			e.unread[c.ID] = c.UnreadCount
		}
	}
	if e.activeID != "" {
		e.unread[e.activeID] = 0
	}
}

// Select opens the conversation with contactID.
// A failed fetch restores the previous conversation and returns the error.
func (e *ConversationEngine) Select(ctx context.Context, contactID string) error {
	if contactID == "" || contactID == e.selfID {
		return errprocess.ErrInvalidContact
	}

	e.mu.Lock()
	prev := e.saveLocked(contactID)
	e.generation++
	gen := e.generation
	e.state = domain.StateLoading
	e.activeID = contactID
	e.view = nil
	e.pending = nil
	e.unread[contactID] = 0
	for _, counted := range e.reloads {
		for id, sender := range counted {
			if sender == contactID {
				delete(counted, id)
			}
		}
	}
	e.commitLocked()

	msgs, err := e.fetch(ctx, contactID)

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		logger.Log.Debug("discard stale conversation load", zap.String("contact_id", contactID))
		return nil
	}
	if err != nil {
		pending := e.pending
		e.restoreLocked(prev)
		for _, m := range pending {
			e.countUnreadLocked(m)
		}
		e.commitLocked()
		logger.Log.Error("load conversation", zap.String("contact_id", contactID), zap.Error(err))
		return fmt.Errorf("load conversation %s: %w", contactID, err)
	}

	e.replaceViewLocked(msgs)
	for _, m := range e.pending {
		e.mergeLocked(m)
	}
	e.pending = nil
	e.state = domain.StateOpen
	e.unread[contactID] = 0
	unseen := e.hasUnseenLocked(contactID)
	e.commitLocked()

	if unseen {
		return e.markSeen(ctx, gen, contactID)
	}
	return nil
}

// Refresh re-fetches the open conversation, a failure keeps the current view
func (e *ConversationEngine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.state != domain.StateOpen {
		e.mu.Unlock()
		return nil
	}
	gen, contactID := e.generation, e.activeID
	e.mu.Unlock()

	msgs, err := e.fetch(ctx, contactID)

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.mu.Unlock()
		logger.Log.Error("refresh conversation", zap.String("contact_id", contactID), zap.Error(err))
		return fmt.Errorf("refresh conversation %s: %w", contactID, err)
	}

	// messages not yet durable are not in the fetch result
	local := e.view
	e.replaceViewLocked(msgs)
	for _, m := range local {
		if m.Delivery == domain.DeliveryPending || m.Delivery == domain.DeliveryFailed {
			e.mergeLocked(m)
		}
	}
	unseen := e.hasUnseenLocked(contactID)
	e.commitLocked()

	if unseen {
		return e.markSeen(ctx, gen, contactID)
	}
	return nil
}

// Deselect closes the conversation, in-flight loads are invalidated
func (e *ConversationEngine) Deselect() {
	e.mu.Lock()
	e.generation++
	e.state = domain.StateClosed
	e.activeID = ""
	e.view = nil
	e.pending = nil
	e.commitLocked()
}

// HandleInsert applies one realtime insert event, duplicates are absorbed by id
func (e *ConversationEngine) HandleInsert(ctx context.Context, msg domain.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if !msg.Involves(e.selfID) {
		return nil
	}
	msg = msg.Clone()
	msg.Delivery = ""
	peer := msg.Peer(e.selfID)

	e.mu.Lock()
	gen := e.generation
	markSeen := false
	switch {
	case peer == e.activeID && e.state == domain.StateLoading:
		e.pending = append(e.pending, msg)
	case peer == e.activeID && e.state == domain.StateOpen:
		added := e.mergeLocked(msg)
		markSeen = added && msg.SenderID == peer && !msg.Seen
	case msg.ReceiverID == e.selfID:
		e.countUnreadLocked(msg)
	}
	e.touchContactLocked(peer, msg.Content)
	e.commitLocked()

	if markSeen {
		return e.markSeen(ctx, gen, peer)
	}
	return nil
}

// AppendLocal adds a message composed in this session to the active conversation
func (e *ConversationEngine) AppendLocal(msg domain.Message) error {
	e.mu.Lock()
	if e.activeID == "" || !msg.Between(e.selfID, e.activeID) {
		e.mu.Unlock()
		return errprocess.ErrNoContactSelected
	}
	switch e.state {
	case domain.StateLoading:
		e.pending = append(e.pending, msg)
	case domain.StateOpen:
		e.mergeLocked(msg)
	}
	e.touchContactLocked(e.activeID, msg.Content)
	e.commitLocked()
	return nil
}

// SetDelivery updates the delivery state of a local message
func (e *ConversationEngine) SetDelivery(id string, state domain.DeliveryState) bool {
	e.mu.Lock()
	found := false
	for _, list := range [][]domain.Message{e.view, e.pending} {
		for i := range list {
			if list[i].ID != id || list[i].Delivery == "" {
				continue
			}
			found = true
			// the insert event already proved the row is stored
			if list[i].Delivery == domain.DeliverySent && state == domain.DeliveryFailed {
				continue
			}
			list[i].Delivery = state
		}
	}
	if !found {
		e.mu.Unlock()
		return false
	}
	e.commitLocked()
	return true
}

// FindMessage looks id up in the open or loading conversation
func (e *ConversationEngine) FindMessage(id string) (domain.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, list := range [][]domain.Message{e.view, e.pending} {
		for _, m := range list {
			if m.ID == id {
				return m.Clone(), true
			}
		}
	}
	return domain.Message{}, false
}

// ActiveContact the selected contact, empty when closed
func (e *ConversationEngine) ActiveContact() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID
}

// Snapshot deep copy of the current state
func (e *ConversationEngine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *ConversationEngine) fetch(ctx context.Context, contactID string) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.msgRepo.FindConversation(ctx, e.selfID, contactID)
}

// markSeen flags contactID's unseen messages in the store, then in the view
// if the conversation is still the one the call was issued for.
func (e *ConversationEngine) markSeen(ctx context.Context, gen uint64, contactID string) error {
	at := e.now().UTC()

	storeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	_, err := e.msgRepo.MarkSeen(storeCtx, contactID, e.selfID, at)
	cancel()
	if err != nil {
		logger.Log.Error("mark seen", zap.String("contact_id", contactID), zap.Error(err))
		return fmt.Errorf("mark seen %s: %w", contactID, err)
	}

	e.mu.Lock()
	if gen != e.generation || e.activeID != contactID {
		e.mu.Unlock()
		return nil
	}
	changed := false
	for i := range e.view {
		m := &e.view[i]
		if m.SenderID == contactID && m.ReceiverID == e.selfID && m.MarkSeen(at) {
			changed = true
		}
	}
	if !changed {
		e.mu.Unlock()
		return nil
	}
	e.commitLocked()
	return nil
}

// savedConversation the last known good conversation, restored when a load fails
type savedConversation struct {
	state    domain.ConversationState
	activeID string
	view     []domain.Message
	target   string
	unread   int
}

func (e *ConversationEngine) saveLocked(target string) savedConversation {
	return savedConversation{
		state:    e.state,
		activeID: e.activeID,
		view:     e.view,
		target:   target,
		unread:   e.unread[target],
	}
}

func (e *ConversationEngine) restoreLocked(s savedConversation) {
	e.state = s.state
	e.activeID = s.activeID
	e.view = s.view
	e.pending = nil
	// a superseded load left nothing to go back to
	if e.state == domain.StateLoading {
		e.state = domain.StateClosed
		e.activeID = ""
		e.view = nil
	}
	if s.target != e.activeID {
		e.unread[s.target] = s.unread
	}
	if e.activeID != "" {
		e.unread[e.activeID] = 0
	}
}

// replaceViewLocked sets the view to msgs, deduplicated by id and sorted by created_at
func (e *ConversationEngine) replaceViewLocked(msgs []domain.Message) {
	seen := make(map[string]struct{}, len(msgs))
	view := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			logger.Log.Warn("drop invalid message", zap.Error(err))
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		e.known.Add(m.ID, nil)
		view = append(view, m.Clone())
	}
	repository.SortByCreatedAt(view)
	e.view = view
}

// mergeLocked inserts msg at its created_at position unless its id is present.
// An insert event for a local message proves it was stored.
func (e *ConversationEngine) mergeLocked(msg domain.Message) bool {
	for i := range e.view {
		if e.view[i].ID != msg.ID {
			continue
		}
		if e.view[i].Delivery != "" && msg.Delivery == "" {
			e.view[i].Delivery = domain.DeliverySent
		}
		return false
	}

	idx := sort.Search(len(e.view), func(i int) bool {
		return e.view[i].CreatedAt.After(msg.CreatedAt)
	})
	e.view = append(e.view, domain.Message{})
	copy(e.view[idx+1:], e.view[idx:])
	e.view[idx] = msg
	e.known.Add(msg.ID, nil)
	return true
}

// countUnreadLocked counts an unseen message for a closed conversation once per id
func (e *ConversationEngine) countUnreadLocked(msg domain.Message) {
	if msg.ReceiverID != e.selfID || msg.Seen || msg.SenderID == e.activeID {
		return
	}
	if found, _ := e.known.ContainsOrAdd(msg.ID, nil); found {
		return
	}
	e.unread[msg.SenderID]++
	for _, counted := range e.reloads {
		counted[msg.ID] = msg.SenderID
	}
}

func (e *ConversationEngine) hasUnseenLocked(contactID string) bool {
	for _, m := range e.view {
		if m.SenderID == contactID && m.ReceiverID == e.selfID && !m.Seen {
			return true
		}
	}
	return false
}

// touchContactLocked moves contactID to the front with content as preview
func (e *ConversationEngine) touchContactLocked(contactID, content string) {
	idx := -1
	for i := range e.contacts {
		if e.contacts[i].ID == contactID {
			idx = i
			break
		}
	}

	var c domain.Contact
	if idx < 0 {
		// not in the directory yet, the next reload fills in the profile
		c = domain.Contact{User: domain.User{ID: contactID}, DisplayName: contactID}
		e.contacts = append(e.contacts, domain.Contact{})
		idx = len(e.contacts) - 1
	} else {
		c = e.contacts[idx]
	}
	c.LastMessage = content

	copy(e.contacts[1:idx+1], e.contacts[:idx])
	e.contacts[0] = c
}

func (e *ConversationEngine) snapshotLocked() domain.Snapshot {
	msgs := make([]domain.Message, len(e.view))
	for i, m := range e.view {
		msgs[i] = m.Clone()
	}

	unread := make(map[string]int, len(e.unread))
	for id, n := range e.unread {
		if n > 0 {
			unread[id] = n
		}
	}

	contacts := make([]domain.Contact, len(e.contacts))
	for i, c := range e.contacts {
		c.UnreadCount = unread[c.ID]
		contacts[i] = c
	}

	return domain.Snapshot{
		SelfID:          e.selfID,
		State:           e.state,
		ActiveContactID: e.activeID,
		Messages:        msgs,
		Unread:          unread,
		Contacts:        contacts,
	}
}

// commitLocked snapshots, unlocks and notifies listeners
func (e *ConversationEngine) commitLocked() {
	snap := e.snapshotLocked()
	listeners := append([]func(domain.Snapshot){}, e.listeners...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
