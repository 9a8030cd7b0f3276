package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"direct_chat_service/internal/chat/domain"

	"github.com/cucumber/godog"
)

func TestConversationFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeConversationScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"./featureFiles"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// conversationWorld state of one scenario
type conversationWorld struct {
	self     string
	repo     *memoryMessageRepository
	engine   *ConversationEngine
	composer *Composer
	clock    time.Time
	lastErr  error
}

func (w *conversationWorld) tick() time.Time {
	w.clock = w.clock.Add(time.Second)
	return w.clock
}

func (w *conversationWorld) signedInAs(name string) error {
	w.self = name
	w.clock = t0
	w.repo = newMemoryMessageRepository()
	w.engine = NewConversationEngine(name, w.repo, newFakeRealtime(), testTTL)
	w.composer = NewComposer(w.engine, w.repo, name, testTTL)
	w.composer.now = w.tick
	return nil
}

func (w *conversationWorld) contactsAre(list string) error {
	var contacts []domain.Contact
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		contacts = append(contacts, domain.NewContact(domain.User{ID: name, Name: name}))
	}
	w.engine.SetContacts(contacts)
	return nil
}

func (w *conversationWorld) sentMeUnseen(from, content string) error {
	return w.repo.Insert(context.Background(), &domain.Message{
		ID:         fmt.Sprintf("%s-%d", from, w.clock.UnixNano()),
		SenderID:   from,
		ReceiverID: w.self,
		Content:    content,
		CreatedAt:  w.tick(),
	})
}

func (w *conversationWorld) openConversation(name string) error {
	return w.engine.Select(context.Background(), name)
}

func (w *conversationWorld) tryOpenConversation(name string) error {
	w.lastErr = w.engine.Select(context.Background(), name)
	return nil
}

func (w *conversationWorld) pushes(from, id, content string) error {
	return w.engine.HandleInsert(context.Background(), domain.Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: w.self,
		Content:    content,
		CreatedAt:  t0.Add(time.Hour),
	})
}

func (w *conversationWorld) storeUnavailable() error {
	w.repo.setFindErr(errors.New("store unavailable"))
	return nil
}

func (w *conversationWorld) storeRejectsInserts() error {
	w.repo.setInsertErr(errors.New("insert rejected"))
	return nil
}

func (w *conversationWorld) storeAcceptsInserts() error {
	w.repo.setInsertErr(nil)
	return nil
}

func (w *conversationWorld) send(text string) error {
	_, w.lastErr = w.composer.Send(context.Background(), text)
	return nil
}

func (w *conversationWorld) retryLast() error {
	msgs := w.engine.Snapshot().Messages
	if len(msgs) == 0 {
		return errors.New("no message to retry")
	}
	_, w.lastErr = w.composer.Retry(context.Background(), msgs[len(msgs)-1].ID)
	return w.lastErr
}

func (w *conversationWorld) closeConversation() error {
	w.engine.Deselect()
	return nil
}

func (w *conversationWorld) conversationIs(state string) error {
	if got := w.engine.Snapshot().State; string(got) != state {
		return fmt.Errorf("expected state %s, got %s", state, got)
	}
	return nil
}

func (w *conversationWorld) showsMessages(n int) error {
	if got := len(w.engine.Snapshot().Messages); got != n {
		return fmt.Errorf("expected %d messages, got %d", n, got)
	}
	return nil
}

func (w *conversationWorld) everyMessageFromIsSeen(from string) error {
	for _, m := range w.engine.Snapshot().Messages {
		if m.SenderID == from && !m.Seen {
			return fmt.Errorf("message %s is not seen", m.ID)
		}
		if stored, ok := w.repo.row(m.ID); ok && m.SenderID == from && !stored.Seen {
			return fmt.Errorf("stored message %s is not seen", m.ID)
		}
	}
	return nil
}

func (w *conversationWorld) unreadCountIs(name string, n int) error {
	if got := w.engine.Snapshot().Unread[name]; got != n {
		return fmt.Errorf("expected %d unread from %s, got %d", n, name, got)
	}
	return nil
}

func (w *conversationWorld) firstContactIs(name, preview string) error {
	contacts := w.engine.Snapshot().Contacts
	if len(contacts) == 0 {
		return errors.New("no contacts")
	}
	if contacts[0].ID != name || contacts[0].LastMessage != preview {
		return fmt.Errorf("first contact is %s with preview %q", contacts[0].ID, contacts[0].LastMessage)
	}
	return nil
}

func (w *conversationWorld) openingFails() error {
	if w.lastErr == nil {
		return errors.New("expected opening to fail")
	}
	return nil
}

func (w *conversationWorld) activeContactIs(name string) error {
	if got := w.engine.ActiveContact(); got != name {
		return fmt.Errorf("expected active contact %s, got %s", name, got)
	}
	return nil
}

func (w *conversationWorld) lastMessageIs(content, delivery string) error {
	msgs := w.engine.Snapshot().Messages
	if len(msgs) == 0 {
		return errors.New("conversation is empty")
	}
	last := msgs[len(msgs)-1]
	if last.Content != content || string(last.Delivery) != delivery {
		return fmt.Errorf("last message is %q with delivery %q", last.Content, last.Delivery)
	}
	return nil
}

// InitializeConversationScenario 註冊 Gherkin 與 Step Definition 的對應
func InitializeConversationScenario(s *godog.ScenarioContext) {
	w := &conversationWorld{}

	s.Step(`^I am signed in as "([^"]*)"$`, w.signedInAs)
	s.Step(`^my contacts are "([^"]*)"$`, w.contactsAre)
	s.Step(`^"([^"]*)" sent me "([^"]*)" unseen$`, w.sentMeUnseen)
	s.Step(`^I open the conversation with "([^"]*)"$`, w.openConversation)
	s.Step(`^I try to open the conversation with "([^"]*)"$`, w.tryOpenConversation)
	s.Step(`^"([^"]*)" pushes message "([^"]*)" saying "([^"]*)"$`, w.pushes)
	s.Step(`^the message store is unavailable$`, w.storeUnavailable)
	s.Step(`^the message store rejects inserts$`, w.storeRejectsInserts)
	s.Step(`^the message store accepts inserts$`, w.storeAcceptsInserts)
	s.Step(`^I send "([^"]*)"$`, w.send)
	s.Step(`^I retry the last message$`, w.retryLast)
	s.Step(`^I close the conversation$`, w.closeConversation)
	s.Step(`^the conversation is "([^"]*)"$`, w.conversationIs)
	s.Step(`^the conversation shows (\d+) messages$`, w.showsMessages)
	s.Step(`^every message from "([^"]*)" is seen$`, w.everyMessageFromIsSeen)
	s.Step(`^my unread count for "([^"]*)" is (\d+)$`, w.unreadCountIs)
	s.Step(`^the first contact is "([^"]*)" with preview "([^"]*)"$`, w.firstContactIs)
	s.Step(`^opening fails$`, w.openingFails)
	s.Step(`^the active contact is "([^"]*)"$`, w.activeContactIs)
	s.Step(`^the last message is "([^"]*)" with delivery "([^"]*)"$`, w.lastMessageIs)
}
