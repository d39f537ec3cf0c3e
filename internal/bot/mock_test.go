package bot

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	"go.uber.org/zap"

	"kol-referral-bot/internal/config"
	"kol-referral-bot/internal/models"
	"kol-referral-bot/internal/store"
)

const testGroupID int64 = -1001234567890

// ── In-memory ReferralStore ──

type memReferralStore struct {
	mu   sync.Mutex
	rows map[int64]*models.Referral

	upsertErr error
	getErr    error
	markErr   error
	deleteErr error
	countErr  error
}

var _ store.ReferralStore = (*memReferralStore)(nil)

func newMemReferralStore() *memReferralStore {
	return &memReferralStore{rows: make(map[int64]*models.Referral)}
}

func (m *memReferralStore) Upsert(_ context.Context, ref *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	cp := *ref
	m.rows[ref.TelegramID] = &cp
	return nil
}

func (m *memReferralStore) Get(_ context.Context, telegramID int64) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	row, ok := m.rows[telegramID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

// MarkVerified mirrors the real store's compare-and-set: the row must still
// be unverified for the write to apply.
func (m *memReferralStore) MarkVerified(_ context.Context, telegramID int64, at time.Time) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return nil, m.markErr
	}
	row, ok := m.rows[telegramID]
	if !ok || row.Verified {
		return nil, store.ErrNotFound
	}
	row.Verified = true
	ts := at
	row.VerifiedAt = &ts
	cp := *row
	return &cp, nil
}

func (m *memReferralStore) Delete(_ context.Context, telegramID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	if _, ok := m.rows[telegramID]; !ok {
		return 0, nil
	}
	delete(m.rows, telegramID)
	return 1, nil
}

func (m *memReferralStore) CountVerified(_ context.Context, kolName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	var count int64
	for _, row := range m.rows {
		if !row.Verified {
			continue
		}
		if kolName != "" && !strings.EqualFold(row.KolName, kolName) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *memReferralStore) HasReferrals(_ context.Context, kolName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return false, m.countErr
	}
	for _, row := range m.rows {
		if strings.EqualFold(row.KolName, kolName) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memReferralStore) row(telegramID int64) *models.Referral {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[telegramID]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

func (m *memReferralStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ── In-memory LinkStore ──

type memLinkStore struct {
	mu    sync.Mutex
	links []models.KolLink

	createErr error
	getErr    error
	listErr   error
}

var _ store.LinkStore = (*memLinkStore)(nil)

func newMemLinkStore() *memLinkStore {
	return &memLinkStore{}
}

func (m *memLinkStore) Create(_ context.Context, link *models.KolLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.links = append(m.links, *link)
	return nil
}

func (m *memLinkStore) GetByURL(_ context.Context, url string) (*models.KolLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, link := range m.links {
		if link.InviteLink == url {
			cp := link
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memLinkStore) List(_ context.Context) ([]models.KolLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.KolLink, len(m.links))
	copy(out, m.links)
	sort.SliceStable(out, func(i, j int) bool { return out[i].KolName < out[j].KolName })
	return out, nil
}

// ── Recording fake transport ──

type fakeTransport struct {
	mu      sync.Mutex
	sent    []*telego.SendMessageParams
	edits   []*telego.EditMessageTextParams
	answers []*telego.AnswerCallbackQueryParams
	created []*telego.CreateChatInviteLinkParams

	sendErr       error
	editErr       error
	createLinkErr error
	nextLink      string
}

var _ Transport = (*fakeTransport)(nil)

func (f *fakeTransport) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, params)
	return &telego.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeTransport) EditMessageText(_ context.Context, params *telego.EditMessageTextParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, params)
	return &telego.Message{MessageID: params.MessageID}, nil
}

func (f *fakeTransport) AnswerCallbackQuery(_ context.Context, params *telego.AnswerCallbackQueryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, params)
	return nil
}

func (f *fakeTransport) CreateChatInviteLink(_ context.Context, params *telego.CreateChatInviteLinkParams) (*telego.ChatInviteLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createLinkErr != nil {
		return nil, f.createLinkErr
	}
	f.created = append(f.created, params)
	return &telego.ChatInviteLink{InviteLink: f.nextLink}, nil
}

func (f *fakeTransport) answerTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.answers))
	for i, a := range f.answers {
		out[i] = a.Text
	}
	return out
}

// ── Test bot wiring ──

func newTestBot() (*Bot, *memReferralStore, *memLinkStore, *fakeTransport) {
	refs := newMemReferralStore()
	links := newMemLinkStore()
	ft := &fakeTransport{nextLink: "https://t.me/+fresh"}
	cfg := &config.Config{
		GroupID:  testGroupID,
		AdminIDs: []int64{42},
	}
	b := &Bot{
		transport: ft,
		cfg:       cfg,
		referrals: refs,
		links:     links,
		log:       zap.NewNop(),
	}
	return b, refs, links, ft
}

// ── Event builders ──

func joinEvent(chatID int64, user telego.User, inviteURL string) telego.ChatMemberUpdated {
	event := telego.ChatMemberUpdated{
		Chat:          telego.Chat{ID: chatID, Type: telego.ChatTypeSupergroup},
		From:          user,
		OldChatMember: &telego.ChatMemberLeft{User: user},
		NewChatMember: &telego.ChatMemberMember{User: user},
	}
	if inviteURL != "" {
		event.InviteLink = &telego.ChatInviteLink{InviteLink: inviteURL}
	}
	return event
}

func leaveEvent(chatID int64, user telego.User) telego.ChatMemberUpdated {
	return telego.ChatMemberUpdated{
		Chat:          telego.Chat{ID: chatID, Type: telego.ChatTypeSupergroup},
		From:          user,
		OldChatMember: &telego.ChatMemberMember{User: user},
		NewChatMember: &telego.ChatMemberLeft{User: user},
	}
}

func verifyCallback(fromID int64, data string) telego.CallbackQuery {
	return telego.CallbackQuery{
		ID:      "cb-1",
		From:    telego.User{ID: fromID, FirstName: "Clicker"},
		Data:    data,
		Message: &telego.Message{MessageID: 7, Chat: telego.Chat{ID: testGroupID}},
	}
}

func privateMessage(fromID int64, text string) telego.Message {
	return telego.Message{
		Text: text,
		Chat: telego.Chat{ID: fromID, Type: telego.ChatTypePrivate},
		From: &telego.User{ID: fromID, FirstName: "Sender"},
	}
}
