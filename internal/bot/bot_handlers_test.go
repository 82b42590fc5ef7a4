package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"campusmart/internal/client"
	"campusmart/internal/config"
	"campusmart/internal/model"
	"campusmart/internal/session"
	"campusmart/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID  int64
	Text    string
	Buttons []string
}

type mockAPI struct {
	mu        sync.Mutex
	sent      []sentMsg
	callbacks []tgbotapi.CallbackConfig
	deleted   []int
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		var buttons []string
		if kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
			for _, row := range kb.InlineKeyboard {
				for _, btn := range row {
					if btn.CallbackData != nil {
						buttons = append(buttons, *btn.CallbackData)
					}
				}
			}
		}
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Buttons: buttons})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := c.(type) {
	case tgbotapi.CallbackConfig:
		m.callbacks = append(m.callbacks, v)
	case tgbotapi.DeleteMessageConfig:
		m.deleted = append(m.deleted, v.MessageID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) last() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) lastText() string {
	return m.last().Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) lastCallbackText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.callbacks) == 0 {
		return ""
	}
	return m.callbacks[len(m.callbacks)-1].Text
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.callbacks = nil
	m.deleted = nil
}

const testPassword = "secret"

// fakeMarket serves listings newest first and knows a single account password.
type fakeMarket struct {
	mu       sync.Mutex
	listings []model.Listing
	listErr  error
	queries  []client.Query
	users    map[string]*model.User
	created  []client.NewListing
}

func newFakeMarket(listings []model.Listing) *fakeMarket {
	return &fakeMarket{listings: listings, users: make(map[string]*model.User)}
}

func (f *fakeMarket) List(_ context.Context, q client.Query) ([]model.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var matched []model.Listing
	for _, l := range f.listings {
		if q.Filters.Location != "" && !strings.EqualFold(l.Location, q.Filters.Location) {
			continue
		}
		if q.Filters.Category != "" && !strings.EqualFold(l.Category, q.Filters.Category) {
			continue
		}
		matched = append(matched, l)
	}
	if q.Skip >= len(matched) {
		return []model.Listing{}, nil
	}
	return matched[q.Skip:min(q.Skip+q.Limit, len(matched))], nil
}

func (f *fakeMarket) Get(_ context.Context, id string) (*model.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listings {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, &client.HTTPError{Status: 404, Message: "Listing not found"}
}

func (f *fakeMarket) Login(_ context.Context, email, password string) (*client.AuthResult, error) {
	if password != testPassword {
		return nil, &client.HTTPError{Status: 400, Message: "Invalid email or password"}
	}
	return f.issue("Ada", email), nil
}

func (f *fakeMarket) Signup(_ context.Context, name, email, _ string) (*client.AuthResult, error) {
	return f.issue(name, email), nil
}

func (f *fakeMarket) issue(name, email string) *client.AuthResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := model.User{ID: "u-" + email, Name: name, Email: email}
	token := "tok-" + email
	f.users[token] = &u
	return &client.AuthResult{Token: token, User: u}
}

func (f *fakeMarket) user(token string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[token]
	if !ok {
		return nil, fmt.Errorf("me: %w", client.ErrUnauthenticated)
	}
	return u, nil
}

func (f *fakeMarket) Me(_ context.Context, token string) (*model.User, error) {
	u, err := f.user(token)
	if err != nil {
		return nil, err
	}
	c := *u
	return &c, nil
}

func (f *fakeMarket) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, token)
	return nil
}

func (f *fakeMarket) Create(_ context.Context, token string, l client.NewListing, _ []client.ImageFile) (*model.Listing, error) {
	u, err := f.user(token)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, l)
	created := model.Listing{
		ID: fmt.Sprintf("new-%d", len(f.created)), Title: l.Title, Price: l.Price,
		Location: l.Location, Category: l.Category, OwnerID: u.ID,
	}
	f.listings = append([]model.Listing{created}, f.listings...)
	return &created, nil
}

func (f *fakeMarket) MyListings(_ context.Context, token string) ([]model.Listing, error) {
	u, err := f.user(token)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Listing
	for _, l := range f.listings {
		if l.OwnerID == u.ID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeMarket) UpdateWhatsApp(_ context.Context, token, number string) error {
	u, err := f.user(token)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u.WhatsApp = number
	return nil
}

func (f *fakeMarket) skips() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, q := range f.queries {
		out = append(out, q.Skip)
	}
	return out
}

var _ Marketplace = (*fakeMarket)(nil)

// --- helpers ---

const testChat = 100

func newTestBot(t *testing.T, market *fakeMarket) (*Bot, *mockAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := &mockAPI{}
	cfg := &config.Config{PageSize: 3, PublicURL: "https://market.example.com"}
	b := newBot(api, store, market, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return b, api, store
}

// market returns n listings l<n>..l1, newest first, alternating between two campuses.
func market(n int) []model.Listing {
	var out []model.Listing
	for i := n; i >= 1; i-- {
		loc := "UNILAG"
		if i%2 == 0 {
			loc = "LASU"
		}
		out = append(out, model.Listing{
			ID: fmt.Sprintf("l%d", i), Title: fmt.Sprintf("item %d", i),
			Price: float64(i * 1000), Location: loc, Category: "books",
		})
	}
	return out
}

func makeMsg(cmd, args string) *tgbotapi.Message {
	text := "/" + cmd
	if args != "" {
		text += " " + args
	}
	return &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 1},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
		},
	}
}

func makeCallback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		Data:    data,
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: testChat}},
	}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func seedWatch(t *testing.T, store *storage.SQLite, name string, filters model.Filters) *model.Watch {
	t.Helper()
	w := &model.Watch{ChatID: testChat, Name: name, Filters: filters, IntervalMinutes: 15, IsActive: true}
	if err := store.CreateWatch(context.Background(), w); err != nil {
		t.Fatalf("seed watch: %v", err)
	}
	return w
}

// --- handler tests ---

func TestHandleStartAndHelp(t *testing.T) {
	b, api, _ := newTestBot(t, newFakeMarket(nil))
	b.handleStart(testChat)
	requireContains(t, api.lastText(), "Welcome to the campus marketplace")
	b.handleHelp(testChat)
	requireContains(t, api.lastText(), "/browse")
	requireContains(t, api.lastText(), "/include_re")
}

func TestBrowsePagination(t *testing.T) {
	ctx := context.Background()
	m := newFakeMarket(market(7))
	b, api, _ := newTestBot(t, m)

	b.handleCommand(ctx, makeMsg("browse", ""))
	first := api.last()
	requireContains(t, first.Text, "1. item 7")
	requireContains(t, first.Text, "3. item 5")
	if diff := cmp.Diff([]string{"view:l7", "view:l6", "view:l5", "more:3"}, first.Buttons); diff != "" {
		t.Errorf("first page buttons (-want +got):\n%s", diff)
	}

	b.handleCallback(ctx, makeCallback("more:3"))
	second := api.last()
	requireContains(t, second.Text, "4. item 4")
	if diff := cmp.Diff([]string{"view:l4", "view:l3", "view:l2", "more:6"}, second.Buttons); diff != "" {
		t.Errorf("second page buttons (-want +got):\n%s", diff)
	}

	// The first page's button has scrolled away.
	api.reset()
	b.handleCallback(ctx, makeCallback("more:3"))
	if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
		t.Errorf("stale button sent messages (-want +got):\n%s", diff)
	}
	requireContains(t, api.lastCallbackText(), "Already loaded")

	b.handleCallback(ctx, makeCallback("more:6"))
	last := api.last()
	requireContains(t, last.Text, "7. item 1")
	requireContains(t, last.Text, "That's everything.")
	if diff := cmp.Diff([]string{"view:l1"}, last.Buttons); diff != "" {
		t.Errorf("last page buttons (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int{0, 3, 6}, m.skips()); diff != "" {
		t.Errorf("request offsets (-want +got):\n%s", diff)
	}
}

func TestBrowseFilters(t *testing.T) {
	ctx := context.Background()
	m := newFakeMarket(market(6))
	b, api, _ := newTestBot(t, m)

	b.handleCommand(ctx, makeMsg("location", "lasu"))
	requireContains(t, api.lastText(), "Listings (location: lasu)")
	requireContains(t, api.lastText(), "item 6")

	b.handleCommand(ctx, makeMsg("category", "Books"))
	if diff := cmp.Diff(model.Filters{Location: "lasu", Category: "books"}, b.chat(testChat).feed.State().Filters); diff != "" {
		t.Errorf("filters (-want +got):\n%s", diff)
	}

	b.handleCommand(ctx, makeMsg("category", "cars"))
	requireContains(t, api.lastText(), "Unknown category")

	b.handleCommand(ctx, makeMsg("location", "Yaba"))
	requireContains(t, api.lastText(), "No listings match location: Yaba, category: books")

	b.handleCommand(ctx, makeMsg("clear", ""))
	if diff := cmp.Diff(model.Filters{}, b.chat(testChat).feed.State().Filters); diff != "" {
		t.Errorf("filters after clear (-want +got):\n%s", diff)
	}
}

func TestBrowseErrorOffersRetry(t *testing.T) {
	ctx := context.Background()
	m := newFakeMarket(market(2))
	m.listErr = fmt.Errorf("list: %w", client.ErrNetwork)
	b, api, _ := newTestBot(t, m)

	b.handleCommand(ctx, makeMsg("browse", ""))
	requireContains(t, api.lastText(), "Could not load listings: the marketplace is unreachable")
	if diff := cmp.Diff([]string{"retry"}, api.last().Buttons); diff != "" {
		t.Errorf("buttons (-want +got):\n%s", diff)
	}

	m.mu.Lock()
	m.listErr = nil
	m.mu.Unlock()
	b.handleCallback(ctx, makeCallback("retry"))
	requireContains(t, api.lastText(), "1. item 2")
	requireContains(t, api.lastText(), "That's everything.")
}

func TestLoadMoreErrorKeepsPage(t *testing.T) {
	ctx := context.Background()
	m := newFakeMarket(market(5))
	b, api, _ := newTestBot(t, m)

	b.handleCommand(ctx, makeMsg("browse", ""))
	m.mu.Lock()
	m.listErr = &client.HTTPError{Status: 500, Message: "Error fetching listings."}
	m.mu.Unlock()

	b.handleCallback(ctx, makeCallback("more:3"))
	requireContains(t, api.lastText(), "Could not load more listings: Error fetching listings.")
	if diff := cmp.Diff([]string{"more:3"}, api.last().Buttons); diff != "" {
		t.Errorf("retry button (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(3, len(b.chat(testChat).feed.State().Items)); diff != "" {
		t.Errorf("items kept (-want +got):\n%s", diff)
	}

	m.mu.Lock()
	m.listErr = nil
	m.mu.Unlock()
	b.handleCallback(ctx, makeCallback("more:3"))
	requireContains(t, api.lastText(), "4. item 2")
}

func TestEmptyFeed(t *testing.T) {
	b, api, _ := newTestBot(t, newFakeMarket(nil))
	b.handleCommand(context.Background(), makeMsg("browse", ""))
	requireContains(t, api.lastText(), "No listings yet")
}

func TestPreviewCallbacks(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, newFakeMarket(market(3)))
	b.handleCommand(ctx, makeMsg("browse", ""))

	b.handleCallback(ctx, makeCallback("view:l2"))
	requireContains(t, api.lastText(), "Item 2\n₦2,000")
	requireContains(t, api.lastText(), "https://market.example.com/listing/l2")
	if diff := cmp.Diff([]string{"close"}, api.last().Buttons); diff != "" {
		t.Errorf("preview buttons (-want +got):\n%s", diff)
	}

	b.handleCallback(ctx, makeCallback("close"))
	if b.chat(testChat).feed.Preview() != nil {
		t.Error("preview still selected after close")
	}
	if diff := cmp.Diff([]int{42}, api.deleted); diff != "" {
		t.Errorf("deleted messages (-want +got):\n%s", diff)
	}

	api.reset()
	b.handleCallback(ctx, makeCallback("view:gone"))
	requireContains(t, api.lastCallbackText(), "no longer in your feed")
	if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}
}

func TestViewCommand(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, newFakeMarket(market(2)))

	b.handleCommand(ctx, makeMsg("view", "l1"))
	requireContains(t, api.lastText(), "Item 1")

	b.handleCommand(ctx, makeMsg("view", "nope"))
	requireContains(t, api.lastText(), "Listing not found.")

	b.handleCommand(ctx, makeMsg("view", ""))
	requireContains(t, api.lastText(), "Usage: /view")
}

func TestAccountFlow(t *testing.T) {
	ctx := context.Background()
	m := newFakeMarket(market(1))
	b, api, store := newTestBot(t, m)

	b.handleCommand(ctx, makeMsg("post", "Desk | 5000 | LASU | furniture"))
	requireContains(t, api.lastText(), "You are not logged in")

	b.handleCommand(ctx, makeMsg("login", "ada@unilag.edu.ng wrong"))
	requireContains(t, api.lastText(), "Login failed: Invalid email or password.")

	b.handleCommand(ctx, makeMsg("login", "ada@unilag.edu.ng "+testPassword))
	requireContains(t, api.lastText(), "Welcome back, Ada!")
	if diff := cmp.Diff([]int{7, 7}, api.deleted); diff != "" {
		t.Errorf("credential messages not deleted (-want +got):\n%s", diff)
	}
	token, err := store.ChatToken(ctx, testChat)
	if err != nil {
		t.Fatalf("stored token: %v", err)
	}
	if diff := cmp.Diff("tok-ada@unilag.edu.ng", token); diff != "" {
		t.Errorf("token (-want +got):\n%s", diff)
	}

	b.handleCommand(ctx, makeMsg("whoami", ""))
	requireContains(t, api.lastText(), "Ada <ada@unilag.edu.ng>")

	b.handleCommand(ctx, makeMsg("post", "Desk | 5000 | LASU | furniture | Sturdy"))
	requireContains(t, api.lastText(), "Listing posted!\nDesk\n/view new-1")

	b.handleCommand(ctx, makeMsg("whatsapp", "+2348012345678"))
	requireContains(t, api.lastText(), "WhatsApp number updated.")

	b.handleCommand(ctx, makeMsg("mylistings", ""))
	requireContains(t, api.lastText(), "Ada's listings (WhatsApp +2348012345678)")
	requireContains(t, api.lastText(), "1. Desk, ₦5,000")

	b.handleCommand(ctx, makeMsg("logout", ""))
	requireContains(t, api.lastText(), "You are logged out.")
	if _, err := store.ChatToken(ctx, testChat); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected token to be deleted, got %v", err)
	}
	b.handleCommand(ctx, makeMsg("whoami", ""))
	requireContains(t, api.lastText(), "You are not logged in")
}

func TestSignup(t *testing.T) {
	b, api, _ := newTestBot(t, newFakeMarket(nil))
	b.handleCommand(context.Background(), makeMsg("signup", "Chidi | chidi@lasu.edu.ng | hunter22"))
	requireContains(t, api.lastText(), "Account created. Welcome, Chidi!")

	b.handleCommand(context.Background(), makeMsg("signup", "Chidi"))
	requireContains(t, api.lastText(), "usage: /signup")
}

func TestStoredTokenIsRestored(t *testing.T) {
	ctx := context.Background()
	m := newFakeMarket(nil)
	res := m.issue("Ada", "ada@unilag.edu.ng")
	b, api, store := newTestBot(t, m)
	if err := store.SaveChatToken(ctx, testChat, res.Token); err != nil {
		t.Fatalf("save token: %v", err)
	}

	b.handleCommand(ctx, makeMsg("whoami", ""))
	requireContains(t, api.lastText(), "Ada <ada@unilag.edu.ng>")
}

func TestRejectedTokenIsForgotten(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, newFakeMarket(nil))
	if err := store.SaveChatToken(ctx, testChat, "revoked"); err != nil {
		t.Fatalf("save token: %v", err)
	}

	b.handleCommand(ctx, makeMsg("mylistings", ""))
	requireContains(t, api.lastText(), "You are not logged in")
	if _, err := store.ChatToken(ctx, testChat); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected rejected token to be deleted, got %v", err)
	}
}

func TestChatTokens(t *testing.T) {
	ctx := context.Background()
	_, _, store := newTestBot(t, newFakeMarket(nil))
	tokens := &chatTokens{store: store, chatID: testChat}

	if _, err := tokens.Token(ctx); !errors.Is(err, session.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if err := tokens.SaveToken(ctx, "abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := tokens.Token(ctx)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if diff := cmp.Diff("abc", got); diff != "" {
		t.Errorf("token (-want +got):\n%s", diff)
	}
	if err := tokens.DeleteToken(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tokens.Token(ctx); !errors.Is(err, session.ErrNoToken) {
		t.Errorf("expected ErrNoToken after delete, got %v", err)
	}
}

func TestWatchLifecycle(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, newFakeMarket(nil))

	b.handleCommand(ctx, makeMsg("watch", "Cheap books | UNILAG | books"))
	requireContains(t, api.lastText(), "Watch added!\n#1 Cheap books (every 15 min)\nlocation: UNILAG, category: books")
	if diff := cmp.Diff([]string{"rules:1", "unwatch_confirm:1"}, api.last().Buttons); diff != "" {
		t.Errorf("watch buttons (-want +got):\n%s", diff)
	}

	steps := []struct {
		cmd, args, want string
	}{
		{"include", "1 -s title textbook", "Rule R1 added to #1 \"Cheap books\": include textbook (title only)"},
		{"exclude_re", "1 (torn", "Invalid regex"},
		{"exclude", "1 torn", "Rule R2 added"},
		{"rules", "1", "R1: textbook (title only)"},
		{"watches", "", "1 include, 1 exclude rules"},
		{"interval", "1 60", "Watch #1 interval set to 60 min."},
		{"pause", "1", "Watch #1 \"Cheap books\" paused."},
		{"resume", "#1", "Watch #1 \"Cheap books\" resumed."},
		{"rmrule", "R2", "Rule R2 removed from #1"},
		{"include", "9 word", "Watch #9 not found."},
		{"rmrule", "77", "Rule R77 not found."},
		{"unwatch", "1", "Watch #1 \"Cheap books\" deleted."},
		{"watches", "", "no saved searches"},
	}
	for _, s := range steps {
		b.handleCommand(ctx, makeMsg(s.cmd, s.args))
		requireContains(t, api.lastText(), s.want)
	}

	w, err := store.ListWatches(ctx, testChat)
	if err != nil {
		t.Fatalf("list watches: %v", err)
	}
	if diff := cmp.Diff(0, len(w)); diff != "" {
		t.Errorf("watches left (-want +got):\n%s", diff)
	}
}

func TestWatchBelongsToChat(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, newFakeMarket(nil))
	other := &model.Watch{ChatID: 999, Name: "Theirs", IntervalMinutes: 15, IsActive: true}
	if err := store.CreateWatch(ctx, other); err != nil {
		t.Fatalf("create watch: %v", err)
	}

	b.handleCommand(ctx, makeMsg("unwatch", fmt.Sprint(other.ID)))
	requireContains(t, api.lastText(), "not found")
	if _, err := store.GetWatch(ctx, other.ID); err != nil {
		t.Errorf("other chat's watch was deleted: %v", err)
	}
}

func TestHandleCheck(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, newFakeMarket(market(4)))
	w := seedWatch(t, store, "Unilag", model.Filters{Location: "UNILAG"})

	b.handleCallback(ctx, makeCallback(fmt.Sprintf("check:%d", w.ID)))
	texts := api.allTexts()
	if diff := cmp.Diff(3, len(texts)); diff != "" {
		t.Fatalf("message count (-want +got):\n%s\n%v", diff, texts)
	}
	requireContains(t, texts[0], "/view l1")
	requireContains(t, texts[1], "/view l3")
	requireContains(t, texts[2], "Found 2 new listing(s)")

	api.reset()
	b.handleCommand(ctx, makeMsg("check", fmt.Sprint(w.ID)))
	requireContains(t, api.lastText(), "No new matching listings")
}

func TestHandleCheckAppliesRules(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, newFakeMarket(market(4)))
	w := seedWatch(t, store, "All", model.Filters{})
	if err := store.CreateRule(ctx, &model.Rule{WatchID: w.ID, Kind: model.RuleIncludeRe, Scope: model.ScopeTitle, Value: `item [24]`}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	b.handleCommand(ctx, makeMsg("check", fmt.Sprint(w.ID)))
	texts := api.allTexts()
	if diff := cmp.Diff(3, len(texts)); diff != "" {
		t.Fatalf("message count (-want +got):\n%s\n%v", diff, texts)
	}
	requireContains(t, texts[0], "/view l2")
	requireContains(t, texts[1], "/view l4")
}

// brokenStore fails the seen-listing and rule queries on demand.
type brokenStore struct {
	*storage.SQLite
	rulesErr error
	markErr  error
}

func (s *brokenStore) ListRules(ctx context.Context, watchID int64) ([]model.Rule, error) {
	if s.rulesErr != nil {
		return nil, s.rulesErr
	}
	return s.SQLite.ListRules(ctx, watchID)
}

func (s *brokenStore) MarkSeen(ctx context.Context, watchID int64, listingID string) error {
	if s.markErr != nil {
		return s.markErr
	}
	return s.SQLite.MarkSeen(ctx, watchID, listingID)
}

func TestHandleCheckStorageErrors(t *testing.T) {
	tests := []struct {
		name      string
		store     brokenStore
		wantTexts []string
		wantLog   string
	}{
		{
			name:      "rules unavailable",
			store:     brokenStore{rulesErr: errors.New("database is locked")},
			wantTexts: []string{"Could not load rules for #1. Try again later."},
			wantLog:   "list rules",
		},
		{
			name:      "seen marker not saved",
			store:     brokenStore{markErr: errors.New("disk full")},
			wantTexts: []string{"/view l1", "/view l3", "Found 2 new listing(s)"},
			wantLog:   "mark seen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			_, _, sqlite := newTestBot(t, newFakeMarket(nil))
			w := seedWatch(t, sqlite, "Unilag", model.Filters{Location: "UNILAG"})

			store := tt.store
			store.SQLite = sqlite
			var logs bytes.Buffer
			api := &mockAPI{}
			cfg := &config.Config{PageSize: 3, PublicURL: "https://market.example.com"}
			b := newBot(api, &store, newFakeMarket(market(4)), cfg, slog.New(slog.NewTextHandler(&logs, nil)))

			b.handleCommand(ctx, makeMsg("check", fmt.Sprint(w.ID)))
			texts := api.allTexts()
			if diff := cmp.Diff(len(tt.wantTexts), len(texts)); diff != "" {
				t.Fatalf("message count (-want +got):\n%s\n%v", diff, texts)
			}
			for i, want := range tt.wantTexts {
				requireContains(t, texts[i], want)
			}
			requireContains(t, logs.String(), tt.wantLog)
		})
	}
}

func TestUnwatchConfirmation(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, newFakeMarket(nil))
	w := seedWatch(t, store, "Books", model.Filters{})

	b.handleCallback(ctx, makeCallback(fmt.Sprintf("unwatch_confirm:%d", w.ID)))
	requireContains(t, api.lastText(), "This cannot be undone.")
	if diff := cmp.Diff([]string{fmt.Sprintf("unwatch:%d", w.ID), "noop"}, api.last().Buttons); diff != "" {
		t.Errorf("confirmation buttons (-want +got):\n%s", diff)
	}

	b.handleCallback(ctx, makeCallback(fmt.Sprintf("unwatch:%d", w.ID)))
	requireContains(t, api.lastText(), "deleted")
}

func TestHandleUpdateAccess(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, newFakeMarket(market(2)))
	b.cfg.AllowedUsers = []int64{1}

	denied := makeMsg("browse", "")
	denied.From = &tgbotapi.User{ID: 2}
	b.handleUpdate(ctx, tgbotapi.Update{Message: denied})
	requireContains(t, api.lastText(), "Access denied.")

	cb := makeCallback("more:0")
	cb.From = &tgbotapi.User{ID: 2}
	b.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: cb})
	requireContains(t, api.lastCallbackText(), "Access denied.")

	b.handleUpdate(ctx, tgbotapi.Update{Message: makeMsg("browse", "")})
	requireContains(t, api.lastText(), "1. item 2")

	plain := &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: testChat}, Text: "hello"}
	api.reset()
	b.handleUpdate(ctx, tgbotapi.Update{Message: plain})
	if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
		t.Errorf("non-command produced replies (-want +got):\n%s", diff)
	}
}

func TestUnknownCommand(t *testing.T) {
	b, api, _ := newTestBot(t, newFakeMarket(nil))
	b.handleCommand(context.Background(), makeMsg("frobnicate", ""))
	requireContains(t, api.lastText(), "Unknown command")
}

func TestNotice(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "network", err: fmt.Errorf("x: %w", client.ErrNetwork), want: "the marketplace is unreachable, check your connection"},
		{name: "unauthenticated", err: client.ErrUnauthenticated, want: "you need to log in again"},
		{name: "malformed", err: client.ErrMalformedResponse, want: "the marketplace sent an unexpected response"},
		{name: "http with message", err: &client.HTTPError{Status: 409, Message: "Email already registered"}, want: "Email already registered"},
		{name: "http without message", err: &client.HTTPError{Status: 502}, want: "the marketplace answered with status 502"},
		{name: "other", err: errors.New("boom"), want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, notice(tt.err)); diff != "" {
				t.Errorf("notice mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
