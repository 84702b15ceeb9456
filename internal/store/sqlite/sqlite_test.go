package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/drixzor/drode/internal/store"
)

func newDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

func TestEnsureSchemaIdempotentOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "drode.db")
	db, err := New(path)
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	defer func() { _ = db.Close() }()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := db.EnsureSchema(ctx); err != nil {
			t.Fatalf("ensure schema (run %d): %v", i+1, err)
		}
	}
}

func TestNewEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSettings(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetSetting(ctx, store.SettingDangerousMode); err != nil || ok {
		t.Fatalf("unset setting: ok=%v err=%v", ok, err)
	}

	for _, v := range []string{"true", "false"} {
		if err := db.SetSetting(ctx, store.SettingDangerousMode, v); err != nil {
			t.Fatalf("set %s: %v", v, err)
		}
	}
	v, ok, err := db.GetSetting(ctx, store.SettingDangerousMode)
	if err != nil || !ok || v != "false" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}

	if err := db.DeleteSetting(ctx, store.SettingDangerousMode); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := db.GetSetting(ctx, store.SettingDangerousMode); ok {
		t.Fatal("setting still present")
	}
}

func TestRecentProjectsCappedAndOrdered(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := db.TouchRecentProject(ctx, fmt.Sprintf("/p/%d", i)); err != nil {
			t.Fatalf("touch %d: %v", i, err)
		}
	}
	list, err := db.TouchRecentProject(ctx, "/p/5")
	if err != nil {
		t.Fatalf("touch /p/5: %v", err)
	}
	want := []string{"/p/5", "/p/11", "/p/10", "/p/9", "/p/8", "/p/7", "/p/6", "/p/4", "/p/3", "/p/2"}
	if len(want) != store.MaxRecentProjects {
		t.Fatalf("fixture assumes a cap of %d", store.MaxRecentProjects)
	}
	if !reflect.DeepEqual(list, want) {
		t.Fatalf("list = %v, want %v", list, want)
	}

	// moving an entry from the middle must not reorder the rest
	list, err = db.TouchRecentProject(ctx, "/p/8")
	if err != nil {
		t.Fatalf("touch /p/8: %v", err)
	}
	want = []string{"/p/8", "/p/5", "/p/11", "/p/10", "/p/9", "/p/7", "/p/6", "/p/4", "/p/3", "/p/2"}
	if !reflect.DeepEqual(list, want) {
		t.Fatalf("list = %v, want %v", list, want)
	}

	list, err = db.RemoveRecentProject(ctx, "/p/11")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	want = []string{"/p/8", "/p/5", "/p/10", "/p/9", "/p/7", "/p/6", "/p/4", "/p/3", "/p/2"}
	if !reflect.DeepEqual(list, want) {
		t.Fatalf("list = %v, want %v", list, want)
	}

	again, err := db.RecentProjects(ctx)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if !reflect.DeepEqual(again, list) {
		t.Fatalf("reloaded %v, want %v", again, list)
	}
}

func TestConversationsLifecycle(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	first, err := db.CreateConversation(ctx, "/proj", "First")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := db.CreateConversation(ctx, "/proj", "Second")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if active, err := db.ActiveConversation(ctx, "/proj"); err != nil || active != second.ID {
		t.Fatalf("active = %q, %v", active, err)
	}

	msgs := []store.Message{
		{Role: store.RoleUser, Content: "how do I deploy", Timestamp: 1},
		{ID: "m2", Role: store.RoleAssistant, Content: "run the deploy script", Timestamp: 2, ToolUses: json.RawMessage(`[{"name":"bash"}]`)},
	}
	if err := db.SaveMessages(ctx, first.ID, msgs); err != nil {
		t.Fatalf("save: %v", err)
	}

	conv, got, err := db.GetConversation(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.Name != "First" || conv.IsActive {
		t.Fatalf("conversation %+v", conv)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages", len(got))
	}
	if got[0].ID == "" || got[1].ID != "m2" {
		t.Fatalf("ids %q %q", got[0].ID, got[1].ID)
	}
	if string(got[1].ToolUses) != `[{"name":"bash"}]` {
		t.Fatalf("tool uses %s", got[1].ToolUses)
	}
	if got[0].Metadata != nil {
		t.Fatalf("metadata %s", got[0].Metadata)
	}

	list, err := db.ListConversations(ctx, "/proj")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d conversations", len(list))
	}
	counts := map[string]int{}
	for _, c := range list {
		counts[c.ID] = c.MessageCount
	}
	if counts[first.ID] != 2 {
		t.Fatalf("message count %d", counts[first.ID])
	}

	if err := db.SetActiveConversation(ctx, "/proj", first.ID); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if active, _ := db.ActiveConversation(ctx, "/proj"); active != first.ID {
		t.Fatalf("active = %q", active)
	}
	if err := db.SetActiveConversation(ctx, "/other", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("activate in other project: %v", err)
	}

	if err := db.RenameConversation(ctx, first.ID, "Renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := db.RenameConversation(ctx, "missing", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rename missing: %v", err)
	}

	if err := db.DeleteConversation(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := db.GetConversation(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get deleted: %v", err)
	}
	if active, _ := db.ActiveConversation(ctx, "/proj"); active != "" {
		t.Fatalf("active after delete = %q", active)
	}
}

func TestSaveMessagesValidation(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	c, err := db.CreateConversation(ctx, "/proj", "c")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := db.SaveMessages(ctx, c.ID, []store.Message{{Role: "robot", Content: "x"}}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("bad role: %v", err)
	}
	if err := db.SaveMessages(ctx, "missing", nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing conversation: %v", err)
	}
}

func TestSearchMessages(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	c, err := db.CreateConversation(ctx, "/proj", "Deploys")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := db.CreateConversation(ctx, "/elsewhere", "Other")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.SaveMessages(ctx, c.ID, []store.Message{
		{ID: "a", Role: store.RoleUser, Content: "the kubernetes rollout failed", Timestamp: 1},
		{ID: "b", Role: store.RoleAssistant, Content: "try restarting the pods", Timestamp: 2},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveMessages(ctx, other.ID, []store.Message{
		{ID: "c", Role: store.RoleUser, Content: "kubernetes elsewhere", Timestamp: 1},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	hits, err := db.SearchMessages(ctx, "/proj", "kubernetes", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].MessageID != "a" || hits[0].ConversationName != "Deploys" {
		t.Fatalf("hit %+v", hits[0])
	}
	if !strings.Contains(hits[0].Snippet, "<mark>kubernetes</mark>") {
		t.Fatalf("snippet %q", hits[0].Snippet)
	}

	// replacing messages keeps the index in sync
	if err := db.SaveMessages(ctx, c.ID, []store.Message{{ID: "d", Role: store.RoleUser, Content: "nothing here", Timestamp: 3}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if hits, err := db.SearchMessages(ctx, "/proj", "kubernetes", 0); err != nil || len(hits) != 0 {
		t.Fatalf("stale hits %+v, %v", hits, err)
	}

	if hits, err := db.SearchMessages(ctx, "/proj", `  `, 0); err != nil || len(hits) != 0 {
		t.Fatalf("blank query %+v, %v", hits, err)
	}
	if _, err := db.SearchMessages(ctx, "/proj", `weird"quote AND`, 0); err != nil {
		t.Fatalf("query with syntax characters: %v", err)
	}
}

func TestActivityQueryAndPurge(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	var ids []int64
	for i := 0; i < 5; i++ {
		cat := "terminal"
		if i%2 == 1 {
			cat = "git"
		}
		ev, err := db.InsertActivity(ctx, store.ActivityEvent{
			ProjectPath: "/proj", Category: cat, EventType: "run", Title: fmt.Sprint("e", i),
			Detail: json.RawMessage(`{"i":1}`), CreatedAt: base + int64(i),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if ev.Severity != "info" || ev.EventID == "" {
			t.Fatalf("defaults not applied: %+v", ev)
		}
		ids = append(ids, ev.ID)
	}
	if _, err := db.InsertActivity(ctx, store.ActivityEvent{ProjectPath: "/other", Category: "terminal", EventType: "run", Title: "x", CreatedAt: base}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	all, err := db.QueryActivity(ctx, store.ActivityQuery{ProjectPath: "/proj"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 5 || all[0].Title != "e4" {
		t.Fatalf("all = %+v", all)
	}

	if git, err := db.QueryActivity(ctx, store.ActivityQuery{ProjectPath: "/proj", Category: "git"}); err != nil || len(git) != 2 {
		t.Fatalf("git = %+v, %v", git, err)
	}

	page, err := db.QueryActivity(ctx, store.ActivityQuery{ProjectPath: "/proj", BeforeID: ids[3], Limit: 2})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 || page[0].Title != "e2" || page[1].Title != "e1" {
		t.Fatalf("page = %+v", page)
	}

	if n, err := db.PurgeActivityBefore(ctx, base+2); err != nil || n != 3 {
		t.Fatalf("purge = %d, %v", n, err)
	}
	if n, err := db.ClearActivity(ctx, "/proj"); err != nil || n != 3 {
		t.Fatalf("clear = %d, %v", n, err)
	}
}

func TestTokens(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	if _, err := db.GetToken(ctx, "github"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing token: %v", err)
	}

	exp := int64(1_900_000_000)
	if err := db.PutToken(ctx, store.OAuthToken{
		Provider: "github", AccessToken: "gho_1", Scope: "repo,user", ExpiresAt: &exp,
		AccountInfo: json.RawMessage(`{"username":"octo"}`),
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.PutToken(ctx, store.OAuthToken{Provider: "github", AccessToken: "gho_2"}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	tok, err := db.GetToken(ctx, "github")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tok.AccessToken != "gho_2" || tok.ExpiresAt != nil || tok.AccountInfo != nil || tok.UpdatedAt == 0 {
		t.Fatalf("token %+v", tok)
	}

	providers, err := db.TokenProviders(ctx)
	if err != nil || !reflect.DeepEqual(providers, []string{"github"}) {
		t.Fatalf("providers = %v, %v", providers, err)
	}

	if err := db.DeleteToken(ctx, "github"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetToken(ctx, "github"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted token: %v", err)
	}
}
