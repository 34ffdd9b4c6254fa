package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/srvmarket/srvchat/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
	if result.Recovered {
		t.Error("clean schema reported as recovered")
	}
}

func TestMigrateRecoversDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}

	result, err := db.Migrate()
	if err != nil {
		t.Fatalf("Migrate on dirty schema: %v", err)
	}
	if !result.Recovered || !result.Changed {
		t.Errorf("result = %+v, want recovered and changed", result)
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}

	again, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if again.Recovered || again.Changed {
		t.Errorf("second run = %+v, want no-op", again)
	}
}

func TestOpenMigrated(t *testing.T) {
	db, res, err := OpenMigrated(filepath.Join(t.TempDir(), "srvchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if !res.Changed {
		t.Error("fresh database should report Changed=true")
	}
}

func sampleSummaries() []chat.EnhancedConversationSummary {
	last := time.Unix(1700000100, 0)
	return []chat.EnhancedConversationSummary{
		{
			ConversationSummary: chat.ConversationSummary{
				Conversation: chat.Conversation{
					ID: "c2", ClientID: "viewer", ProviderID: "p1",
					CreatedAt: time.Unix(1700000000, 0), LastMessageAt: &last, IsActive: true,
					UnreadCount: map[string]int{"viewer": 3, "p1": 0},
				},
				LastMessage: &chat.Message{
					ID: "m9", ConversationID: "c2", SenderID: "p1", ReceiverID: "viewer",
					Kind: chat.KindText, Content: "see you at 3", Status: chat.StatusDelivered,
					CreatedAt: last,
				},
			},
			OtherUserID: "p1", OtherUserName: "Pia", OtherUserAvatar: "https://img/p1.png",
		},
		{
			ConversationSummary: chat.ConversationSummary{
				Conversation: chat.Conversation{ID: "c1", ClientID: "c7", ProviderID: "viewer"},
			},
			OtherUserID: "c7", OtherUserName: "User c7",
		},
	}
}

func TestSaveAndLoadSummaries(t *testing.T) {
	db := testDB(t)
	if err := db.SaveSummaries("viewer", sampleSummaries()); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadSummaries("viewer")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	if got[0].Conversation.ID != "c2" || got[1].Conversation.ID != "c1" {
		t.Errorf("order = [%s %s], want [c2 c1]", got[0].Conversation.ID, got[1].Conversation.ID)
	}

	first := got[0]
	if first.OtherUserName != "Pia" || first.OtherUserAvatar != "https://img/p1.png" {
		t.Errorf("display = %q %q", first.OtherUserName, first.OtherUserAvatar)
	}
	if first.Conversation.UnreadFor("viewer") != 3 {
		t.Errorf("unread = %d, want 3", first.Conversation.UnreadFor("viewer"))
	}
	if first.Conversation.LastMessageAt == nil || first.Conversation.LastMessageAt.Unix() != 1700000100 {
		t.Errorf("LastMessageAt = %v", first.Conversation.LastMessageAt)
	}
	if !first.Conversation.IsActive {
		t.Error("IsActive lost")
	}
	if first.LastMessage == nil || first.LastMessage.Content != "see you at 3" || first.LastMessage.Status != chat.StatusDelivered {
		t.Errorf("LastMessage = %+v", first.LastMessage)
	}

	second := got[1]
	if second.LastMessage != nil {
		t.Errorf("LastMessage = %+v, want nil", second.LastMessage)
	}
	if second.Conversation.LastMessageAt != nil {
		t.Errorf("LastMessageAt = %v, want nil", second.Conversation.LastMessageAt)
	}
}

func TestSaveSummariesReplaces(t *testing.T) {
	db := testDB(t)
	if err := db.SaveSummaries("viewer", sampleSummaries()); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSummaries("viewer", sampleSummaries()[1:]); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadSummaries("viewer")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Conversation.ID != "c1" {
		t.Fatalf("got %+v, want only c1", got)
	}

	// Unread rows of the dropped conversation cascade away.
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM unread_counts WHERE viewer_id = 'viewer'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("unread rows = %d, want 0", n)
	}
}

func TestSummariesArePerViewer(t *testing.T) {
	db := testDB(t)
	if err := db.SaveSummaries("a", sampleSummaries()); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadSummaries("b")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("viewer b sees %d summaries", len(got))
	}
}

func TestSaveAndListMessages(t *testing.T) {
	db := testDB(t)
	base := time.Unix(1700000000, 0)
	msgs := []chat.Message{
		{ID: "m1", SenderID: "a", ReceiverID: "b", Kind: chat.KindText, Content: "one", Status: chat.StatusRead, CreatedAt: base},
		{ID: "m2", SenderID: "b", ReceiverID: "a", Kind: chat.KindFile, Content: "", Status: chat.StatusSent, CreatedAt: base.Add(time.Minute),
			Attachment: &chat.FileAttachment{Name: "quote.pdf", Size: 2048, MimeType: "application/pdf", URL: "https://files/q"}},
		{ID: "m3", SenderID: "a", ReceiverID: "b", Kind: chat.KindText, Content: "three", Status: chat.StatusSent, CreatedAt: base.Add(2 * time.Minute)},
	}
	if err := db.SaveMessages("a", "c1", msgs); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListMessages("a", "c1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "m2" || got[1].ID != "m3" {
		t.Fatalf("got %v, want newest two oldest first [m2 m3]", got)
	}
	if got[0].ConversationID != "c1" {
		t.Errorf("ConversationID = %q", got[0].ConversationID)
	}
	if a := got[0].Attachment; a == nil || a.Name != "quote.pdf" || a.Size != 2048 {
		t.Errorf("attachment = %+v", a)
	}
	if got[1].Attachment != nil {
		t.Errorf("text message has attachment %+v", got[1].Attachment)
	}

	// Upsert is idempotent and updates status.
	msgs[2].Status = chat.StatusRead
	if err := db.SaveMessages("a", "c1", msgs[2:]); err != nil {
		t.Fatal(err)
	}
	got, err = db.ListMessages("a", "c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[2].Status != chat.StatusRead {
		t.Errorf("status = %s, want read", got[2].Status)
	}
}

func TestListMessagesEmpty(t *testing.T) {
	db := testDB(t)
	got, err := db.ListMessages("a", "none", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty non-nil", got)
	}
}

func TestClear(t *testing.T) {
	db := testDB(t)
	if err := db.SaveSummaries("a", sampleSummaries()); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSummaries("b", sampleSummaries()); err != nil {
		t.Fatal(err)
	}
	if err := db.Clear("a"); err != nil {
		t.Fatal(err)
	}

	for viewer, want := range map[string]int{"a": 0, "b": 2} {
		got, err := db.LoadSummaries(viewer)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != want {
			t.Errorf("viewer %s: %d summaries, want %d", viewer, len(got), want)
		}
	}
	msgs, err := db.ListMessages("a", "c2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("viewer a still has %d messages", len(msgs))
	}
}
