package relay

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/domain"
	domrelay "github.com/kotoba-cloud/lingorelay/internal/domain/relay"
	"github.com/kotoba-cloud/lingorelay/internal/repository/settings"
	"github.com/kotoba-cloud/lingorelay/internal/usecase/planner"
)

// --- Mocks ---

type mockSettings struct {
	cfg     settings.Relay
	loadErr error
	saved   *settings.Relay
}

func (m *mockSettings) Load(context.Context) (settings.Relay, error) { return m.cfg, m.loadErr }

func (m *mockSettings) Save(_ context.Context, cfg settings.Relay) error {
	m.saved = &cfg
	m.cfg = cfg
	return nil
}

type mockRecords struct {
	recs      map[string]domrelay.Record
	upsertErr error
}

func newMockRecords() *mockRecords {
	return &mockRecords{recs: map[string]domrelay.Record{}}
}

func (m *mockRecords) Lookup(_ context.Context, id string) (domrelay.Record, error) {
	rec, ok := m.recs[id]
	if !ok {
		return domrelay.Record{}, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (m *mockRecords) Upsert(_ context.Context, id string, rec domrelay.Record) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.recs[id] = rec
	return nil
}

func (m *mockRecords) Remove(_ context.Context, id string) error {
	delete(m.recs, id)
	return nil
}

type mockPlanner struct {
	out      planner.Outcome
	err      error
	calls    int
	lastText string
}

func (m *mockPlanner) Plan(_ context.Context, text string) (planner.Outcome, error) {
	m.calls++
	m.lastText = text
	return m.out, m.err
}

type sentPost struct {
	channelID string
	post      Post
}

type mockBroadcaster struct {
	sends     []sentPost
	sendErr   error
	edits     []string
	editErr   error
	deletes   []string
	deleteErr error
}

func (m *mockBroadcaster) Send(_ context.Context, channelID string, post Post) (Delivery, error) {
	if m.sendErr != nil {
		return Delivery{}, m.sendErr
	}
	m.sends = append(m.sends, sentPost{channelID, post})
	return Delivery{MessageID: "mirror-1", BroadcasterID: "hook-1"}, nil
}

func (m *mockBroadcaster) Edit(_ context.Context, _, messageID, content string) error {
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, messageID+":"+content)
	return nil
}

func (m *mockBroadcaster) Delete(_ context.Context, _, messageID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, messageID)
	return nil
}

func newTestService(st *mockSettings, recs *mockRecords, pl *mockPlanner, bc *mockBroadcaster) *Service {
	return New(st, recs, pl, bc, "🇯🇵", "🇺🇸", zap.NewNop())
}

func enabledSettings() *mockSettings {
	return &mockSettings{cfg: settings.Relay{Enabled: true, ChannelID: "chan-1"}}
}

func userMessage(id, content string) domain.Message {
	return domain.Message{
		ID: id, ChannelID: "chan-1",
		AuthorID: "user-1", AuthorName: "Alice",
		AuthorAvatarURL: "https://cdn.example/alice.png",
		Content:         content,
	}
}

// --- Create ---

func TestHandleCreate_MirrorsAndStores(t *testing.T) {
	recs := newMockRecords()
	pl := &mockPlanner{out: planner.Outcome{
		Home: "こんにちは", Complementary: "Hello", DetectedSourceLang: "JA",
	}}
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), recs, pl, bc)

	res, err := svc.HandleCreate(context.Background(), userMessage("msg-1", "こんにちは"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res != ResultMirrored {
		t.Fatalf("expected mirrored, got %s", res)
	}

	if len(bc.sends) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(bc.sends))
	}
	sent := bc.sends[0]
	if sent.channelID != "chan-1" {
		t.Errorf("dispatched to wrong channel %q", sent.channelID)
	}
	if sent.post.Content != "🇯🇵 こんにちは\n🇺🇸 Hello" {
		t.Errorf("unexpected mirror body %q", sent.post.Content)
	}
	if sent.post.Username != "Alice" || sent.post.AvatarURL == "" {
		t.Errorf("mirror must carry the author identity, got %+v", sent.post)
	}

	rec, ok := recs.recs["msg-1"]
	if !ok {
		t.Fatal("expected a stored relay record")
	}
	if rec.State != domrelay.StateMirrored || rec.MirroredMessageID != "mirror-1" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.OriginalText != "こんにちは" || rec.DetectedSourceLang != "JA" {
		t.Errorf("unexpected record content %+v", rec)
	}
}

func TestHandleCreate_Gates(t *testing.T) {
	tests := []struct {
		name string
		st   *mockSettings
		msg  domain.Message
	}{
		{"relay disabled",
			&mockSettings{cfg: settings.Relay{Enabled: false, ChannelID: "chan-1"}},
			userMessage("m", "hello")},
		{"other channel", enabledSettings(),
			domain.Message{ID: "m", ChannelID: "chan-2", Content: "hello"}},
		{"bot author", enabledSettings(),
			domain.Message{ID: "m", ChannelID: "chan-1", AuthorIsBot: true, Content: "hello"}},
		{"emoji only", enabledSettings(), userMessage("m", "🔥🔥 👍")},
		{"custom emoji only", enabledSettings(), userMessage("m", "<:blob:12345> <a:wave:678>")},
		{"mention only", enabledSettings(), userMessage("m", "<@123> <@!456>")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl := &mockPlanner{}
			bc := &mockBroadcaster{}
			svc := newTestService(tt.st, newMockRecords(), pl, bc)

			res, err := svc.HandleCreate(context.Background(), tt.msg)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if res != ResultSkipped {
				t.Errorf("expected skip, got %s", res)
			}
			if pl.calls != 0 {
				t.Error("planner must not run for gated messages")
			}
			if len(bc.sends) != 0 {
				t.Error("nothing may be dispatched for gated messages")
			}
		})
	}
}

func TestHandleCreate_StripsMentionsBeforePlanning(t *testing.T) {
	pl := &mockPlanner{out: planner.Outcome{Home: "やあ"}}
	svc := newTestService(enabledSettings(), newMockRecords(), pl, &mockBroadcaster{})

	if _, err := svc.HandleCreate(context.Background(), userMessage("m", "<@42>  hello there")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if pl.lastText != "hello there" {
		t.Errorf("planner received %q, want mention-stripped text", pl.lastText)
	}
}

func TestHandleCreate_Redelivery(t *testing.T) {
	recs := newMockRecords()
	recs.recs["msg-1"] = domrelay.Record{State: domrelay.StateMirrored, MirroredMessageID: "mirror-1"}
	pl := &mockPlanner{}
	svc := newTestService(enabledSettings(), recs, pl, &mockBroadcaster{})

	res, err := svc.HandleCreate(context.Background(), userMessage("msg-1", "hello"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res != ResultSkipped || pl.calls != 0 {
		t.Errorf("redelivered create must be a no-op, got %s with %d plans", res, pl.calls)
	}
}

func TestHandleCreate_DispatchFailureLeavesNoRecord(t *testing.T) {
	recs := newMockRecords()
	pl := &mockPlanner{out: planner.Outcome{Home: "やあ"}}
	bc := &mockBroadcaster{sendErr: domain.ErrBroadcasterUnavailable}
	svc := newTestService(enabledSettings(), recs, pl, bc)

	_, err := svc.HandleCreate(context.Background(), userMessage("msg-1", "hi"))
	if !errors.Is(err, domain.ErrBroadcasterUnavailable) {
		t.Fatalf("expected broadcaster error, got %v", err)
	}
	if len(recs.recs) != 0 {
		t.Error("no record may exist after a failed dispatch")
	}
}

func TestHandleCreate_NoTranslation(t *testing.T) {
	pl := &mockPlanner{err: domain.ErrNoTranslationProduced}
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), newMockRecords(), pl, bc)

	_, err := svc.HandleCreate(context.Background(), userMessage("msg-1", "hello"))
	if !errors.Is(err, domain.ErrNoTranslationProduced) {
		t.Fatalf("expected ErrNoTranslationProduced, got %v", err)
	}
	if len(bc.sends) != 0 {
		t.Error("nothing may be dispatched without a translation")
	}
}

// --- Update ---

func mirroredRecord(text, rendered string) domrelay.Record {
	return domrelay.Mirrored("msg-1", "mirror-1", "hook-1", text, rendered, "JA")
}

func TestHandleUpdate_EditsMirror(t *testing.T) {
	recs := newMockRecords()
	recs.recs["msg-1"] = mirroredRecord("こんにちは", "🇯🇵 こんにちは\n🇺🇸 Hello")
	pl := &mockPlanner{out: planner.Outcome{
		Home: "さようなら", Complementary: "Goodbye", DetectedSourceLang: "JA",
	}}
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), recs, pl, bc)

	res, err := svc.HandleUpdate(context.Background(), userMessage("msg-1", "さようなら"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res != ResultUpdated {
		t.Fatalf("expected updated, got %s", res)
	}
	if len(bc.edits) != 1 || bc.edits[0] != "mirror-1:🇯🇵 さようなら\n🇺🇸 Goodbye" {
		t.Errorf("unexpected edits %v", bc.edits)
	}
	if rec := recs.recs["msg-1"]; rec.OriginalText != "さようなら" || rec.RenderedText != "🇯🇵 さようなら\n🇺🇸 Goodbye" {
		t.Errorf("record not reconciled: %+v", rec)
	}
}

func TestHandleUpdate_UnchangedTextIsNoop(t *testing.T) {
	recs := newMockRecords()
	recs.recs["msg-1"] = mirroredRecord("こんにちは", "rendered")
	pl := &mockPlanner{}
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), recs, pl, bc)

	res, err := svc.HandleUpdate(context.Background(), userMessage("msg-1", "こんにちは"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res != ResultSkipped || pl.calls != 0 || len(bc.edits) != 0 {
		t.Errorf("unchanged edit must not retranslate, got %s", res)
	}
}

func TestHandleUpdate_SameRenderSkipsDispatch(t *testing.T) {
	recs := newMockRecords()
	recs.recs["msg-1"] = mirroredRecord("Hello!", "🇯🇵 こんにちは\n🇺🇸 Hello")
	pl := &mockPlanner{out: planner.Outcome{
		Home: "こんにちは", Complementary: "Hello", DetectedSourceLang: "EN",
	}}
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), recs, pl, bc)

	res, err := svc.HandleUpdate(context.Background(), userMessage("msg-1", "Hello !"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res != ResultUpdated {
		t.Fatalf("expected updated, got %s", res)
	}
	if len(bc.edits) != 0 {
		t.Error("identical render must not hit the broadcaster")
	}
	if rec := recs.recs["msg-1"]; rec.OriginalText != "Hello !" {
		t.Errorf("record must track the new original text, got %q", rec.OriginalText)
	}
}

func TestHandleUpdate_EmojiOnlyEditTearsDown(t *testing.T) {
	recs := newMockRecords()
	recs.recs["msg-1"] = mirroredRecord("hello", "rendered")
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), recs, &mockPlanner{}, bc)

	res, err := svc.HandleUpdate(context.Background(), userMessage("msg-1", "👍"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res != ResultRemoved {
		t.Fatalf("expected removed, got %s", res)
	}
	if len(bc.deletes) != 1 || bc.deletes[0] != "mirror-1" {
		t.Errorf("expected mirror deletion, got %v", bc.deletes)
	}
	if _, ok := recs.recs["msg-1"]; ok {
		t.Error("record must be removed with the mirror")
	}
}

func TestHandleUpdate_MissingRecordIgnored(t *testing.T) {
	recs := newMockRecords()
	pl := &mockPlanner{out: planner.Outcome{Home: "やあ", Complementary: "hi"}}
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), recs, pl, bc)

	// No record exists: the message was either never mirrored (relay
	// disabled at creation) or already torn down. Its edit must not
	// resurrect a mirror.
	res, err := svc.HandleUpdate(context.Background(), userMessage("msg-1", "hi"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res != ResultSkipped {
		t.Fatalf("expected skipped, got %s", res)
	}
	if len(bc.sends) != 0 {
		t.Errorf("expected no dispatch, got %d", len(bc.sends))
	}
	if _, ok := recs.recs["msg-1"]; ok {
		t.Error("no relay record must be created")
	}
}

// --- Delete ---

func TestHandleDelete_TearsDown(t *testing.T) {
	recs := newMockRecords()
	recs.recs["msg-1"] = mirroredRecord("hello", "rendered")
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), recs, &mockPlanner{}, bc)

	res, err := svc.HandleDelete(context.Background(), "chan-1", "msg-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res != ResultRemoved {
		t.Fatalf("expected removed, got %s", res)
	}
	if len(bc.deletes) != 1 || bc.deletes[0] != "mirror-1" {
		t.Errorf("expected mirror deletion, got %v", bc.deletes)
	}
	if _, ok := recs.recs["msg-1"]; ok {
		t.Error("record must be gone after teardown")
	}
}

func TestHandleDelete_UnknownMessageIsNoop(t *testing.T) {
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), newMockRecords(), &mockPlanner{}, bc)

	res, err := svc.HandleDelete(context.Background(), "chan-1", "never-mirrored")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res != ResultSkipped || len(bc.deletes) != 0 {
		t.Errorf("expected silent no-op, got %s", res)
	}
}

func TestHandleDelete_BroadcasterFailureKeepsRecord(t *testing.T) {
	recs := newMockRecords()
	recs.recs["msg-1"] = mirroredRecord("hello", "rendered")
	bc := &mockBroadcaster{deleteErr: domain.ErrBroadcasterUnavailable}
	svc := newTestService(enabledSettings(), recs, &mockPlanner{}, bc)

	_, err := svc.HandleDelete(context.Background(), "chan-1", "msg-1")
	if !errors.Is(err, domain.ErrBroadcasterUnavailable) {
		t.Fatalf("expected broadcaster error, got %v", err)
	}
	if _, ok := recs.recs["msg-1"]; !ok {
		t.Error("record must survive a failed teardown for a retry")
	}
}

// --- Configuration ---

func TestConfigure_EnableRequiresChannel(t *testing.T) {
	st := &mockSettings{}
	svc := newTestService(st, newMockRecords(), &mockPlanner{}, &mockBroadcaster{})

	_, err := svc.Configure(context.Background(), true, "")
	if !errors.Is(err, domain.ErrRelayDisabled) {
		t.Fatalf("expected ErrRelayDisabled, got %v", err)
	}
	if st.saved != nil {
		t.Error("invalid configuration must not be saved")
	}
}

func TestConfigure_DisableKeepsChannel(t *testing.T) {
	st := enabledSettings()
	svc := newTestService(st, newMockRecords(), &mockPlanner{}, &mockBroadcaster{})

	cfg, err := svc.Configure(context.Background(), false, "")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if cfg.Enabled || cfg.ChannelID != "chan-1" {
		t.Errorf("disable must keep the stored channel, got %+v", cfg)
	}
}

func TestConfigure_EnableOnNewChannel(t *testing.T) {
	st := &mockSettings{}
	svc := newTestService(st, newMockRecords(), &mockPlanner{}, &mockBroadcaster{})

	cfg, err := svc.Configure(context.Background(), true, "chan-9")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !cfg.Enabled || cfg.ChannelID != "chan-9" {
		t.Errorf("unexpected configuration %+v", cfg)
	}
	if st.saved == nil || st.saved.ChannelID != "chan-9" {
		t.Error("configuration must be persisted")
	}
}

// --- Quota warning ---

func TestQuotaWarning_PostsToRelayChannel(t *testing.T) {
	bc := &mockBroadcaster{}
	svc := newTestService(enabledSettings(), newMockRecords(), &mockPlanner{}, bc)

	svc.QuotaWarning(context.Background(), 460000, 500000)

	if len(bc.sends) != 1 {
		t.Fatalf("expected 1 warning post, got %d", len(bc.sends))
	}
	if bc.sends[0].channelID != "chan-1" {
		t.Errorf("warning posted to wrong channel %q", bc.sends[0].channelID)
	}
	if bc.sends[0].post.Content == "" {
		t.Error("warning post must carry content")
	}
}

func TestQuotaWarning_SilentWhenDisabled(t *testing.T) {
	bc := &mockBroadcaster{}
	st := &mockSettings{cfg: settings.Relay{Enabled: false, ChannelID: "chan-1"}}
	svc := newTestService(st, newMockRecords(), &mockPlanner{}, bc)

	svc.QuotaWarning(context.Background(), 460000, 500000)

	if len(bc.sends) != 0 {
		t.Error("warning must not be posted while the relay is disabled")
	}
}
