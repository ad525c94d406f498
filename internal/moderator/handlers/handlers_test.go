// internal/moderator/handlers/handlers_test.go
package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// createTestLogger создает logger для тестов
func createTestLogger(t *testing.T) *logging.Logger {
	config := logging.Config{
		Level:  "error",
		Format: "json",
		Output: "stdout",
	}
	logger, err := logging.NewLogger(config)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// recordingExecutor запоминает выполненные действия
type recordingExecutor struct {
	mu      sync.Mutex
	actions []models.ProcessingAction
}

func (r *recordingExecutor) Execute(_ context.Context, _ int64, action models.ProcessingAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *recordingExecutor) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a.ActionType())
	}
	return out
}

// fakeEvaluator возвращает фиксированный набор действий
type fakeEvaluator struct {
	actions []models.ProcessingAction
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ *models.Event) []models.ProcessingAction {
	return f.actions
}

// fakeSink запоминает записи об изменении состава
type fakeSink struct {
	records []models.MembershipRecord
	err     error
}

func (f *fakeSink) RecordMembershipEvent(_ context.Context, record models.MembershipRecord) error {
	f.records = append(f.records, record)
	return f.err
}

func groupEvent() *models.Event {
	return &models.Event{
		TS:     time.Now(),
		Chat:   models.Chat{ID: 100, Type: models.ChatTypeSupergroup},
		Sender: &models.User{ID: 7, DisplayName: "Test User"},
	}
}

func TestMembershipHandler_WelcomesJoined(t *testing.T) {
	sink := &fakeSink{}
	handler := NewMembershipHandler(createTestLogger(t), sink)

	event := groupEvent()
	event.Membership = &models.Membership{
		Joined: []models.User{{ID: 1, DisplayName: "Алиса"}},
	}

	if !handler.Matches(event) {
		t.Fatal("Handler should match a join event")
	}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	var welcome *models.SendMessageAction
	for _, a := range actions {
		if send, ok := a.(models.SendMessageAction); ok {
			welcome = &send
		}
	}
	if welcome == nil {
		t.Fatal("Expected a welcome message")
	}
	if !strings.Contains(welcome.Text, "Алиса") {
		t.Errorf("Welcome text should mention the member: %q", welcome.Text)
	}

	if len(sink.records) != 1 || sink.records[0].EventType != models.MembershipJoin {
		t.Errorf("Expected one join record, got %+v", sink.records)
	}
}

func TestMembershipHandler_EscapesNames(t *testing.T) {
	sink := &fakeSink{}
	handler := NewMembershipHandler(createTestLogger(t), sink)

	event := groupEvent()
	event.Membership = &models.Membership{
		Joined: []models.User{{ID: 1, DisplayName: "<script>alert(1)</script>"}},
	}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	for _, a := range actions {
		if send, ok := a.(models.SendMessageAction); ok {
			if strings.Contains(send.Text, "<script>") {
				t.Errorf("Display name must be escaped: %q", send.Text)
			}
			if !strings.Contains(send.Text, "&lt;script&gt;") {
				t.Errorf("Expected escaped name in text: %q", send.Text)
			}
		}
	}
}

func TestMembershipHandler_SinkErrorSwallowed(t *testing.T) {
	sink := &fakeSink{err: errors.New("clickhouse down")}
	handler := NewMembershipHandler(createTestLogger(t), sink)

	event := groupEvent()
	event.Membership = &models.Membership{
		Left: []models.User{{ID: 2, Username: "bob"}},
	}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Sink error must not propagate: %v", err)
	}
	if len(actions) == 0 {
		t.Error("Leave event should still produce a log action")
	}
}

func TestServiceHandler_EscapesTitle(t *testing.T) {
	handler := NewServiceHandler(createTestLogger(t))

	event := groupEvent()
	event.Service = &models.Service{
		TitleChanged: true,
		NewTitle:     "<script>alert(1)</script>",
	}

	if !handler.Matches(event) {
		t.Fatal("Handler should match a title change")
	}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	found := false
	for _, a := range actions {
		if send, ok := a.(models.SendMessageAction); ok {
			found = true
			if strings.Contains(send.Text, "<script>") {
				t.Errorf("Title must be escaped: %q", send.Text)
			}
			if !strings.Contains(send.Text, "&lt;script&gt;") {
				t.Errorf("Expected escaped title in text: %q", send.Text)
			}
		}
	}
	if !found {
		t.Error("Expected a title change announcement")
	}
}

func TestServiceHandler_PinnedMessage(t *testing.T) {
	handler := NewServiceHandler(createTestLogger(t))

	event := groupEvent()
	event.Service = &models.Service{PinnedMessageID: 42}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	var reply int64
	for _, a := range actions {
		if send, ok := a.(models.SendMessageAction); ok {
			reply = send.ReplyToID
		}
	}
	if reply != 42 {
		t.Errorf("Pin notice should reply to the pinned message, got %d", reply)
	}
}

func TestMediaHandler_OversizeOrder(t *testing.T) {
	handler := NewMediaHandler(createTestLogger(t), &fakeEvaluator{}, 15)

	event := groupEvent()
	event.Message = &models.Message{
		ID: 55,
		Media: []models.Media{
			{Kind: models.MediaVideo, FileSize: 20 * 1024 * 1024},
		},
	}

	if !handler.Matches(event) {
		t.Fatal("Handler should match a media event")
	}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// Порядок фиксирован: удаление, предупреждение, журнал
	if len(actions) != 3 {
		t.Fatalf("Expected exactly 3 actions, got %d", len(actions))
	}
	if actions[0].ActionType() != models.ActionTypeDeleteMessage {
		t.Errorf("First action should be delete, got %s", actions[0].ActionType())
	}
	warn, ok := actions[1].(models.WarnMemberAction)
	if !ok {
		t.Fatalf("Second action should be warn, got %s", actions[1].ActionType())
	}
	if warn.Severity != models.SeverityMedium {
		t.Errorf("Oversize warn severity should be medium, got %s", warn.Severity)
	}
	logAction, ok := actions[2].(models.LogAction)
	if !ok {
		t.Fatalf("Third action should be log, got %s", actions[2].ActionType())
	}
	if logAction.Level != "warn" {
		t.Errorf("Oversize log level should be warn, got %s", logAction.Level)
	}
}

func TestMediaHandler_PhotoLargestResolution(t *testing.T) {
	handler := NewMediaHandler(createTestLogger(t), &fakeEvaluator{}, 15)

	event := groupEvent()
	event.Message = &models.Message{
		ID: 55,
		Media: []models.Media{
			{Kind: models.MediaPhoto, PhotoSizes: []int64{100 * 1024, 16 * 1024 * 1024}},
		},
	}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if actions[0].ActionType() != models.ActionTypeDeleteMessage {
		t.Error("Largest photo resolution should drive the ceiling check")
	}
}

func TestMediaHandler_WithinLimits(t *testing.T) {
	handler := NewMediaHandler(createTestLogger(t), &fakeEvaluator{}, 15)

	event := groupEvent()
	event.Message = &models.Message{
		ID:    55,
		Media: []models.Media{{Kind: models.MediaPhoto, FileSize: 1024}},
	}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	// Без нарушений остается одна отладочная запись
	if len(actions) != 1 || actions[0].ActionType() != models.ActionTypeLog {
		t.Errorf("Expected a single debug log, got %v", actions)
	}
}

func TestMediaHandler_RulesRunEvenWhenOversize(t *testing.T) {
	evaluator := &fakeEvaluator{
		actions: []models.ProcessingAction{models.BanMemberAction{UserID: 7}},
	}
	handler := NewMediaHandler(createTestLogger(t), evaluator, 15)

	event := groupEvent()
	event.Message = &models.Message{
		ID:    55,
		Media: []models.Media{{Kind: models.MediaVideo, FileSize: 20 * 1024 * 1024}},
	}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(actions) != 4 {
		t.Fatalf("Expected ceiling actions plus rule actions, got %d", len(actions))
	}
	if actions[3].ActionType() != models.ActionTypeBanMember {
		t.Errorf("Rule actions should follow ceiling actions, got %s", actions[3].ActionType())
	}
}

func TestTextHandler_DebugFallback(t *testing.T) {
	handler := NewTextHandler(createTestLogger(t), &fakeEvaluator{})

	event := groupEvent()
	event.Message = &models.Message{ID: 55, Text: "обычное сообщение"}

	actions, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("Expected single fallback action, got %d", len(actions))
	}
	logAction, ok := actions[0].(models.LogAction)
	if !ok || logAction.Level != "debug" {
		t.Errorf("Fallback should be a debug log, got %v", actions[0])
	}
}

func TestTextHandler_MatchesOnlyText(t *testing.T) {
	handler := NewTextHandler(createTestLogger(t), &fakeEvaluator{})

	event := groupEvent()
	if handler.Matches(event) {
		t.Error("Event without message should not match")
	}

	event.Message = &models.Message{ID: 55, Text: "   "}
	if handler.Matches(event) {
		t.Error("Whitespace-only text should not match")
	}

	event.Message.Text = "привет"
	if !handler.Matches(event) {
		t.Error("Text message should match")
	}
}

// orderHandler фиксирует порядок вызова
type orderHandler struct {
	name    string
	matches bool
	calls   *[]string
	panic   bool
	err     error
}

func (h *orderHandler) Name() string                      { return h.name }
func (h *orderHandler) Matches(_ *models.Event) bool      { return h.matches }
func (h *orderHandler) Handle(_ context.Context, _ *models.Event) ([]models.ProcessingAction, error) {
	*h.calls = append(*h.calls, h.name)
	if h.panic {
		panic("boom")
	}
	if h.err != nil {
		return nil, h.err
	}
	return []models.ProcessingAction{models.NoopAction{}}, nil
}

func TestChain_FixedOrder(t *testing.T) {
	var calls []string
	exec := &recordingExecutor{}
	chain := NewChain(createTestLogger(t), exec,
		&orderHandler{name: "first", matches: true, calls: &calls},
		&orderHandler{name: "second", matches: false, calls: &calls},
		&orderHandler{name: "third", matches: true, calls: &calls},
	)

	chain.Process(context.Background(), groupEvent())

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "third" {
		t.Errorf("Expected [first third], got %v", calls)
	}
}

func TestChain_PanicIsolation(t *testing.T) {
	var calls []string
	exec := &recordingExecutor{}
	chain := NewChain(createTestLogger(t), exec,
		&orderHandler{name: "broken", matches: true, calls: &calls, panic: true},
		&orderHandler{name: "healthy", matches: true, calls: &calls},
	)

	chain.Process(context.Background(), groupEvent())

	if len(calls) != 2 {
		t.Errorf("Panic in one handler must not stop the chain, calls: %v", calls)
	}
	// Действия сломанного обработчика отброшены, здорового — выполнены
	if got := exec.types(); len(got) != 1 || got[0] != models.ActionTypeNoop {
		t.Errorf("Expected only healthy handler actions, got %v", got)
	}
}

func TestChain_ErrorIsolation(t *testing.T) {
	var calls []string
	exec := &recordingExecutor{}
	chain := NewChain(createTestLogger(t), exec,
		&orderHandler{name: "failing", matches: true, calls: &calls, err: errors.New("telegram down")},
		&orderHandler{name: "healthy", matches: true, calls: &calls},
	)

	chain.Process(context.Background(), groupEvent())

	if len(calls) != 2 {
		t.Errorf("Error in one handler must not stop the chain, calls: %v", calls)
	}
	if got := exec.types(); len(got) != 1 {
		t.Errorf("Expected only healthy handler actions, got %v", got)
	}
}
