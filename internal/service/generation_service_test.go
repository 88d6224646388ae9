package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"ai-studynotes-be/internal/constant"
	"ai-studynotes-be/internal/dto"
	"ai-studynotes-be/internal/entity"
	"ai-studynotes-be/internal/repository/contract"
	"ai-studynotes-be/internal/repository/memory"
	"ai-studynotes-be/internal/repository/specification"
	"ai-studynotes-be/internal/repository/unitofwork"
	"ai-studynotes-be/pkg/llm"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// --- fakes -----------------------------------------------------------------

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

type recEvent struct {
	name    string
	payload any
}

type recSink struct {
	events []recEvent
}

func (s *recSink) Send(event string, payload any) error {
	s.events = append(s.events, recEvent{name: event, payload: payload})
	return nil
}

func (s *recSink) count(name string) int {
	n := 0
	for _, e := range s.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func (s *recSink) last(name string) (recEvent, bool) {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].name == name {
			return s.events[i], true
		}
	}
	return recEvent{}, false
}

type fakeStream struct {
	chunks  []string
	failErr error
	onChunk func(i int)
	openErr error

	idx    int
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.idx >= len(s.chunks) {
		return false
	}
	s.idx++
	if s.onChunk != nil {
		s.onChunk(s.idx)
	}
	return true
}

func (s *fakeStream) Current() string { return s.chunks[s.idx-1] }

func (s *fakeStream) Err() error {
	if s.idx >= len(s.chunks) {
		return s.failErr
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type chatReply struct {
	content string
	err     error
}

type fakeProvider struct {
	streams   []*fakeStream
	chats     []chatReply
	streamIdx int
	chatIdx   int
}

func (p *fakeProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if p.chatIdx >= len(p.chats) {
		return "", errors.New("unexpected Chat call")
	}
	reply := p.chats[p.chatIdx]
	p.chatIdx++
	return reply.content, reply.err
}

func (p *fakeProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	if p.streamIdx >= len(p.streams) {
		return nil, errors.New("unexpected ChatStream call")
	}
	stream := p.streams[p.streamIdx]
	p.streamIdx++
	if stream.openErr != nil {
		return nil, stream.openErr
	}
	return stream, nil
}

type fieldsUpdate struct {
	id     uuid.UUID
	fields map[string]interface{}
}

type fakeStore struct {
	notes       []*entity.Note
	generations []*entity.Generation
	updates     []fieldsUpdate
}

type fakeNoteRepo struct{ store *fakeStore }

func (r *fakeNoteRepo) Create(ctx context.Context, note *entity.Note) error {
	r.store.notes = append(r.store.notes, note)
	return nil
}

func (r *fakeNoteRepo) Update(ctx context.Context, note *entity.Note) error { return nil }

func (r *fakeNoteRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (r *fakeNoteRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Note, error) {
	for _, note := range r.store.notes {
		if noteMatches(note, specs) {
			return note, nil
		}
	}
	return nil, nil
}

func (r *fakeNoteRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Note, error) {
	return nil, nil
}

func (r *fakeNoteRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

func noteMatches(note *entity.Note, specs []specification.Specification) bool {
	for _, s := range specs {
		switch sp := s.(type) {
		case specification.ByID:
			if note.Id != sp.ID {
				return false
			}
		case specification.UserOwnedBy:
			if note.UserId != sp.UserID {
				return false
			}
		}
	}
	return true
}

type fakeGenerationRepo struct{ store *fakeStore }

func (r *fakeGenerationRepo) Create(ctx context.Context, g *entity.Generation) error {
	r.store.generations = append(r.store.generations, g)
	return nil
}

func (r *fakeGenerationRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.store.updates = append(r.store.updates, fieldsUpdate{id: id, fields: fields})
	return nil
}

func (r *fakeGenerationRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Generation, error) {
	matched := make([]*entity.Generation, 0, len(r.store.generations))
	for _, g := range r.store.generations {
		ok := true
		for _, s := range specs {
			if sp, is := s.(specification.ByNoteID); is && g.NoteId != sp.NoteID {
				ok = false
			}
		}
		if ok {
			matched = append(matched, g)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return matched[0], nil
}

func (r *fakeGenerationRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Generation, error) {
	return r.store.generations, nil
}

type fakeUow struct{ store *fakeStore }

func (u *fakeUow) Begin(ctx context.Context) error { return nil }
func (u *fakeUow) Commit() error                   { return nil }
func (u *fakeUow) Rollback() error                 { return nil }

func (u *fakeUow) NotebookRepository() contract.NotebookRepository { return nil }
func (u *fakeUow) NoteRepository() contract.NoteRepository         { return &fakeNoteRepo{store: u.store} }
func (u *fakeUow) GenerationRepository() contract.GenerationRepository {
	return &fakeGenerationRepo{store: u.store}
}

type fakeUowFactory struct{ store *fakeStore }

func (f *fakeUowFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &fakeUow{store: f.store}
}

type fakePublisher struct {
	payloads [][]byte
}

func (p *fakePublisher) Publish(ctx context.Context, payload []byte) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

// --- helpers ---------------------------------------------------------------

const validInsights = `{"devils_advocate":"Maybe not.","metaphor":"Like a factory.","cross_pollination":"Economics."}`

func newFixture(provider *fakeProvider) (IGenerationService, *fakeStore, *fakePublisher, uuid.UUID, uuid.UUID) {
	store := &fakeStore{}
	userId := uuid.New()
	noteId := uuid.New()
	store.notes = append(store.notes, &entity.Note{
		Id:        noteId,
		Title:     "Photosynthesis",
		Content:   "Photosynthesis converts light energy into chemical energy.",
		UserId:    userId,
		CreatedAt: time.Now(),
	})
	publisher := &fakePublisher{}
	svc := NewGenerationService(
		&fakeUowFactory{store: store},
		provider,
		"test-model",
		24000,
		memory.NewJobRegistry(),
		publisher,
		nil,
		nopLogger{},
	)
	return svc, store, publisher, userId, noteId
}

func fullRunProvider() *fakeProvider {
	return &fakeProvider{
		streams: []*fakeStream{
			{chunks: []string{"# Photosynthesis\n", "- Light reactions\n"}},
			{chunks: []string{
				`[FC]{"id":"1","front":"What is photosynthesis?","back":"Light to chemical energy.","tags":["bio"],"difficulty":1}[/FC]`,
				`[FC]{"id":"2","front":"Where does it happen?","back":"Chloroplasts.","tags":["bio"],"difficulty":2}[/FC]`,
			}},
			{chunks: []string{
				`[QZ]{"id":"1","question":"What powers photosynthesis?","choices":["Light","Heat","Sound","Wind"],"correctIndex":0,"explanation":"Light energy drives it."}[/QZ]`,
			}},
		},
		chats: []chatReply{{content: validInsights}},
	}
}

// --- tests -----------------------------------------------------------------

func TestGenerateFullRun(t *testing.T) {
	svc, store, publisher, userId, noteId := newFixture(fullRunProvider())
	sink := &recSink{}

	err := svc.Generate(context.Background(), userId, &dto.GenerateRequest{NoteId: noteId}, sink)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got := sink.count(constant.EventFinal); got != 1 {
		t.Fatalf("final events = %d, want exactly 1", got)
	}
	if got := sink.count(constant.EventError); got != 0 {
		t.Fatalf("error events = %d, want 0", got)
	}
	if got := sink.count(constant.EventFlashcard); got != 2 {
		t.Errorf("flashcard events = %d, want 2", got)
	}
	if got := sink.count(constant.EventQuiz); got != 1 {
		t.Errorf("quiz events = %d, want 1", got)
	}
	if got := sink.count(constant.EventOutlineChunk); got != 2 {
		t.Errorf("outline chunk events = %d, want 2", got)
	}

	var progress []int
	for _, e := range sink.events {
		if e.name == constant.EventStatus {
			progress = append(progress, e.payload.(dto.StatusPayload).Progress)
		}
	}
	want := []int{10, 40, 70, 95}
	if len(progress) != len(want) {
		t.Fatalf("status events = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("status progress = %v, want %v", progress, want)
		}
	}

	// the final event arrives last
	if sink.events[len(sink.events)-1].name != constant.EventFinal {
		t.Errorf("last event = %s, want final", sink.events[len(sink.events)-1].name)
	}

	if len(store.generations) != 1 {
		t.Fatalf("persisted generations = %d, want 1", len(store.generations))
	}
	g := store.generations[0]
	if g.Outline == "" || g.FlashcardsJson == "[]" || g.QuizJson == "[]" {
		t.Errorf("artifacts incomplete: outline=%q flashcards=%q quiz=%q", g.Outline, g.FlashcardsJson, g.QuizJson)
	}
	if g.WeakSpots != constant.WeakSpotsPlaceholder {
		t.Errorf("weak spots = %q, want placeholder", g.WeakSpots)
	}
	if g.DevilsAdvocate == nil || *g.DevilsAdvocate != "Maybe not." {
		t.Errorf("devils advocate not persisted: %v", g.DevilsAdvocate)
	}

	var cards []entity.Flashcard
	if err := json.Unmarshal([]byte(g.FlashcardsJson), &cards); err != nil || len(cards) != 2 {
		t.Errorf("flashcards json invalid (%v): %s", err, g.FlashcardsJson)
	}

	if len(publisher.payloads) != 1 {
		t.Fatalf("published messages = %d, want 1", len(publisher.payloads))
	}
	var msg dto.SynthesizeTitleMessage
	if err := json.Unmarshal(publisher.payloads[0], &msg); err != nil || msg.NoteId != noteId {
		t.Errorf("title synthesis message wrong: %s", publisher.payloads[0])
	}
}

func TestGenerateTargetStageAllRunsFullPipeline(t *testing.T) {
	svc, store, _, userId, noteId := newFixture(fullRunProvider())
	sink := &recSink{}

	err := svc.Generate(context.Background(), userId, &dto.GenerateRequest{NoteId: noteId, TargetStage: constant.StageAll}, sink)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got := sink.count(constant.EventFinal); got != 1 {
		t.Fatalf("final events = %d, want exactly 1", got)
	}
	if got := sink.count(constant.EventError); got != 0 {
		t.Fatalf("error events = %d, want 0", got)
	}
	if got := sink.count(constant.EventFlashcard); got != 2 {
		t.Errorf("flashcard events = %d, want 2", got)
	}
	if got := sink.count(constant.EventQuiz); got != 1 {
		t.Errorf("quiz events = %d, want 1", got)
	}

	// same terminal shape as a run with no target: one new row carrying
	// every artifact, not a targeted overwrite
	final := mustLast(t, sink, constant.EventFinal)
	if _, ok := final.payload.(dto.FullFinalPayload); !ok {
		t.Fatalf("final payload = %T, want FullFinalPayload", final.payload)
	}
	if len(store.generations) != 1 {
		t.Fatalf("persisted generations = %d, want 1", len(store.generations))
	}
	if len(store.updates) != 0 {
		t.Errorf("field updates = %d, want 0", len(store.updates))
	}
	g := store.generations[0]
	if g.Outline == "" || g.FlashcardsJson == "[]" || g.QuizJson == "[]" {
		t.Errorf("artifacts incomplete: outline=%q flashcards=%q quiz=%q", g.Outline, g.FlashcardsJson, g.QuizJson)
	}
}

func TestGenerateFlashcardMarkerSplitAcrossChunks(t *testing.T) {
	item := `{"id":"1","front":"What is chlorophyll?","back":"The green pigment.","tags":[],"difficulty":1}`
	provider := &fakeProvider{
		streams: []*fakeStream{
			{chunks: []string{`[F`, `C]` + item[:20], item[20:] + `[/`, `FC]`}},
		},
	}
	svc, store, _, userId, noteId := newFixture(provider)
	sink := &recSink{}

	err := svc.Generate(context.Background(), userId, &dto.GenerateRequest{
		NoteId:      noteId,
		TargetStage: constant.StageFlashcards,
	}, sink)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got := sink.count(constant.EventFlashcard); got != 1 {
		t.Fatalf("flashcard events = %d, want exactly 1", got)
	}
	card := mustLast(t, sink, constant.EventFlashcard).payload.(entity.Flashcard)
	if card.Front != "What is chlorophyll?" {
		t.Errorf("card front = %q", card.Front)
	}

	// no prior row, so a fresh one is created with empty placeholders
	if len(store.generations) != 1 {
		t.Fatalf("persisted generations = %d, want 1", len(store.generations))
	}
	g := store.generations[0]
	if g.QuizJson != "[]" {
		t.Errorf("quiz json = %q, want [] placeholder", g.QuizJson)
	}
	if !strings.Contains(g.FlashcardsJson, "chlorophyll") {
		t.Errorf("flashcards json missing item: %s", g.FlashcardsJson)
	}
}

func TestGenerateTargetedOverwritesOnlyItsField(t *testing.T) {
	provider := &fakeProvider{
		streams: []*fakeStream{
			{chunks: []string{`[QZ]{"id":"1","question":"Q?","choices":["a","b","c","d"],"correctIndex":1,"explanation":"b."}[/QZ]`}},
		},
	}
	svc, store, _, userId, noteId := newFixture(provider)
	existing := &entity.Generation{
		Id:             uuid.New(),
		NoteId:         noteId,
		Model:          "test-model",
		Outline:        "# Old outline",
		FlashcardsJson: `[{"id":"old"}]`,
		QuizJson:       `[{"id":"old"}]`,
		CreatedAt:      time.Now().Add(-time.Hour),
	}
	store.generations = append(store.generations, existing)
	sink := &recSink{}

	err := svc.Generate(context.Background(), userId, &dto.GenerateRequest{
		NoteId:      noteId,
		TargetStage: constant.StageQuiz,
	}, sink)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(store.updates) != 1 {
		t.Fatalf("field updates = %d, want 1", len(store.updates))
	}
	update := store.updates[0]
	if update.id != existing.Id {
		t.Errorf("updated row %s, want latest %s", update.id, existing.Id)
	}
	if len(update.fields) != 1 {
		t.Errorf("updated columns = %v, want only quiz_json", update.fields)
	}
	if _, ok := update.fields["quiz_json"]; !ok {
		t.Errorf("quiz_json not among updated columns: %v", update.fields)
	}
	if len(store.generations) != 1 {
		t.Errorf("targeted run must not create a second row")
	}

	final := mustLast(t, sink, constant.EventFinal).payload.(dto.TargetedFinalPayload)
	if final.Type != constant.StageQuiz {
		t.Errorf("final type = %q, want quiz", final.Type)
	}
	if _, ok := final.Data["quizJson"]; !ok {
		t.Errorf("final data missing quizJson: %v", final.Data)
	}
}

func TestGenerateCancelledMidStream(t *testing.T) {
	var svc IGenerationService
	var userId, noteId uuid.UUID

	provider := &fakeProvider{
		streams: []*fakeStream{
			{chunks: []string{"# Outline\n", "- point one\n", "- point two\n", "- never seen\n"},
				onChunk: func(i int) {
					if i == 2 {
						svc.Cancel(userId, noteId)
					}
				}},
		},
	}
	var store *fakeStore
	svc, store, _, userId, noteId = newFixture(provider)
	sink := &recSink{}

	err := svc.Generate(context.Background(), userId, &dto.GenerateRequest{NoteId: noteId}, sink)
	if err != nil {
		t.Fatalf("cancelled run must not return an error, got %v", err)
	}

	if got := sink.count(constant.EventFinal); got != 0 {
		t.Errorf("final events after cancel = %d, want 0", got)
	}
	if got := sink.count(constant.EventError); got != 0 {
		t.Errorf("error events after cancel = %d, want 0", got)
	}
	if len(store.generations) != 0 || len(store.updates) != 0 {
		t.Errorf("cancelled run must not persist anything")
	}
	if !provider.streams[0].closed {
		t.Errorf("stream not closed after cancel")
	}
}

func TestGenerateStreamMidFailureEmitsError(t *testing.T) {
	provider := &fakeProvider{
		streams: []*fakeStream{
			{chunks: []string{"# Outline\n"}},
			{chunks: []string{`[FC]{"id":"1","front":"f","back":"b","tags":[],"difficulty":1}[/FC]`},
				failErr: llm.ErrModelError},
		},
	}
	svc, store, _, userId, noteId := newFixture(provider)
	sink := &recSink{}

	err := svc.Generate(context.Background(), userId, &dto.GenerateRequest{NoteId: noteId}, sink)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got := sink.count(constant.EventError); got != 1 {
		t.Fatalf("error events = %d, want 1", got)
	}
	if got := sink.count(constant.EventFinal); got != 0 {
		t.Errorf("final events = %d, want 0 after failure", got)
	}
	if len(store.generations) != 0 {
		t.Errorf("failed run must not persist")
	}
}

func TestGenerateMalformedItemSkipped(t *testing.T) {
	provider := &fakeProvider{
		streams: []*fakeStream{
			{chunks: []string{
				`[FC]{not json at all}[/FC]`,
				`[FC]{"id":"1","front":"ok","back":"fine","tags":[],"difficulty":1}[/FC]`,
			}},
		},
	}
	svc, store, _, userId, noteId := newFixture(provider)
	sink := &recSink{}

	err := svc.Generate(context.Background(), userId, &dto.GenerateRequest{
		NoteId:      noteId,
		TargetStage: constant.StageFlashcards,
	}, sink)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got := sink.count(constant.EventFlashcard); got != 1 {
		t.Errorf("flashcard events = %d, want 1 (malformed item dropped)", got)
	}
	if got := sink.count(constant.EventError); got != 0 {
		t.Errorf("a malformed item must not fail the run")
	}
	var cards []entity.Flashcard
	g := store.generations[0]
	if err := json.Unmarshal([]byte(g.FlashcardsJson), &cards); err != nil || len(cards) != 1 {
		t.Errorf("stored flashcards = %s, want the single valid card", g.FlashcardsJson)
	}
}

func TestGenerateUnparsableInsightsNonFatal(t *testing.T) {
	provider := fullRunProvider()
	provider.chats = []chatReply{{content: "I could not think of anything today."}}
	svc, store, _, userId, noteId := newFixture(provider)
	sink := &recSink{}

	err := svc.Generate(context.Background(), userId, &dto.GenerateRequest{NoteId: noteId}, sink)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got := sink.count(constant.EventFinal); got != 1 {
		t.Fatalf("final events = %d, want 1", got)
	}
	g := store.generations[0]
	if g.DevilsAdvocate != nil || g.Metaphor != nil || g.CrossPollination != nil {
		t.Errorf("unparsable insights must persist as absent, got %v %v %v",
			g.DevilsAdvocate, g.Metaphor, g.CrossPollination)
	}
}

func TestGenerateOwnershipChecks(t *testing.T) {
	svc, _, _, _, noteId := newFixture(fullRunProvider())
	sink := &recSink{}

	err := svc.Generate(context.Background(), uuid.New(), &dto.GenerateRequest{NoteId: noteId}, sink)
	var fe *fiber.Error
	if !errors.As(err, &fe) || fe.Code != fiber.StatusForbidden {
		t.Fatalf("foreign note: err = %v, want 403", err)
	}
	if len(sink.events) != 0 {
		t.Errorf("no events may be emitted before authorization passes")
	}

	err = svc.Generate(context.Background(), uuid.New(), &dto.GenerateRequest{NoteId: uuid.New()}, sink)
	if !errors.As(err, &fe) || fe.Code != fiber.StatusNotFound {
		t.Fatalf("missing note: err = %v, want 404", err)
	}
}

func TestAnalyzeWeakSpots(t *testing.T) {
	provider := &fakeProvider{
		chats: []chatReply{{content: `["Light reactions","Calvin cycle"]`}},
	}
	svc, store, _, userId, noteId := newFixture(provider)
	store.generations = append(store.generations, &entity.Generation{
		Id:        uuid.New(),
		NoteId:    noteId,
		QuizJson:  `[{"id":"1","question":"Q?"}]`,
		WeakSpots: constant.WeakSpotsPlaceholder,
		CreatedAt: time.Now(),
	})

	res, err := svc.AnalyzeWeakSpots(context.Background(), userId, &dto.WeakSpotsRequest{
		NoteId:               noteId,
		IncorrectQuestionIds: []string{"1"},
	})
	if err != nil {
		t.Fatalf("AnalyzeWeakSpots: %v", err)
	}
	if len(res.WeakSpots) != 2 || res.WeakSpots[0] != "Light reactions" {
		t.Errorf("weak spots = %v", res.WeakSpots)
	}
	if len(store.updates) != 1 {
		t.Fatalf("weak spots not persisted")
	}
	if _, ok := store.updates[0].fields["weak_spots"]; !ok {
		t.Errorf("updated columns = %v, want weak_spots", store.updates[0].fields)
	}
}

func TestGetLatestReturnsNewestRow(t *testing.T) {
	svc, store, _, userId, noteId := newFixture(&fakeProvider{})
	old := &entity.Generation{Id: uuid.New(), NoteId: noteId, Outline: "old", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &entity.Generation{Id: uuid.New(), NoteId: noteId, Outline: "new", CreatedAt: time.Now()}
	store.generations = append(store.generations, old, newer)

	res, err := svc.GetLatest(context.Background(), userId, noteId)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if res.Id != newer.Id {
		t.Errorf("got row %s, want newest %s", res.Id, newer.Id)
	}

	_, err = svc.GetLatest(context.Background(), userId, uuid.New())
	var fe *fiber.Error
	if !errors.As(err, &fe) || fe.Code != fiber.StatusNotFound {
		t.Errorf("unknown note: err = %v, want 404", err)
	}
}

func mustLast(t *testing.T, sink *recSink, name string) recEvent {
	t.Helper()
	e, ok := sink.last(name)
	if !ok {
		t.Fatalf("no %s event emitted", name)
	}
	return e
}
