package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-studynotes-be/internal/constant"
	"ai-studynotes-be/internal/dto"
	"ai-studynotes-be/internal/entity"
	"ai-studynotes-be/internal/pkg/logger"
	"ai-studynotes-be/internal/repository/memory"
	"ai-studynotes-be/internal/repository/specification"
	"ai-studynotes-be/internal/repository/unitofwork"
	"ai-studynotes-be/pkg/delim"
	"ai-studynotes-be/pkg/events"
	"ai-studynotes-be/pkg/llm"
	pktNats "ai-studynotes-be/pkg/nats"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// EventSink receives the named events a generation run emits. The HTTP layer
// backs it with a server-sent-event encoder; tests back it with a recorder.
type EventSink interface {
	Send(event string, payload any) error
}

type IGenerationService interface {
	// Generate runs the pipeline for one note and emits progress onto sink.
	// Errors returned before the first event map to HTTP status codes; once
	// streaming has begun all failures travel as error events instead.
	Generate(ctx context.Context, userId uuid.UUID, req *dto.GenerateRequest, sink EventSink) error
	// Authorize runs the same pre-flight checks Generate does, without
	// starting a run. The HTTP layer calls it before committing to a
	// streaming response, while an error can still carry a status code.
	Authorize(ctx context.Context, userId uuid.UUID, req *dto.GenerateRequest) error
	// Cancel aborts the in-flight run for a note. Returns false when no run
	// is active.
	Cancel(userId uuid.UUID, noteId uuid.UUID) bool
	GetLatest(ctx context.Context, userId uuid.UUID, noteId uuid.UUID) (*dto.GenerationResponse, error)
	AnalyzeWeakSpots(ctx context.Context, userId uuid.UUID, req *dto.WeakSpotsRequest) (*dto.WeakSpotsResponse, error)
}

type generationService struct {
	uowFactory       unitofwork.RepositoryFactory
	provider         llm.LLMProvider
	modelName        string
	maxSourceChars   int
	jobs             *memory.JobRegistry
	publisherService IPublisherService
	eventPublisher   *pktNats.Publisher
	logger           logger.ILogger
}

func NewGenerationService(
	uowFactory unitofwork.RepositoryFactory,
	provider llm.LLMProvider,
	modelName string,
	maxSourceChars int,
	jobs *memory.JobRegistry,
	publisherService IPublisherService,
	eventPublisher *pktNats.Publisher,
	log logger.ILogger,
) IGenerationService {
	return &generationService{
		uowFactory:       uowFactory,
		provider:         provider,
		modelName:        modelName,
		maxSourceChars:   maxSourceChars,
		jobs:             jobs,
		publisherService: publisherService,
		eventPublisher:   eventPublisher,
		logger:           log,
	}
}

var stageProgress = map[string]int{
	constant.StageOutline:    constant.ProgressOutline,
	constant.StageFlashcards: constant.ProgressFlashcards,
	constant.StageQuiz:       constant.ProgressQuiz,
	constant.StageInsights:   constant.ProgressInsights,
}

type insightsResult struct {
	DevilsAdvocate   *string `json:"devils_advocate"`
	Metaphor         *string `json:"metaphor"`
	CrossPollination *string `json:"cross_pollination"`
}

func (s *generationService) Authorize(ctx context.Context, userId uuid.UUID, req *dto.GenerateRequest) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	_, err := s.authorize(ctx, uow, userId, req)
	return err
}

func (s *generationService) authorize(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, req *dto.GenerateRequest) (*entity.Note, error) {
	note, err := uow.NoteRepository().FindOne(ctx, specification.ByID{ID: req.NoteId})
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "note not found")
	}
	if note.UserId != userId {
		return nil, fiber.NewError(fiber.StatusForbidden, "note does not belong to user")
	}
	if strings.TrimSpace(note.Content) == "" {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "note has no content to generate from")
	}
	if _, running := s.jobs.Get(req.NoteId); running {
		return nil, fiber.NewError(fiber.StatusConflict, "a generation is already running for this note")
	}
	return note, nil
}

func (s *generationService) Generate(ctx context.Context, userId uuid.UUID, req *dto.GenerateRequest, sink EventSink) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	note, err := s.authorize(ctx, uow, userId, req)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.jobs.Register(&memory.GenerationJob{
		NoteId:    req.NoteId,
		UserId:    userId,
		Stage:     req.TargetStage,
		StartedAt: time.Now(),
		Cancel:    cancel,
	})
	defer s.jobs.Deregister(req.NoteId)

	source := note.Content
	if s.maxSourceChars > 0 && len(source) > s.maxSourceChars {
		source = source[:s.maxSourceChars]
	}

	if req.TargetStage == "" || req.TargetStage == constant.StageAll {
		return s.runFull(runCtx, uow, sink, note, req, source)
	}
	return s.runTargeted(runCtx, uow, sink, note, req, source)
}

func (s *generationService) runFull(ctx context.Context, uow unitofwork.UnitOfWork, sink EventSink, note *entity.Note, req *dto.GenerateRequest, source string) error {
	s.sendStatus(sink, "Generating outline", constant.ProgressOutline)
	outline, err := s.streamOutline(ctx, sink, req, source)
	if err != nil {
		return s.terminate(sink, err)
	}

	s.sendStatus(sink, "Generating flashcards", constant.ProgressFlashcards)
	flashcardsJson, err := s.streamItems(ctx, sink, req, source,
		constant.FlashcardsPrompt, constant.EventFlashcard,
		constant.FlashcardOpenTag, constant.FlashcardCloseTag, decodeFlashcard)
	if err != nil {
		return s.terminate(sink, err)
	}

	s.sendStatus(sink, "Generating quiz", constant.ProgressQuiz)
	quizJson, err := s.streamItems(ctx, sink, req, source,
		constant.QuizPrompt, constant.EventQuiz,
		constant.QuizOpenTag, constant.QuizCloseTag, decodeQuizQuestion)
	if err != nil {
		return s.terminate(sink, err)
	}

	s.sendStatus(sink, "Generating insights", constant.ProgressInsights)
	insights, err := s.generateInsights(ctx, req, source)
	if err != nil {
		return s.terminate(sink, err)
	}
	if err := ctx.Err(); err != nil {
		return s.terminate(sink, err)
	}

	generation := entity.Generation{
		Id:               uuid.New(),
		NoteId:           note.Id,
		Model:            s.modelName,
		Outline:          outline,
		FlashcardsJson:   flashcardsJson,
		QuizJson:         quizJson,
		WeakSpots:        constant.WeakSpotsPlaceholder,
		DevilsAdvocate:   insights.DevilsAdvocate,
		Metaphor:         insights.Metaphor,
		CrossPollination: insights.CrossPollination,
		CreatedAt:        time.Now(),
	}
	if err := uow.GenerationRepository().Create(ctx, &generation); err != nil {
		return s.terminate(sink, err)
	}

	if err := sink.Send(constant.EventFinal, dto.FullFinalPayload{Generation: toGenerationResponse(&generation)}); err != nil {
		s.logger.Warn("generation_service", "failed to send final event", map[string]interface{}{"error": err.Error()})
	}

	s.announceCompletion(ctx, note, &generation)
	return nil
}

func (s *generationService) runTargeted(ctx context.Context, uow unitofwork.UnitOfWork, sink EventSink, note *entity.Note, req *dto.GenerateRequest, source string) error {
	s.sendStatus(sink, fmt.Sprintf("Regenerating %s", req.TargetStage), stageProgress[req.TargetStage])

	fields := map[string]interface{}{}
	switch req.TargetStage {
	case constant.StageOutline:
		outline, err := s.streamOutline(ctx, sink, req, source)
		if err != nil {
			return s.terminate(sink, err)
		}
		fields["outline"] = outline

	case constant.StageFlashcards:
		flashcardsJson, err := s.streamItems(ctx, sink, req, source,
			constant.FlashcardsPrompt, constant.EventFlashcard,
			constant.FlashcardOpenTag, constant.FlashcardCloseTag, decodeFlashcard)
		if err != nil {
			return s.terminate(sink, err)
		}
		fields["flashcards_json"] = flashcardsJson

	case constant.StageQuiz:
		quizJson, err := s.streamItems(ctx, sink, req, source,
			constant.QuizPrompt, constant.EventQuiz,
			constant.QuizOpenTag, constant.QuizCloseTag, decodeQuizQuestion)
		if err != nil {
			return s.terminate(sink, err)
		}
		fields["quiz_json"] = quizJson

	case constant.StageInsights:
		insights, err := s.generateInsights(ctx, req, source)
		if err != nil {
			return s.terminate(sink, err)
		}
		fields["devils_advocate"] = insights.DevilsAdvocate
		fields["metaphor"] = insights.Metaphor
		fields["cross_pollination"] = insights.CrossPollination

	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown target stage")
	}
	if err := ctx.Err(); err != nil {
		return s.terminate(sink, err)
	}

	if err := s.persistTargeted(ctx, uow, note.Id, fields); err != nil {
		return s.terminate(sink, err)
	}

	data := make(map[string]string, len(fields))
	for column, value := range fields {
		data[targetedDataKey(column)] = stringOrEmpty(value)
	}
	if err := sink.Send(constant.EventFinal, dto.TargetedFinalPayload{Type: req.TargetStage, Data: data}); err != nil {
		s.logger.Warn("generation_service", "failed to send final event", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// persistTargeted overwrites the regenerated columns on the newest row for
// the note, creating one with empty artifacts first when none exists yet.
func (s *generationService) persistTargeted(ctx context.Context, uow unitofwork.UnitOfWork, noteId uuid.UUID, fields map[string]interface{}) error {
	repo := uow.GenerationRepository()
	latest, err := repo.FindOne(ctx,
		specification.ByNoteID{NoteID: noteId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return err
	}

	if latest == nil {
		generation := entity.Generation{
			Id:             uuid.New(),
			NoteId:         noteId,
			Model:          s.modelName,
			FlashcardsJson: "[]",
			QuizJson:       "[]",
			WeakSpots:      constant.WeakSpotsPlaceholder,
			CreatedAt:      time.Now(),
		}
		applyFields(&generation, fields)
		return repo.Create(ctx, &generation)
	}
	return repo.UpdateFields(ctx, latest.Id, fields)
}

// streamOutline accumulates the whole response while relaying each fragment.
func (s *generationService) streamOutline(ctx context.Context, sink EventSink, req *dto.GenerateRequest, source string) (string, error) {
	stream, err := s.provider.ChatStream(ctx, s.history(constant.OutlinePrompt, req, source))
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var outline strings.Builder
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fragment := stream.Current()
		outline.WriteString(fragment)
		if err := sink.Send(constant.EventOutlineChunk, dto.OutlineChunkPayload{Chunk: fragment}); err != nil {
			s.logger.Warn("generation_service", "outline chunk dropped", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return outline.String(), nil
}

// streamItems cuts marker-delimited items out of the stream and emits each
// one the moment its closing marker arrives. Items that fail to decode are
// dropped from both the stream and the stored artifact.
func (s *generationService) streamItems(
	ctx context.Context,
	sink EventSink,
	req *dto.GenerateRequest,
	source string,
	promptTemplate string,
	eventName string,
	openTag, closeTag string,
	decode func([]byte) (any, error),
) (string, error) {
	stream, err := s.provider.ChatStream(ctx, s.history(promptTemplate, req, source))
	if err != nil {
		return "", err
	}
	defer stream.Close()

	scanner := delim.NewScanner(openTag, closeTag)
	kept := make([]json.RawMessage, 0, 8)
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		for _, span := range scanner.Feed(stream.Current()) {
			payload, err := decode([]byte(span))
			if err != nil {
				s.logger.Warn("generation_service", "discarding malformed item", map[string]interface{}{
					"event": eventName,
					"error": err.Error(),
				})
				continue
			}
			kept = append(kept, json.RawMessage(span))
			if err := sink.Send(eventName, payload); err != nil {
				s.logger.Warn("generation_service", "item event dropped", map[string]interface{}{"error": err.Error()})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	arr, err := json.Marshal(kept)
	if err != nil {
		return "", err
	}
	return string(arr), nil
}

// generateInsights asks for all three insights in one blocking call. A
// response that cannot be parsed yields absent insights, not a failed run.
func (s *generationService) generateInsights(ctx context.Context, req *dto.GenerateRequest, source string) (insightsResult, error) {
	raw, err := s.provider.Chat(ctx, s.history(constant.InsightsPrompt, req, source))
	if err != nil {
		return insightsResult{}, err
	}

	insights, ok := parseInsights(raw)
	if !ok {
		s.logger.Warn("generation_service", "unparsable insights response", map[string]interface{}{
			"length": len(raw),
		})
	}
	return insights, nil
}

func (s *generationService) history(promptTemplate string, req *dto.GenerateRequest, source string) []llm.Message {
	refinement := ""
	if req.RefinementInstructions != "" {
		refinement = fmt.Sprintf(constant.RefinementInstructionBlock, req.RefinementInstructions)
	}
	language := req.Language
	if language == "" {
		language = "English"
	}
	return []llm.Message{
		{Role: "system", Content: constant.GenerationSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(promptTemplate, refinement, source, language)},
	}
}

func (s *generationService) sendStatus(sink EventSink, message string, progress int) {
	if err := sink.Send(constant.EventStatus, dto.StatusPayload{Message: message, Progress: progress}); err != nil {
		s.logger.Warn("generation_service", "status event dropped", map[string]interface{}{"error": err.Error()})
	}
}

// terminate is the single funnel for every mid-run failure. Cancellation is
// intentionally silent: the client asked for the stream to stop, so no final
// and no error frame follows.
func (s *generationService) terminate(sink EventSink, err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	message := "generation failed"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = "generation timed out"
	case errors.Is(err, llm.ErrModelUnavailable):
		message = "model unavailable"
	case errors.Is(err, llm.ErrModelError):
		message = "model returned an error mid-stream"
	}
	s.logger.Error("generation_service", "generation run failed", map[string]interface{}{"error": err.Error()})
	if sendErr := sink.Send(constant.EventError, dto.ErrorPayload{Message: message}); sendErr != nil {
		s.logger.Warn("generation_service", "error event dropped", map[string]interface{}{"error": sendErr.Error()})
	}
	return nil
}

func (s *generationService) announceCompletion(ctx context.Context, note *entity.Note, generation *entity.Generation) {
	msg, err := json.Marshal(dto.SynthesizeTitleMessage{
		NoteId:       note.Id,
		GenerationId: generation.Id,
	})
	if err == nil {
		if err := s.publisherService.Publish(ctx, msg); err != nil {
			s.logger.Warn("generation_service", "failed to publish title synthesis message", map[string]interface{}{"error": err.Error()})
		}
	}

	if err := s.eventPublisher.Publish(ctx, events.GenerationCompleted(note.Id, generation.Id, note.UserId, generation.Model)); err != nil {
		s.logger.Warn("generation_service", "failed to publish GENERATION_COMPLETED event", map[string]interface{}{"error": err.Error()})
	}
}

func (s *generationService) Cancel(userId uuid.UUID, noteId uuid.UUID) bool {
	job, found := s.jobs.Get(noteId)
	if !found || job.UserId != userId {
		return false
	}
	job.Cancel()
	s.jobs.Deregister(noteId)
	return true
}

func (s *generationService) GetLatest(ctx context.Context, userId uuid.UUID, noteId uuid.UUID) (*dto.GenerationResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	note, err := uow.NoteRepository().FindOne(ctx,
		specification.ByID{ID: noteId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "note not found")
	}

	generation, err := uow.GenerationRepository().FindOne(ctx,
		specification.ByNoteID{NoteID: noteId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}
	if generation == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "no generation for this note yet")
	}

	res := toGenerationResponse(generation)
	return &res, nil
}

func (s *generationService) AnalyzeWeakSpots(ctx context.Context, userId uuid.UUID, req *dto.WeakSpotsRequest) (*dto.WeakSpotsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	note, err := uow.NoteRepository().FindOne(ctx,
		specification.ByID{ID: req.NoteId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "note not found")
	}

	generation, err := uow.GenerationRepository().FindOne(ctx,
		specification.ByNoteID{NoteID: req.NoteId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}
	if generation == nil || generation.QuizJson == "[]" {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "no quiz to analyze yet")
	}

	idsJson, err := json.Marshal(req.IncorrectQuestionIds)
	if err != nil {
		return nil, err
	}

	raw, err := s.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: constant.GenerationSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(constant.WeakSpotsPrompt, generation.QuizJson, idsJson)},
	})
	if err != nil {
		if errors.Is(err, llm.ErrModelUnavailable) || errors.Is(err, llm.ErrModelError) {
			return nil, fiber.NewError(fiber.StatusBadGateway, "model request failed")
		}
		return nil, err
	}

	weakSpots, ok := parseStringArray(raw)
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadGateway, "model returned an unparsable analysis")
	}

	stored, err := json.Marshal(weakSpots)
	if err != nil {
		return nil, err
	}
	if err := uow.GenerationRepository().UpdateFields(ctx, generation.Id, map[string]interface{}{
		"weak_spots": string(stored),
	}); err != nil {
		return nil, err
	}

	return &dto.WeakSpotsResponse{WeakSpots: weakSpots}, nil
}

func decodeFlashcard(span []byte) (any, error) {
	var card dto.FlashcardItemPayload
	if err := json.Unmarshal(span, &card); err != nil {
		return nil, err
	}
	return card, nil
}

func decodeQuizQuestion(span []byte) (any, error) {
	var question dto.QuizItemPayload
	if err := json.Unmarshal(span, &question); err != nil {
		return nil, err
	}
	return question, nil
}

// parseInsights tolerates markdown fences and prose around the JSON object.
func parseInsights(raw string) (insightsResult, bool) {
	var insights insightsResult
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return insightsResult{}, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &insights); err != nil {
		return insightsResult{}, false
	}
	return insights, true
}

func parseStringArray(raw string) ([]string, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var out []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, false
	}
	return out, true
}

func applyFields(generation *entity.Generation, fields map[string]interface{}) {
	for column, value := range fields {
		switch column {
		case "outline":
			generation.Outline = value.(string)
		case "flashcards_json":
			generation.FlashcardsJson = value.(string)
		case "quiz_json":
			generation.QuizJson = value.(string)
		case "devils_advocate":
			generation.DevilsAdvocate, _ = value.(*string)
		case "metaphor":
			generation.Metaphor, _ = value.(*string)
		case "cross_pollination":
			generation.CrossPollination, _ = value.(*string)
		}
	}
}

func targetedDataKey(column string) string {
	switch column {
	case "flashcards_json":
		return "flashcardsJson"
	case "quiz_json":
		return "quizJson"
	default:
		return column
	}
}

func stringOrEmpty(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	}
	return ""
}

func toGenerationResponse(g *entity.Generation) dto.GenerationResponse {
	return dto.GenerationResponse{
		Id:               g.Id,
		NoteId:           g.NoteId,
		Model:            g.Model,
		Outline:          g.Outline,
		FlashcardsJson:   g.FlashcardsJson,
		QuizJson:         g.QuizJson,
		WeakSpots:        g.WeakSpots,
		DevilsAdvocate:   g.DevilsAdvocate,
		Metaphor:         g.Metaphor,
		CrossPollination: g.CrossPollination,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
	}
}
