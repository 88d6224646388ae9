package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-studynotes-be/internal/constant"
	"ai-studynotes-be/internal/dto"
	"ai-studynotes-be/internal/pkg/logger"
	"ai-studynotes-be/internal/repository/specification"
	"ai-studynotes-be/internal/repository/unitofwork"
	"ai-studynotes-be/pkg/llm"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService synthesizes a title for untitled notes once a full
// generation run has finished, off the request path.
type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	provider   llm.LLMProvider
	logger     logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	provider llm.LLMProvider,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
		provider:   provider,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.SynthesizeTitleMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("consumer_service", "failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // invalid payloads never become valid, do not retry
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	note, err := uow.NoteRepository().FindOne(ctx, specification.ByID{ID: payload.NoteId})
	if err != nil {
		cs.logger.Error("consumer_service", "failed to load note", map[string]interface{}{
			"note_id": payload.NoteId.String(),
			"error":   err.Error(),
		})
		msg.Nack()
		return
	}
	if note == nil {
		msg.Ack() // note deleted since the run finished
		return
	}
	if note.Title != constant.DefaultNoteTitle {
		msg.Ack() // user already named it, leave it alone
		return
	}

	excerpt := note.Content
	if len(excerpt) > 2000 {
		excerpt = excerpt[:2000]
	}
	raw, err := cs.provider.Chat(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(constant.TitleSynthesisPrompt, excerpt)},
	})
	if err != nil {
		cs.logger.Error("consumer_service", "title synthesis call failed", map[string]interface{}{
			"note_id": payload.NoteId.String(),
			"error":   err.Error(),
		})
		msg.Nack()
		return
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if title == "" {
		msg.Ack()
		return
	}

	note.Title = title
	if err := uow.NoteRepository().Update(ctx, note); err != nil {
		cs.logger.Error("consumer_service", "failed to save synthesized title", map[string]interface{}{
			"note_id": payload.NoteId.String(),
			"error":   err.Error(),
		})
		msg.Nack()
		return
	}

	cs.logger.Info("consumer_service", "note title synthesized", map[string]interface{}{
		"note_id": payload.NoteId.String(),
	})
	msg.Ack()
}
