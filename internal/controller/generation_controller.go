package controller

import (
	"bufio"
	"context"
	"time"

	"ai-studynotes-be/internal/constant"
	"ai-studynotes-be/internal/dto"
	"ai-studynotes-be/internal/pkg/logger"
	"ai-studynotes-be/internal/pkg/serverutils"
	"ai-studynotes-be/internal/service"
	"ai-studynotes-be/pkg/sse"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IGenerationController interface {
	RegisterRoutes(r fiber.Router)
	Generate(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	GetLatest(ctx *fiber.Ctx) error
	AnalyzeWeakSpots(ctx *fiber.Ctx) error
}

type generationController struct {
	generationService service.IGenerationService
	generateTimeout   time.Duration
	logger            logger.ILogger
}

func NewGenerationController(
	generationService service.IGenerationService,
	generateTimeoutSeconds int,
	log logger.ILogger,
) IGenerationController {
	return &generationController{
		generationService: generationService,
		generateTimeout:   time.Duration(generateTimeoutSeconds) * time.Second,
		logger:            log,
	}
}

func (c *generationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/note/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post(":id/generate", c.Generate)
	h.Delete(":id/generate", c.Cancel)
	h.Get(":id/generation", c.GetLatest)
	h.Post(":id/weak-spots", c.AnalyzeWeakSpots)
}

// cancellingSink stops the run once the client is gone: a failed frame write
// closes the encoder, and a closed encoder cancels the run context.
type cancellingSink struct {
	enc    *sse.Encoder
	cancel context.CancelFunc
}

func (s cancellingSink) Send(event string, payload any) error {
	err := s.enc.Send(event, payload)
	if s.enc.Closed() {
		s.cancel()
	}
	return err
}

func (c *generationController) Generate(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	noteId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid note id")
	}

	var req dto.GenerateRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return err
		}
	}
	req.NoteId = noteId

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// Authorization failures must arrive as plain JSON errors, not as a
	// 200 stream that immediately errors out.
	if err := c.generationService.Authorize(ctx.Context(), userId, &req); err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	// The fiber context is recycled once this handler returns; the stream
	// writer below runs after that, so it may only close over copies.
	gen := c.generationService
	timeout := c.generateTimeout
	log := c.logger
	request := req

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		runCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		enc := sse.NewEncoder(w)
		defer enc.Close()

		sink := cancellingSink{enc: enc, cancel: cancel}
		if err := gen.Generate(runCtx, userId, &request, sink); err != nil {
			// Pre-flight re-check failed between Authorize and here.
			log.Warn("generation_controller", "generation refused after stream start", map[string]interface{}{
				"note_id": request.NoteId.String(),
				"error":   err.Error(),
			})
			_ = enc.Send(constant.EventError, dto.ErrorPayload{Message: err.Error()})
		}
	}))

	return nil
}

func (c *generationController) Cancel(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	noteId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid note id")
	}

	if !c.generationService.Cancel(userId, noteId) {
		return fiber.NewError(fiber.StatusNotFound, "no generation running for this note")
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Generation cancelled", nil))
}

func (c *generationController) GetLatest(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	noteId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid note id")
	}

	res, err := c.generationService.GetLatest(ctx.Context(), userId, noteId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show generation", res))
}

func (c *generationController) AnalyzeWeakSpots(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	noteId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid note id")
	}

	var req dto.WeakSpotsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	req.NoteId = noteId

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.generationService.AnalyzeWeakSpots(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success analyze weak spots", res))
}
