package serverutils

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	Title   string `json:"title" validate:"required"`
	Stage   string `json:"stage" validate:"omitempty,oneof=outline quiz"`
	Content string `json:"content"`
}

func TestValidateRequest(t *testing.T) {
	err := ValidateRequest(sampleRequest{Title: "ok", Stage: "quiz"})
	assert.NoError(t, err)

	err = ValidateRequest(sampleRequest{Stage: "bogus"})
	assert.Error(t, err)

	fe, ok := err.(*fiber.Error)
	assert.True(t, ok, "validation failures map to fiber errors")
	assert.Equal(t, fiber.StatusBadRequest, fe.Code)
	assert.Contains(t, fe.Message, "Title")
	assert.Contains(t, fe.Message, "Stage")
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "note not found")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return assert.AnError
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var envelope Response[any]
	assert.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, fiber.StatusNotFound, envelope.Code)
	assert.Equal(t, "note not found", envelope.Message)

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
