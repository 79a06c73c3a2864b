package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CheckHandler struct {
	pool *pgxpool.Pool
}

func NewCheckHandler(pool *pgxpool.Pool) *CheckHandler {
	return &CheckHandler{pool: pool}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleReady also checks the database so orchestrators can tell a
// booted process from a serving one.
func (h *CheckHandler) HandleReady(c *fiber.Ctx) error {
	if err := h.pool.Ping(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"result": "database unavailable",
		})
	}
	return c.JSON(fiber.Map{"result": "ready"})
}
