package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/internal/core"
	"github.com/incident-agent/backend/internal/memory"
	"github.com/incident-agent/backend/pkg/logger"
)

type IncidentHandler struct {
	manager *core.Manager
}

func NewIncidentHandler(manager *core.Manager) *IncidentHandler {
	return &IncidentHandler{
		manager: manager,
	}
}

type createIncidentRequest struct {
	ID             string                    `json:"id"`
	Title          string                    `json:"title"`
	Description    string                    `json:"description"`
	Severity       string                    `json:"severity"`
	Status         string                    `json:"status"`
	Context        contracts.EnvironmentContext `json:"context"`
	Logs           []rawLog                  `json:"logs"`
	CodeReferences []contracts.CodeReference `json:"code_references"`
	Metrics        []contracts.Metric        `json:"metrics"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

type rawLog struct {
	Timestamp  time.Time              `json:"timestamp"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Attributes map[string]interface{} `json:"attributes"`
}

func (h *IncidentHandler) CreateIncident(c *fiber.Ctx) error {
	var req createIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	logs := make([]contracts.LogMessage, 0, len(req.Logs))
	for _, raw := range req.Logs {
		logs = append(logs, contracts.LogMessage{
			Timestamp:  raw.Timestamp,
			Level:      raw.Level,
			Message:    raw.Message,
			Attributes: contracts.CoerceAttributes(raw.Attributes),
		})
	}

	incident := &contracts.Incident{
		ID:             req.ID,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       contracts.Severity(req.Severity),
		Status:         contracts.IncidentStatus(req.Status),
		Context:        req.Context,
		Logs:           logs,
		CodeReferences: req.CodeReferences,
		Metrics:        req.Metrics,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}

	id, err := h.manager.Create(incident)
	if err != nil {
		logger.Error("Failed to create incident", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": id,
	})
}

func (h *IncidentHandler) GetIncident(c *fiber.Ctx) error {
	id := c.Params("id")

	incident, err := h.manager.Get(id)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Incident not found",
			})
		}
		logger.Error("Failed to get incident", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get incident",
		})
	}

	return c.JSON(incident)
}

func (h *IncidentHandler) ListIncidents(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"incident_ids": h.manager.ListIDs(),
	})
}

func (h *IncidentHandler) UpdateIncident(c *fiber.Ctx) error {
	id := c.Params("id")

	var updates map[string]interface{}
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one field to update is required",
		})
	}

	if err := h.manager.Update(id, updates); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Incident not found",
			})
		}
		logger.Error("Failed to update incident", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status": "updated",
	})
}

func (h *IncidentHandler) ResolveIncident(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.manager.Resolve(id); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Incident not found",
			})
		}
		logger.Error("Failed to resolve incident", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status": "resolved",
	})
}

func (h *IncidentHandler) AddLog(c *fiber.Ctx) error {
	id := c.Params("id")

	var req struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.manager.AddLog(id, req.Level, req.Message); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Incident not found",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status": "log added",
	})
}

func (h *IncidentHandler) AnalyzeIncident(c *fiber.Ctx) error {
	id := c.Params("id")

	var req struct {
		FollowUpQuery string `json:"follow_up_query"`
	}
	// Body is optional for analysis requests.
	_ = c.BodyParser(&req)

	results, err := h.manager.Analyze(c.Context(), id, req.FollowUpQuery)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Incident not found",
			})
		}
		logger.Error("Failed to analyze incident", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "Analysis failed",
			"results": results,
		})
	}

	return c.JSON(results)
}
