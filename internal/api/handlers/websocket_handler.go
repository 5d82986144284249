package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/internal/core"
	"github.com/incident-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	manager *core.Manager
}

func NewWebSocketHandler(manager *core.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type          string `json:"type"`
			IncidentID    string `json:"incident_id"`
			FollowUpQuery string `json:"follow_up_query"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "analyze" {
			continue
		}

		logger.Info("Processing WebSocket analysis request", zap.String("incident_id", msg.IncidentID))

		err = h.streamAnalysis(c, msg.IncidentID, msg.FollowUpQuery)
		if err != nil {
			logger.Error("Failed to stream analysis", zap.Error(err))
			h.sendError(c, "Failed to analyze incident")
		}
	}
}

func (h *WebSocketHandler) streamAnalysis(c *websocket.Conn, incidentID, followUpQuery string) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "Analyzing incident...")

	results, err := h.manager.Analyze(ctx, incidentID, followUpQuery)
	if err != nil {
		return err
	}

	sections := []struct {
		name string
		text string
	}{
		{"root_cause", results.RootCause},
		{"code_analysis", results.CodeAnalysis},
		{"performance_analysis", results.PerformanceAnalysis},
	}

	for _, section := range sections {
		if err := h.sendChunk(c, "section", section.name); err != nil {
			return err
		}

		words := splitIntoWords(section.text)
		for i, word := range words {
			chunk := word
			if i < len(words)-1 {
				chunk += " "
			}

			if err := h.sendChunk(c, "chunk", chunk); err != nil {
				return err
			}
		}
	}

	return h.sendComplete(c, incidentID, results)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, incidentID string, results *contracts.AnalysisResult) error {
	msg := map[string]interface{}{
		"type":        "complete",
		"incident_id": incidentID,
		"results":     results,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
