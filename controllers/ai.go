package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"databoard/middleware"
	"databoard/models"
	"databoard/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type SaveConversationRequest struct {
	Messages []services.ChatMessage `json:"messages" binding:"required,min=1,dive"`
}

type QueryRequest struct {
	Message string `json:"message" binding:"required"`
}

func aiError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"success": false, "message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}

// appendConversation adds messages to the user's single running conversation.
func (h *Handler) appendConversation(ctx context.Context, userID string, messages []services.ChatMessage) error {
	now := h.now()
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		err := tx.Where("user_id = ?", userID).First(&conv).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			conv = models.Conversation{UserID: userID, LastUpdated: now}
			if err := tx.Create(&conv).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&conv).Update("last_updated", now).Error; err != nil {
				return err
			}
		}

		rows := make([]models.ConversationMessage, len(messages))
		for i, m := range messages {
			rows[i] = models.ConversationMessage{
				ConversationID: conv.ID,
				Role:           m.Role,
				Content:        m.Content,
				Timestamp:      now,
			}
		}
		return tx.Create(&rows).Error
	})
}

func (h *Handler) SaveConversation(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req SaveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		aiError(c, http.StatusBadRequest, "Invalid messages provided", err)
		return
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			aiError(c, http.StatusBadRequest, "Invalid messages provided", nil)
			return
		}
	}

	if err := h.appendConversation(c.Request.Context(), user.ID, req.Messages); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("SaveConversation: failed")
		aiError(c, http.StatusInternalServerError, "Failed to process request in saveConversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Conversation saved successfully"})
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("timestamp ASC, id ASC")
}

func (h *Handler) ListConversations(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var conversations []models.Conversation
	err := h.dbc(c).
		Preload("Messages", orderedMessages).
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&conversations).Error
	if err != nil {
		aiError(c, http.StatusInternalServerError, "Failed to process request in getConversationList", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conversations": conversations})
}

func (h *Handler) GetConversation(c *gin.Context) {
	user := middleware.CurrentUser(c)
	chatID := c.Query("chatId")
	if chatID == "" {
		aiError(c, http.StatusBadRequest, "Chat ID is required", nil)
		return
	}

	var conv models.Conversation
	err := h.dbc(c).
		Preload("Messages", orderedMessages).
		Where("id = ? AND user_id = ?", chatID, user.ID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			aiError(c, http.StatusNotFound, "Conversation not found", nil)
			return
		}
		aiError(c, http.StatusInternalServerError, "Failed to process request in getConversation", err)
		return
	}
	messages := conv.Messages
	if messages == nil {
		messages = []models.ConversationMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	user := middleware.CurrentUser(c)
	chatID := c.Param("chatId")

	var deleted int64
	err := h.dbc(c).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", chatID, user.ID).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		if deleted == 0 {
			return nil
		}
		return tx.Where("conversation_id = ?", chatID).Delete(&models.ConversationMessage{}).Error
	})
	if err != nil {
		aiError(c, http.StatusInternalServerError, "Failed to process request in deleteConversation", err)
		return
	}
	if deleted == 0 {
		aiError(c, http.StatusNotFound, "Conversation not found or unauthorized", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Conversation deleted successfully"})
}

// Query asks the model about the user's workspace. Both turns are stored;
// on model failure the stored reply is the fallback text and the caller gets a 500.
func (h *Handler) Query(c *gin.Context) {
	user := middleware.CurrentUser(c)
	ctx := c.Request.Context()

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		aiError(c, http.StatusBadRequest, "Invalid message", err)
		return
	}

	var fileCount, chartCount int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.db.WithContext(gctx).Model(&models.FileUpload{}).Where("user_id = ?", user.ID).Count(&fileCount).Error
	})
	g.Go(func() error {
		return h.db.WithContext(gctx).Model(&models.Chart{}).Where("user_id = ?", user.ID).Count(&chartCount).Error
	})
	if err := g.Wait(); err != nil {
		aiError(c, http.StatusInternalServerError, "Error accessing database", err)
		return
	}

	reply, err := h.ai.Chat(ctx, []services.ChatMessage{
		{Role: "system", Content: services.BuildSystemPrompt(fileCount, chartCount)},
		{Role: "user", Content: req.Message},
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Query: AI call failed")
		saveErr := h.appendConversation(ctx, user.ID, []services.ChatMessage{
			{Role: "user", Content: req.Message},
			{Role: "assistant", Content: services.FallbackResponse},
		})
		if saveErr != nil {
			log.Error().Err(saveErr).Str("user_id", user.ID).Msg("Query: failed to store fallback turn")
		}
		aiError(c, http.StatusInternalServerError, "Error communicating with AI", err)
		return
	}

	if err := h.appendConversation(ctx, user.ID, []services.ChatMessage{
		{Role: "user", Content: req.Message},
		{Role: "assistant", Content: reply},
	}); err != nil {
		aiError(c, http.StatusInternalServerError, "Error accessing database", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": reply})
}
