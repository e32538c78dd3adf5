package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/inrcare/backend/internal/errors"
	"github.com/inrcare/backend/internal/push"
	"github.com/inrcare/backend/internal/scheduler"
	"github.com/inrcare/backend/internal/store"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// ==================== Push ====================

func (s *Server) handleVAPIDPublicKey(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"publicKey": s.config.Push.VAPIDPublicKey})
}

type registerRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) handlePushRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	// Malformed subscriptions are rejected here so the dispatcher only
	// ever sees complete key material.
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return c.Status(400).JSON(fiber.Map{"error": apperrors.ErrValidation.Message})
	}

	sub, err := s.store.SavePushSubscription(currentUser(c), req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		s.logger.Error("failed to save push subscription", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to register subscription"})
	}

	return c.Status(201).JSON(sub)
}

func (s *Server) handlePushSendTest(c *fiber.Ctx) error {
	res := s.dispatcher.SendToUser(c.Context(), currentUser(c), push.ForTest())
	return c.JSON(fiber.Map{
		"success": res.Sent > 0,
		"message": fmt.Sprintf("delivered to %d device(s), %d failed", res.Sent, res.Failed),
	})
}

type endpointRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handlePushCheck(c *fiber.Ctx) error {
	var req endpointRequest
	if err := c.BodyParser(&req); err != nil || req.Endpoint == "" {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	sub, err := s.store.GetPushSubscriptionByEndpoint(req.Endpoint)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return c.JSON(fiber.Map{"registered": false})
		}
		s.logger.Error("failed to check push subscription", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to check subscription"})
	}

	return c.JSON(fiber.Map{"registered": sub.UserID == currentUser(c)})
}

func (s *Server) handlePushUnregister(c *fiber.Ctx) error {
	var req endpointRequest
	if err := c.BodyParser(&req); err != nil || req.Endpoint == "" {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	sub, err := s.store.GetPushSubscriptionByEndpoint(req.Endpoint)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return c.Status(404).JSON(fiber.Map{"error": "subscription not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to load subscription"})
	}

	if sub.UserID != currentUser(c) {
		return c.Status(403).JSON(fiber.Map{"error": apperrors.ErrForbidden.Message})
	}

	if _, err := s.store.DeletePushSubscription(sub.ID); err != nil {
		s.logger.Error("failed to delete push subscription", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to unregister"})
	}

	return c.SendStatus(204)
}

// ==================== Reminders ====================

// handleReminderTaken is the notification action target: it records the dose
// as taken and bounces the browser back to the app.
func (s *Server) handleReminderTaken(c *fiber.Ctx) error {
	id := c.QueryInt("id")
	if id <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "missing reminder id"})
	}

	rem, err := s.store.GetReminder(uint(id))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return c.Status(404).JSON(fiber.Map{"error": "reminder not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to load reminder"})
	}

	log := &store.MedicationLog{
		UserID:       rem.UserID,
		ReminderID:   rem.ID,
		MedicationID: rem.MedicationID,
		Taken:        true,
	}
	if err := s.store.CreateMedicationLog(log); err != nil {
		s.logger.Error("failed to record medication log", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to record dose"})
	}

	return c.Redirect(s.config.Push.ClickURL, 302)
}

func (s *Server) handleListReminders(c *fiber.Ctx) error {
	reminders, err := s.store.GetReminders(currentUser(c))
	if err != nil {
		s.logger.Error("failed to list reminders", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list reminders"})
	}
	return c.JSON(reminders)
}

type createReminderRequest struct {
	MedicationID uint   `json:"medication_id"`
	Time         string `json:"time"`
	Days         string `json:"days"`
	Active       bool   `json:"active"`
	NotifyBefore int    `json:"notify_before"`
}

func (s *Server) handleCreateReminder(c *fiber.Ctx) error {
	var req createReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if _, err := scheduler.ParseClock(req.Time); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "time must be HH:MM"})
	}
	if req.Active && req.Days == "" {
		return c.Status(400).JSON(fiber.Map{"error": "active reminder needs at least one day"})
	}
	if req.NotifyBefore < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "notify_before must not be negative"})
	}

	userID := currentUser(c)
	med, err := s.store.GetMedication(req.MedicationID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to load medication"})
	}
	if med.UserID != userID {
		return c.Status(403).JSON(fiber.Map{"error": apperrors.ErrForbidden.Message})
	}

	rem := &store.Reminder{
		UserID:       userID,
		MedicationID: req.MedicationID,
		Time:         req.Time,
		Days:         req.Days,
		Active:       req.Active,
		NotifyBefore: req.NotifyBefore,
	}
	if err := s.store.CreateReminder(rem); err != nil {
		s.logger.Error("failed to create reminder", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create reminder"})
	}

	return c.Status(201).JSON(rem)
}

func (s *Server) handleDeleteReminder(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid reminder id"})
	}

	rem, err := s.store.GetReminder(uint(id))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return c.Status(404).JSON(fiber.Map{"error": "reminder not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to load reminder"})
	}
	if rem.UserID != currentUser(c) {
		return c.Status(403).JSON(fiber.Map{"error": apperrors.ErrForbidden.Message})
	}

	if err := s.store.DeleteReminder(rem.ID); err != nil {
		s.logger.Error("failed to delete reminder", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete reminder"})
	}
	return c.SendStatus(204)
}

// ==================== Medications ====================

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	meds, err := s.store.ListMedications(currentUser(c))
	if err != nil {
		s.logger.Error("failed to list medications", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list medications"})
	}
	return c.JSON(meds)
}

type createMedicationRequest struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions"`
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req createMedicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "medication name is required"})
	}

	med := &store.Medication{
		UserID:       currentUser(c),
		Name:         req.Name,
		Dosage:       req.Dosage,
		Instructions: req.Instructions,
	}
	if err := s.store.CreateMedication(med); err != nil {
		s.logger.Error("failed to create medication", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create medication"})
	}

	return c.Status(201).JSON(med)
}

// ==================== Lab results ====================

func (s *Server) handleListLabResults(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	results, err := s.store.ListLabResults(currentUser(c), limit)
	if err != nil {
		s.logger.Error("failed to list lab results", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list lab results"})
	}
	return c.JSON(results)
}

type createLabResultRequest struct {
	INR        float64    `json:"inr"`
	PT         float64    `json:"pt"`
	Note       string     `json:"note"`
	MeasuredAt *time.Time `json:"measured_at"`
}

func (s *Server) handleCreateLabResult(c *fiber.Ctx) error {
	var req createLabResultRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.INR <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "inr must be positive"})
	}

	result := &store.LabResult{
		UserID: currentUser(c),
		INR:    req.INR,
		PT:     req.PT,
		Note:   req.Note,
	}
	if req.MeasuredAt != nil {
		result.MeasuredAt = *req.MeasuredAt
	}
	if err := s.store.CreateLabResult(result); err != nil {
		s.logger.Error("failed to create lab result", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to record lab result"})
	}

	return c.Status(201).JSON(result)
}

// ==================== Medication logs ====================

func (s *Server) handleListMedicationLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	logs, err := s.store.ListMedicationLogs(currentUser(c), limit)
	if err != nil {
		s.logger.Error("failed to list medication logs", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list logs"})
	}
	return c.JSON(logs)
}
