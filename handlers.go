package main

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/utils"
	"github.com/mmdatafocus/feedback_backend/workflow"
	"github.com/sirupsen/logrus"
)

type rewardResponse struct {
	ClaimId      string            `json:"claimId"`
	QrCode       string            `json:"qrCode"`
	RewardType   models.RewardType `json:"rewardType"`
	CampaignName string            `json:"campaignName"`
}

type submitReviewResponse struct {
	ID        string              `json:"id"`
	Rating    int                 `json:"rating"`
	Status    models.ReviewStatus `json:"status"`
	CreatedAt time.Time           `json:"createdAt"`
	AlertId   *string             `json:"alertId,omitempty"`
	Reward    *rewardResponse     `json:"reward,omitempty"`
}

// respondError maps policy errors to 4xx and everything else to an opaque 500.
func respondError(c *gin.Context, logger *logrus.Logger, funcName string, err error) {
	var cooldown *models.CooldownActiveError
	switch {
	case errors.As(err, &cooldown):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           cooldown.Error(),
			"retryAfterHours": cooldown.RemainingHours(),
		})
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case models.IsClientError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if logger != nil {
			logger.WithFields(utils.LogFields(c.Request.Context())).WithFields(logrus.Fields{
				"module":   "handlers.go",
				"funcName": funcName,
				"path":     c.Request.URL.Path,
			}).Error(err.Error())
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func submitReviewHandler(deps serverDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewReview
		if err := c.ShouldBindJSON(&input); err != nil {
			deps.Metrics.RecordSubmission("invalid")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		input.StationId = c.Param("stationId")

		c.Request = c.Request.WithContext(utils.SetStationIdInContext(c.Request.Context(), input.StationId))
		result, err := deps.Submitter.Submit(c.Request.Context(), input)
		if err != nil {
			var cooldown *models.CooldownActiveError
			switch {
			case errors.As(err, &cooldown):
				deps.Metrics.RecordSubmission("cooldown")
			case models.IsClientError(err):
				deps.Metrics.RecordSubmission("invalid")
			}
			respondError(c, deps.Logger, "submitReviewHandler", err)
			return
		}
		deps.Metrics.RecordSubmission("accepted")

		resp := submitReviewResponse{
			ID:        result.Review.ID,
			Rating:    result.Review.Rating,
			Status:    result.Review.Status,
			CreatedAt: result.Review.CreatedAt,
			AlertId:   result.AlertId,
		}
		if result.Reward != nil {
			deps.Metrics.RecordReward()
			resp.Reward = &rewardResponse{
				ClaimId:      result.Reward.ClaimId,
				QrCode:       result.Reward.QrCode,
				RewardType:   result.Reward.RewardType,
				CampaignName: result.Reward.CampaignName,
			}
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func alertConfigurationHandler(deps serverDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAlertConfiguration
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		cfg, err := models.UpsertAlertConfiguration(c.Request.Context(), c.Param("stationId"), input)
		if err != nil {
			respondError(c, deps.Logger, "alertConfigurationHandler", err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

func getClaimHandler(deps serverDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		claim, err := models.GetRewardClaim(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, deps.Logger, "getClaimHandler", err)
			return
		}
		c.JSON(http.StatusOK, claim)
	}
}

func listClaimsHandler(deps serverDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		phone := strings.TrimSpace(c.Query("phone"))
		if phone == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "phone is required"})
			return
		}
		claims, err := models.ListRewardClaimsByPhone(c.Request.Context(), phone)
		if err != nil {
			respondError(c, deps.Logger, "listClaimsHandler", err)
			return
		}
		if claims == nil {
			claims = []models.RewardClaim{}
		}
		c.JSON(http.StatusOK, claims)
	}
}

type claimRewardRequest struct {
	Notes *string `json:"notes"`
}

func claimRewardHandler(deps serverDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req claimRewardRequest
		// an empty body is a claim without notes
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		claim, err := models.ClaimReward(c.Request.Context(), c.Param("id"), req.Notes)
		if err != nil {
			respondError(c, deps.Logger, "claimRewardHandler", err)
			return
		}
		c.JSON(http.StatusOK, claim)
	}
}

type alertTransitionRequest struct {
	Note *string `json:"note"`
}

func alertTransitionHandler(deps serverDeps, to models.AlertStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader("X-Actor-Id"))
		if actor == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Actor-Id header is required"})
			return
		}
		var req alertTransitionRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}

		c.Request = c.Request.WithContext(utils.SetActorIdInContext(c.Request.Context(), actor))
		alert, err := models.TransitionAlert(c.Request.Context(), c.Param("id"), to, actor, req.Note)
		if err != nil {
			respondError(c, deps.Logger, "alertTransitionHandler", err)
			return
		}
		c.JSON(http.StatusOK, alert)
	}
}

// pubSubPushHandler acks (2xx) processed and poison tasks and nacks (5xx) the rest,
// so Pub/Sub redelivers only what can still succeed.
func pubSubPushHandler(deps serverDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		msg, err := workflow.DecodePushEnvelope(body)
		if err == nil && msg.Channel != channel {
			err = errors.New("task channel " + msg.Channel + " pushed to " + channel)
		}
		if err != nil {
			config.LogError(deps.Logger, "handlers.go", "pubSubPushHandler", "Decoding push envelope", channel, err)
			c.Status(http.StatusNoContent)
			return
		}

		if err := deps.Processor.ProcessTask(c.Request.Context(), msg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type taskReplayRequest struct {
	RecordId int    `json:"record_id"`
	Channel  string `json:"channel"`
	AllDead  bool   `json:"all_dead"`
}

func taskReplayHandler(deps serverDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.OpsToken == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "ops endpoints are disabled"})
			return
		}
		given := c.GetHeader("X-Ops-Token")
		if subtle.ConstantTimeCompare([]byte(given), []byte(deps.OpsToken)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req taskReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.Channel != "" && !config.IsKnownChannel(req.Channel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
			return
		}

		ctx := c.Request.Context()
		switch {
		case req.RecordId > 0:
			rec, err := models.ReplayTask(ctx, req.RecordId)
			if err != nil {
				respondError(c, deps.Logger, "taskReplayHandler", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"record_id":         rec.ID,
				"publish_status":    rec.PublishStatus,
				"processing_status": rec.ProcessingStatus,
			})
		case req.AllDead:
			n, err := models.ReplayDeadTasks(ctx, req.Channel)
			if err != nil {
				respondError(c, deps.Logger, "taskReplayHandler", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"replayed": n, "channel": req.Channel})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id or all_dead is required"})
		}
	}
}
