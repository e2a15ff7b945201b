package hubsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hubsync_backend/config"
	"github.com/mmdatafocus/hubsync_backend/models"
	"github.com/mmdatafocus/hubsync_backend/utils"
)

func syncTopic() string {
	topic := strings.TrimSpace(os.Getenv("HUB_SYNC_TOPIC"))
	if topic == "" {
		topic = "hub-sync"
	}
	return topic
}

// PublishSyncRequest queues a sync request for the push endpoint and returns its request id.
func PublishSyncRequest(ctx context.Context, req SyncRequest) (string, error) {
	if req.CompanyCode == "" {
		return "", errors.New("company code is required")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = models.SyncTriggeredPubSub
	}
	_, err := config.PublishJSON(ctx, syncTopic(), req, map[string]string{"company_code": req.CompanyCode})
	if err != nil {
		return "", err
	}
	return req.RequestID, nil
}

// DecodePushRequest unwraps a Pub/Sub push body into a sync request. The message id
// stands in for a missing request id so redeliveries share one ledger run.
func DecodePushRequest(body []byte) (SyncRequest, error) {
	var envelope PubSubPushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return SyncRequest{}, err
	}
	var req SyncRequest
	if err := json.Unmarshal(envelope.Message.Data, &req); err != nil {
		return SyncRequest{}, err
	}
	if req.CompanyCode == "" {
		return SyncRequest{}, errors.New("company code is required")
	}
	if req.RequestID == "" {
		req.RequestID = envelope.Message.ID
	}
	req.TriggeredBy = models.SyncTriggeredPubSub
	return req, nil
}

// PubSubPushHandler runs sync requests delivered by a Pub/Sub push subscription.
// Malformed messages are acknowledged with 204; a busy company or a ledger failure
// returns a non-2xx status so Pub/Sub redelivers.
func PubSubPushHandler(worker *Worker, lock *CompanyLock, secret []byte) gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var claims *utils.PushClaims
		if len(secret) > 0 {
			var err error
			claims, err = utils.JwtValidate(utils.BearerToken(c.GetHeader("Authorization")), secret)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		req, err := DecodePushRequest(body)
		if err != nil {
			logger.WithError(err).Warn("dropping malformed sync push message")
			c.Status(http.StatusNoContent)
			return
		}
		if claims != nil && claims.CompanyCode != "" && claims.CompanyCode != req.CompanyCode {
			c.JSON(http.StatusForbidden, gin.H{"error": "company code not allowed"})
			return
		}

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), req.RequestID)
		if lock != nil {
			release, err := lock.Obtain(ctx, req.CompanyCode)
			if errors.Is(err, ErrCompanyBusy) {
				c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
				return
			}
			if err != nil {
				config.LogError(logger, "hubsync", "PubSubPushHandler", "obtain lock", req.CompanyCode, err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lock unavailable"})
				return
			}
			defer release()
		}

		summary, err := worker.Run(ctx, req)
		if err != nil {
			if IsKind(err, KindValidation) {
				logger.WithError(err).WithField("request_id", req.RequestID).Warn("dropping invalid sync request")
				c.Status(http.StatusNoContent)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		logger.WithFields(logrus.Fields{
			"request_id":   req.RequestID,
			"company_code": req.CompanyCode,
			"status":       summary.Status,
		}).Debug("sync push handled")
		c.Status(http.StatusNoContent)
	}
}

// EssMessage is what the payroll engine receives for every forwarded self-service edit.
type EssMessage struct {
	ChangeType     models.ChangeType `json:"change_type"`
	CompanyCode    string            `json:"company_code"`
	EmployeeNumber string            `json:"employee_number,omitempty"`
	Payload        any               `json:"payload"`
}

type publishFunc func(ctx context.Context, topic string, obj any, attrs map[string]string) (string, error)

// PubSubPayrollSink forwards self-service edits to the payroll engine over Pub/Sub.
// New hires are assigned their employee number asynchronously, so ApplyNewHire never
// returns one.
type PubSubPayrollSink struct {
	topic   string
	publish publishFunc
}

func NewPubSubPayrollSink(topic string) *PubSubPayrollSink {
	if topic == "" {
		topic = strings.TrimSpace(os.Getenv("HUB_ESS_TOPIC"))
	}
	if topic == "" {
		topic = "hub-ess-changes"
	}
	return &PubSubPayrollSink{topic: topic, publish: config.PublishJSON}
}

func (s *PubSubPayrollSink) send(ctx context.Context, msg EssMessage) error {
	_, err := s.publish(ctx, s.topic, msg, map[string]string{
		"change_type":  string(msg.ChangeType),
		"company_code": msg.CompanyCode,
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w: %w", msg.ChangeType, s.topic, ErrPayrollUnavailable, err)
	}
	return nil
}

func (s *PubSubPayrollSink) ApplyNewHire(ctx context.Context, companyCode string, newHire models.NewHire) (string, error) {
	return "", s.send(ctx, EssMessage{ChangeType: models.ChangeTypeNewHire, CompanyCode: companyCode, Payload: newHire})
}

func (s *PubSubPayrollSink) UpdateAddress(ctx context.Context, companyCode, employeeNumber string, address models.Address) error {
	return s.send(ctx, EssMessage{ChangeType: models.ChangeTypeAddressUpdate, CompanyCode: companyCode, EmployeeNumber: employeeNumber, Payload: address})
}

func (s *PubSubPayrollSink) UpdatePhone(ctx context.Context, companyCode, employeeNumber, phone string) error {
	return s.send(ctx, EssMessage{ChangeType: models.ChangeTypePhoneUpdate, CompanyCode: companyCode, EmployeeNumber: employeeNumber, Payload: map[string]string{"cell_phone_number": phone}})
}

func (s *PubSubPayrollSink) UpdateTax(ctx context.Context, companyCode, employeeNumber string, tax models.EeTax) error {
	return s.send(ctx, EssMessage{ChangeType: models.ChangeTypeTaxUpdate, CompanyCode: companyCode, EmployeeNumber: employeeNumber, Payload: tax})
}

func (s *PubSubPayrollSink) UpdateDirectDeposits(ctx context.Context, companyCode, employeeNumber string, rules []models.DirectDepositRule) error {
	return s.send(ctx, EssMessage{ChangeType: models.ChangeTypeDirectDepositUpdate, CompanyCode: companyCode, EmployeeNumber: employeeNumber, Payload: rules})
}
