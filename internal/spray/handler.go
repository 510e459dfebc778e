package spray

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/HenshawIII/Galafy/internal/customer"
	"github.com/HenshawIII/Galafy/internal/event"
	"github.com/HenshawIII/Galafy/internal/ledger"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes the spray endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a spray handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	ReceiverUserID        string `json:"receiverUserId"`
	ReceiverParticipantID string `json:"receiverParticipantId"`
	Amount                string `json:"amount"`
	Note                  string `json:"note"`
}

type sprayView struct {
	ID               string    `json:"id"`
	EventID          string    `json:"eventId"`
	SprayerWalletID  string    `json:"sprayerWalletId"`
	ReceiverWalletID string    `json:"receiverWalletId"`
	TotalAmount      string    `json:"totalAmount"`
	Note             string    `json:"note,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type totalsView struct {
	TotalAmount string `json:"totalAmount"`
	TotalCount  int    `json:"totalCount"`
}

// Create processes POST /events/:eventId/sprays.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing authenticated user")
	}

	res, err := h.service.Create(c.UserContext(), Input{
		EventID:               c.Params("eventId"),
		UserID:                uid,
		ReceiverUserID:        req.ReceiverUserID,
		ReceiverParticipantID: req.ReceiverParticipantID,
		Amount:                req.Amount,
		Note:                  req.Note,
		IdempotencyKey:        c.Get(idempotencyKeyHeader),
	})
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"spray": sprayView{
			ID:               res.Spray.ID,
			EventID:          res.Spray.EventID,
			SprayerWalletID:  res.Spray.SprayerWalletID,
			ReceiverWalletID: res.Spray.ReceiverWalletID,
			TotalAmount:      res.Spray.TotalAmount.String(),
			Note:             res.Spray.Note,
			CreatedAt:        res.Spray.CreatedAt,
		},
		"sprayerBalance":  res.SprayerBalance.String(),
		"receiverBalance": res.ReceiverBalance.String(),
		"eventTotals": totalsView{
			TotalAmount: res.EventTotals.TotalAmount.String(),
			TotalCount:  res.EventTotals.TotalCount,
		},
	})
}

// Totals processes GET /events/:eventId/sprays/totals.
func (h *Handler) Totals(c *fiber.Ctx) error {
	eventID := c.Params("eventId")
	totals, err := h.service.Totals(c.UserContext(), eventID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"eventId": eventID,
		"eventTotals": totalsView{
			TotalAmount: totals.TotalAmount.String(),
			TotalCount:  totals.TotalCount,
		},
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrRateLimited):
		return fiber.NewError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrEventNotLive), errors.Is(err, ErrNotParticipant):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, event.ErrEventNotFound),
		errors.Is(err, event.ErrParticipantNotFound),
		errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, customer.ErrCustomerNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrMissingIdempotencyKey),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountBelowMinimum),
		errors.Is(err, ErrMissingReceiver),
		errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrWalletNotConfigured),
		errors.Is(err, ErrProvider),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
