package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Malathy2002/hall-booking-website/internal/auth"
	"github.com/Malathy2002/hall-booking-website/internal/payment"
	"github.com/Malathy2002/hall-booking-website/internal/pkg/response"
)

// WebhookSignatureHeader carries the HMAC of the raw webhook body.
const WebhookSignatureHeader = "X-Razorpay-Signature"

// maxWebhookBody bounds the webhook payload read into memory.
const maxWebhookBody = 1 << 20

type Handler struct {
	service payment.Service
}

func NewHandler(service payment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var body CreateOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.service.OpenOrder(c.Request.Context(), body.BookingID, auth.GetUserID(c), body.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, CheckoutResponse{
		ID:             order.ID,
		GatewayOrderID: order.GatewayOrderID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		KeyID:          order.KeyID,
	})
}

func (h *Handler) Verify(c *gin.Context) {
	var body VerifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	raw, err := json.Marshal(body)
	if err != nil {
		response.Error(c, err)
		return
	}

	res, err := h.service.VerifyCallback(c.Request.Context(), payment.Callback{
		GatewayOrderID:   body.OrderID,
		GatewayPaymentID: body.PaymentID,
		Signature:        body.Signature,
		Raw:              raw,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		Success:       true,
		BookingID:     res.Booking.ID,
		BookingStatus: string(res.Booking.Status),
		PaymentStatus: string(res.Booking.PaymentStatus),
		Replayed:      res.Replayed,
	})
}

// Webhook receives gateway events. It is authenticated by the body signature, not JWT.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	if err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader(WebhookSignatureHeader)); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) History(c *gin.Context) {
	var query HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	orders, err := h.service.History(c.Request.Context(), payment.HistoryFilter{
		CustomerID: auth.GetUserID(c),
		BookingID:  query.BookingID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]OrderResponse, len(orders))
	for i, o := range orders {
		items[i] = NewOrderResponse(o)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
