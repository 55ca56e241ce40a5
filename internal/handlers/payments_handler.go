package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-upi-reconciler/internal/balance"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
	"github.com/imrishuroy/go-upi-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-upi-reconciler/internal/sessions"
	"github.com/imrishuroy/go-upi-reconciler/internal/upi"
	"github.com/imrishuroy/go-upi-reconciler/internal/validation"
)

// Reconciler is the part of *reconcile.Engine the routes call.
type Reconciler interface {
	CreateSession(ctx context.Context, req reconcile.CreateSessionRequest) (reconcile.CreateSessionResult, error)
	CheckStatus(ctx context.Context, orderID string) (sessions.Status, error)
	MarkDone(ctx context.Context, orderID string) (reconcile.DoneResult, error)
	Cancel(ctx context.Context, orderID string) (sessions.Status, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	CurrentBalance(ctx context.Context) (float64, error)
}

// NonceIssuer hands out anti-replay tokens; satisfied by *nonces.Guard.
type NonceIssuer interface {
	Issue(ctx context.Context, client nonces.ClientContext) (string, error)
}

// MetricsFlusher ships buffered counters; satisfied by *aws.Metrics.
type MetricsFlusher interface {
	FlushAsync(ctx context.Context)
}

// HandlerConfig groups dependencies for the payment routes. Metrics is
// optional.
type HandlerConfig struct {
	Engine  Reconciler
	Nonces  NonceIssuer
	Payee   upi.Payee
	Metrics MetricsFlusher
	Logger  *slog.Logger
}

// RegisterPaymentRoutes registers the payment API under /api.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &paymentHandler{cfg: cfg, logger: logger}

	api := r.Group("/api")
	if cfg.Metrics != nil {
		api.Use(FlushMetrics(cfg.Metrics))
	}

	api.GET("/nonce", func(c *gin.Context) {
		nonce, err := cfg.Nonces.Issue(c.Request.Context(), clientContext(c))
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"nonce": nonce})
	})

	api.POST("/create-payment-session", func(c *gin.Context) {
		var req validation.CreateSessionRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		res, err := cfg.Engine.CreateSession(c.Request.Context(), reconcile.CreateSessionRequest{
			OrderID:         req.OrderID,
			ProductDetails:  req.ProductDetails,
			DeliveryDetails: req.DeliveryDetails,
			Email:           req.Email,
			Nonce:           req.Nonce,
			CouponCode:      req.CouponCode,
			Tax:             req.Tax.String(),
			BasePrice:       *req.BasePrice,
			Client:          clientContext(c),
		})
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"orderId":   res.OrderID,
			"amount":    res.Amount,
			"expiresAt": res.ExpiresAt.Format(time.RFC3339),
		})
	})

	api.GET("/payment-status/:orderId", func(c *gin.Context) {
		status, err := cfg.Engine.CheckStatus(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	})

	api.POST("/payment-done", func(c *gin.Context) {
		var req validation.OrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		res, err := cfg.Engine.MarkDone(c.Request.Context(), req.OrderID)
		if err != nil {
			h.fail(c, err)
			return
		}
		body := gin.H{"status": res.Status}
		if res.Diff != nil {
			body["diff"] = *res.Diff
		}
		if res.Expected != nil {
			body["expected"] = *res.Expected
		}
		c.JSON(http.StatusOK, body)
	})

	api.POST("/payment-cancel", func(c *gin.Context) {
		var req validation.OrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		status, err := cfg.Engine.Cancel(c.Request.Context(), req.OrderID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	})

	api.GET("/order/:orderId", func(c *gin.Context) {
		order, err := cfg.Engine.GetOrder(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
	})

	api.GET("/balance", func(c *gin.Context) {
		bal, err := cfg.Engine.CurrentBalance(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "balance": bal})
	})

	api.GET("/upi-uri", func(c *gin.Context) {
		var q validation.UPIQuery
		if err := validation.BindQueryAndValidate(c, &q, v); err != nil {
			return
		}
		uri, err := cfg.Payee.IntentURI(q.Amount, q.Note)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"upiString": uri,
			"upiId":     cfg.Payee.ID,
			"payeeName": cfg.Payee.Name,
		})
	})
}

type paymentHandler struct {
	cfg    HandlerConfig
	logger *slog.Logger
}

// fail maps the error taxonomy onto HTTP status codes.
func (h *paymentHandler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, reconcile.ErrValidation),
		errors.Is(err, nonces.ErrNonce),
		errors.Is(err, upi.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, balance.ErrUpstream):
		h.logger.WarnContext(ctx, "balance provider failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "balance provider unavailable"})
	case errors.Is(err, upi.ErrNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.logger.ErrorContext(ctx, "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// clientContext takes the first X-Forwarded-For hop, else the remote address.
func clientContext(c *gin.Context) nonces.ClientContext {
	ip := ""
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip == "" {
		ip = c.ClientIP()
	}
	return nonces.ClientContext{IP: ip, UserAgent: c.Request.UserAgent()}
}
