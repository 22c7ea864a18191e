package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"raffle/internal/models"
	"raffle/internal/proof"
	"raffle/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
	"github.com/google/logger"
)

// ActorHeader names the operator responsible for a request.
const ActorHeader = "X-Actor"

// HTTPHandler exposes the raffle engine over JSON.
type HTTPHandler struct {
	svc *services.Services
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(svc *services.Services) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/raffles", h.CreateRaffle)
	router.GET("/raffles/:id", h.GetRaffle)
	router.POST("/raffles/:id/entries", h.PurchaseTickets)
	router.POST("/entries/:id/payment", h.ConfirmPayment)
	router.POST("/raffles/:id/commitment", h.PublishCommitment)
	router.POST("/raffles/:id/draw", h.DrawWinner)
	router.POST("/raffles/:id/audits/:auditId/verify", h.VerifyDraw)
	router.GET("/raffles/:id/compliance-report", h.ComplianceReport)
	router.GET("/raffles/:id/compliance-report.csv", h.ExportComplianceReportCSV)
	router.GET("/proofs/verify", h.VerifyProof)
}

// ActorMiddleware tags the request context with the X-Actor header so the
// compliance trail records who acted.
func (h *HTTPHandler) ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(ActorHeader); actor != "" {
			c.Request = c.Request.WithContext(services.WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrRaffleNotFound),
		errors.Is(err, services.ErrAuditNotFound),
		errors.Is(err, services.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrRaffleAlreadyDrawn),
		errors.Is(err, services.ErrNoEligibleEntries),
		errors.Is(err, services.ErrRaffleNotOpen),
		errors.Is(err, services.ErrSoldOut),
		errors.Is(err, services.ErrTicketConflict),
		errors.Is(err, services.ErrCommitmentExists),
		errors.Is(err, services.ErrPaymentSettled):
		return http.StatusConflict
	case errors.Is(err, services.ErrEntropyUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidRaffle),
		errors.Is(err, services.ErrInvalidPayment),
		errors.Is(err, services.ErrInvalidCommitment),
		errors.Is(err, services.ErrAuditRaffleMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type createRaffleRequest struct {
	Title        string    `json:"title" binding:"required"`
	TotalTickets int       `json:"totalTickets" binding:"required,gt=0"`
	EndTime      time.Time `json:"endTime" binding:"required"`
}

// CreateRaffle opens a new raffle for sales.
func (h *HTTPHandler) CreateRaffle(c *gin.Context) {
	var req createRaffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.svc.Raffles.CreateRaffle(c.Request.Context(), req.Title, req.TotalTickets, req.EndTime)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *HTTPHandler) GetRaffle(c *gin.Context) {
	r, err := h.svc.Raffles.GetRaffle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type purchaseRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// PurchaseTickets reserves tickets for a user. Payment is settled separately.
func (h *HTTPHandler) PurchaseTickets(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := h.svc.Raffles.PurchaseTickets(c.Request.Context(), c.Param("id"), req.UserID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

type paymentRequest struct {
	Status models.PaymentStatus `json:"status" binding:"required"`
}

// ConfirmPayment records the payment collaborator's verdict on an entry.
func (h *HTTPHandler) ConfirmPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := h.svc.Raffles.ConfirmPayment(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type commitmentRequest struct {
	ScheduledDrawTime time.Time `json:"scheduledDrawTime" binding:"required"`
}

// PublishCommitment publishes the seed hash for a future draw.
func (h *HTTPHandler) PublishCommitment(c *gin.Context) {
	var req commitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	commitment, err := h.svc.Commitments.PublishSeedCommitment(c.Request.Context(), c.Param("id"), req.ScheduledDrawTime)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, commitment)
}

// DrawWinner conducts the draw. The body is optional.
func (h *HTTPHandler) DrawWinner(c *gin.Context) {
	var opts services.DrawOptions
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := h.svc.Draws.DrawWinner(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// VerifyDraw replays a recorded draw. A mismatch is a 200 with verified=false.
func (h *HTTPHandler) VerifyDraw(c *gin.Context) {
	res, err := h.svc.Verifier.Verify(c.Request.Context(), c.Param("id"), c.Param("auditId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *HTTPHandler) ComplianceReport(c *gin.Context) {
	report, err := h.svc.Reports.GenerateComplianceReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExportComplianceReportCSV handles the request to download the audit rows of
// a compliance report as a CSV file.
func (h *HTTPHandler) ExportComplianceReportCSV(c *gin.Context) {
	report, err := h.svc.Reports.GenerateComplianceReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment;filename=compliance_report_"+report.RaffleID+".csv")

	// Add BOM to ensure UTF-8 compatibility in Excel
	if _, err := c.Writer.Write([]byte("\xef\xbb\xbf")); err != nil {
		logger.Errorf("Error writing CSV BOM: %v", err)
		return
	}
	if err := gocsv.Marshal(&report.Audits, c.Writer); err != nil {
		logger.Errorf("Error writing compliance report CSV for raffle %s: %v", report.RaffleID, err)
	}
}

// VerifyProof checks a proof bundle on its own, without touching the store.
func (h *HTTPHandler) VerifyProof(c *gin.Context) {
	blob := c.Query("blob")
	if blob == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blob query parameter is required"})
		return
	}
	bundle, ok, err := proof.VerifyBlob(blob)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok, "proof": bundle.Proof, "hash": bundle.Hash})
}
