package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
)

type generateObligationsRequest struct {
	Period string `json:"period" binding:"required"`
}

func (s *Server) HandleGenerateObligations(c *gin.Context) {
	var req generateObligationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tally, err := s.obligationSvc.GenerateForPeriod(c.Request.Context(), strings.TrimSpace(req.Period))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tally)
}

func (s *Server) HandleListObligations(c *gin.Context) {
	filter := obligationdomain.ListFilter{
		Status:        strings.TrimSpace(c.Query("status")),
		ChargeKind:    strings.TrimSpace(c.Query("charge_kind")),
		BillingPeriod: strings.TrimSpace(c.Query("billing_period")),
	}

	if filter.Status != "" && !obligationdomain.ValidStatus(filter.Status) {
		AbortWithError(c, newValidationError("status", "invalid_status", "unknown status"))
		return
	}
	if filter.ChargeKind != "" && !obligationdomain.ValidChargeKind(filter.ChargeKind) {
		AbortWithError(c, newValidationError("charge_kind", "invalid_charge_kind", "unknown charge kind"))
		return
	}

	tenantID, err := parseOptionalSnowflakeID(c.Query("tenant_id"))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_id", "invalid tenant id"))
		return
	}
	if tenantID != nil {
		filter.TenantID = *tenantID
	}
	landlordID, err := parseOptionalSnowflakeID(c.Query("landlord_id"))
	if err != nil {
		AbortWithError(c, newValidationError("landlord_id", "invalid_id", "invalid landlord id"))
		return
	}
	if landlordID != nil {
		filter.LandlordID = *landlordID
	}
	leaseID, err := parseOptionalSnowflakeID(c.Query("lease_id"))
	if err != nil {
		AbortWithError(c, newValidationError("lease_id", "invalid_id", "invalid lease id"))
		return
	}
	if leaseID != nil {
		filter.LeaseID = *leaseID
	}

	filter.DueFrom, err = parseOptionalTime(c.Query("due_from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("due_from", "invalid_date", "invalid due_from"))
		return
	}
	filter.DueTo, err = parseOptionalTime(c.Query("due_to"), true)
	if err != nil {
		AbortWithError(c, newValidationError("due_to", "invalid_date", "invalid due_to"))
		return
	}

	limit := parseLimit(c.Query("limit"))
	items, err := s.obligationSvc.List(c.Request.Context(), filter, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Listings refresh overdue state on read so callers see honest
	// statuses between scheduler sweeps.
	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i, item := range items {
		if item.Status != obligationdomain.StatusPending || !item.DueDate.Before(today) {
			continue
		}
		refreshed, err := s.obligationSvc.MarkOverdue(c.Request.Context(), item.ID)
		if err != nil {
			// A sweep or settlement got there first; keep the row as is.
			if errors.Is(err, obligationdomain.ErrTransitionRejected) {
				continue
			}
			AbortWithError(c, err)
			return
		}
		items[i] = refreshed
	}

	c.JSON(http.StatusOK, gin.H{"obligations": items})
}

func (s *Server) HandleGetObligation(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid obligation id"))
		return
	}

	obligation, err := s.obligationSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, obligation)
}

// HandleObligationReceipt renders the rent receipt for a completed
// obligation and streams it back as a PDF download.
func (s *Server) HandleObligationReceipt(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid obligation id"))
		return
	}

	obligation, err := s.obligationSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	path, err := s.receiptSvc.GenerateForObligation(c.Request.Context(), obligation)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.FileAttachment(path, "receipt_"+obligation.ID.String()+".pdf")
}

func (s *Server) HandleLandlordStats(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid landlord id"))
		return
	}

	stats, err := s.obligationSvc.Stats(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
