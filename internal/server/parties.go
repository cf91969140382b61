package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	partydomain "github.com/smallbiznis/rentflow/internal/party/domain"
)

type createPartyRequest struct {
	Kind  string `json:"kind" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

func (s *Server) HandleCreateParty(c *gin.Context) {
	var req createPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind != partydomain.KindTenant && kind != partydomain.KindLandlord {
		AbortWithError(c, newValidationError("kind", "invalid_kind", "kind must be tenant or landlord"))
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		AbortWithError(c, newValidationError("email", "invalid_email", "invalid email address"))
		return
	}

	party := &partydomain.Party{
		ID:        s.genID.Generate(),
		Kind:      kind,
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.partyRepo.Insert(c.Request.Context(), s.db, party); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, party)
}

func (s *Server) HandleGetParty(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid party id"))
		return
	}

	party, err := s.partyRepo.FindByID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if party == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, party)
}
