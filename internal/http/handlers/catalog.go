package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/enneagram-backend/internal/http/response"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/scoring"
)

// CatalogHandler serves the read-only question bank and type library.
type CatalogHandler struct {
	bank    *scoring.Bank
	library *scoring.Library
}

func NewCatalogHandler(bank *scoring.Bank, library *scoring.Library) *CatalogHandler {
	return &CatalogHandler{bank: bank, library: library}
}

// GET /api/questions
func (h *CatalogHandler) GetQuestions(c *gin.Context) {
	response.RespondOK(c, h.bank)
}

// GET /api/types
func (h *CatalogHandler) ListTypes(c *gin.Context) {
	response.RespondOK(c, gin.H{"types": h.library.All()})
}

// GET /api/types/:id
func (h *CatalogHandler) GetType(c *gin.Context) {
	p, ok := h.library.Get(scoring.TypeID(c.Param("id")))
	if !ok {
		response.RespondErr(c, apierr.NotFound("type_not_found", "no type %q", c.Param("id")))
		return
	}
	response.RespondOK(c, gin.H{"type": p})
}
