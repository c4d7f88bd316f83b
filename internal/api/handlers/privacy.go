package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
	"github.com/veilora/veil-oracle-go/internal/services"
)

// PrivacyHandler serves the privacy-preserving query surface.
type PrivacyHandler struct {
	privacy *services.PrivacyService
	logger  *logrus.Logger
}

func NewPrivacyHandler(privacy *services.PrivacyService, logger *logrus.Logger) *PrivacyHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &PrivacyHandler{privacy: privacy, logger: logger}
}

// PrivatePriceRequest is the wire form of a private query. Durations and
// decimals travel as strings so clients are not tied to Go's encodings.
type PrivatePriceRequest struct {
	FeedID             string `json:"feed_id"`
	RequesterPublicKey string `json:"requester_public_key"`
	Nonce              string `json:"nonce"`
	MaxStaleness       string `json:"max_staleness"`
	MinPrice           string `json:"min_price"`
	MaxPrice           string `json:"max_price"`
	RequireZKProof     bool   `json:"require_zk_proof"`
	EncryptResponse    bool   `json:"encrypt_response"`
	AnonymizeSource    bool   `json:"anonymize_source"`
}

// GetPrivatePrice handles POST /api/v1/private/price.
func (h *PrivacyHandler) GetPrivatePrice(c *gin.Context) {
	var request PrivatePriceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeOracleError(c, models.WrapOracleError(models.ErrInvalidQuery, "malformed request body", err))
		return
	}

	query, err := request.toQuery()
	if err != nil {
		writeOracleError(c, err)
		return
	}

	response, err := h.privacy.GetPrivatePrice(c.Request.Context(), query)
	if err != nil {
		writeOracleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (r *PrivatePriceRequest) toQuery() (models.PrivateQuery, error) {
	query := models.PrivateQuery{
		FeedID:             r.FeedID,
		RequesterPublicKey: r.RequesterPublicKey,
		Nonce:              r.Nonce,
		PrivacyParams: models.PrivacyParams{
			RequireZKProof:  r.RequireZKProof,
			EncryptResponse: r.EncryptResponse,
			AnonymizeSource: r.AnonymizeSource,
		},
	}

	if r.MaxStaleness != "" {
		staleness, err := time.ParseDuration(r.MaxStaleness)
		if err != nil || staleness < 0 {
			return models.PrivateQuery{}, models.NewOracleErrorf(models.ErrInvalidQuery,
				"invalid max_staleness %q", r.MaxStaleness)
		}
		query.PriceConstraints.MaxStaleness = staleness
	}
	if r.MinPrice != "" {
		min, err := decimal.NewFromString(r.MinPrice)
		if err != nil {
			return models.PrivateQuery{}, models.NewOracleErrorf(models.ErrInvalidQuery,
				"invalid min_price %q", r.MinPrice)
		}
		query.PriceConstraints.MinPrice = &min
	}
	if r.MaxPrice != "" {
		max, err := decimal.NewFromString(r.MaxPrice)
		if err != nil {
			return models.PrivateQuery{}, models.NewOracleErrorf(models.ErrInvalidQuery,
				"invalid max_price %q", r.MaxPrice)
		}
		query.PriceConstraints.MaxPrice = &max
	}
	return query, nil
}

// VerifyProofRequest carries a proof plus the public inputs the caller
// expects it to be bound to.
type VerifyProofRequest struct {
	Proof        *models.ZKProof `json:"proof"`
	PublicInputs []string        `json:"public_inputs"`
}

// VerifyProofResponse reports the verification outcome.
type VerifyProofResponse struct {
	Valid      bool      `json:"valid"`
	VerifiedAt time.Time `json:"verified_at"`
}

// VerifyProof handles POST /api/v1/private/verify. A proof that fails
// cryptographic verification yields valid=false with HTTP 200; only
// malformed requests surface an error status.
func (h *PrivacyHandler) VerifyProof(c *gin.Context) {
	var request VerifyProofRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeOracleError(c, models.WrapOracleError(models.ErrInvalidQuery, "malformed request body", err))
		return
	}
	if request.Proof == nil {
		writeOracleError(c, models.NewOracleError(models.ErrInvalidQuery, "proof is required"))
		return
	}

	valid, err := h.privacy.VerifyProof(c.Request.Context(), request.Proof, request.PublicInputs)
	if err != nil {
		// Structural mismatches fail closed: the verdict is false, not an
		// internal error.
		h.logger.WithError(err).Debug("Proof verification rejected")
	}
	c.JSON(http.StatusOK, VerifyProofResponse{
		Valid:      valid,
		VerifiedAt: time.Now().UTC(),
	})
}

// GetPublicKey handles GET /api/v1/privacy/key. Requesters need the oracle's
// encryption key to open sealed prices.
func (h *PrivacyHandler) GetPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"public_key": h.privacy.PublicKeyHex(),
		"algorithm":  "x25519-xsalsa20-poly1305",
	})
}

// GetMetrics handles GET /api/v1/privacy/metrics (authenticated).
func (h *PrivacyHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.privacy.Metrics())
}

// GetAuditLog handles GET /api/v1/privacy/audit (operator only). The limit
// query parameter caps how many recent entries are returned.
func (h *PrivacyHandler) GetAuditLog(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeOracleError(c, models.NewOracleErrorf(models.ErrInvalidQuery, "invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	entries := h.privacy.AuditEntries(limit)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
