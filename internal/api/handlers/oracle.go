package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
	"github.com/veilora/veil-oracle-go/internal/services"
)

// OracleHandler serves public price queries.
type OracleHandler struct {
	oracle *services.OracleService
	logger *logrus.Logger
}

func NewOracleHandler(oracle *services.OracleService, logger *logrus.Logger) *OracleHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &OracleHandler{oracle: oracle, logger: logger}
}

// ErrorResponse is the uniform error payload for oracle endpoints.
type ErrorResponse struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// GetPrice handles GET /api/v1/price/*feed.
//
// Feed ids contain a slash (ETH/USD), so the route uses a wildcard segment.
// Optional query parameters: max_staleness (duration), min_confidence
// (float), allow_cached (bool, default true).
func (h *OracleHandler) GetPrice(c *gin.Context) {
	query := models.PriceQuery{
		FeedID:      strings.TrimPrefix(c.Param("feed"), "/"),
		AllowCached: true,
	}

	if raw := c.Query("max_staleness"); raw != "" {
		staleness, err := time.ParseDuration(raw)
		if err != nil || staleness < 0 {
			writeOracleError(c, models.NewOracleErrorf(models.ErrInvalidQuery, "invalid max_staleness %q", raw))
			return
		}
		query.MaxStaleness = staleness
	}
	if raw := c.Query("min_confidence"); raw != "" {
		confidence, err := strconv.ParseFloat(raw, 64)
		if err != nil || confidence < 0 || confidence > 100 {
			writeOracleError(c, models.NewOracleErrorf(models.ErrInvalidQuery, "invalid min_confidence %q", raw))
			return
		}
		query.MinConfidence = confidence
	}
	if raw := c.Query("allow_cached"); raw != "" {
		allowCached, err := strconv.ParseBool(raw)
		if err != nil {
			writeOracleError(c, models.NewOracleErrorf(models.ErrInvalidQuery, "invalid allow_cached %q", raw))
			return
		}
		query.AllowCached = allowCached
	}

	response, err := h.oracle.GetPublicPrice(c.Request.Context(), query)
	if err != nil {
		writeOracleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ListFeeds handles GET /api/v1/feeds.
func (h *OracleHandler) ListFeeds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"feeds": h.oracle.Feeds(),
		"count": len(h.oracle.Feeds()),
	})
}

// writeOracleError maps an oracle error code to an HTTP status and renders
// the uniform error payload. Unknown errors are reported as unavailable
// without leaking internals.
func writeOracleError(c *gin.Context, err error) {
	code, ok := models.CodeOf(err)
	if !ok {
		code = models.ErrSourceUnavailable
	}

	status := http.StatusServiceUnavailable
	switch code {
	case models.ErrInvalidQuery, models.ErrCommitmentMismatch, models.ErrDecryptionFailed:
		status = http.StatusBadRequest
	case models.ErrRateLimited:
		status = http.StatusTooManyRequests
	case models.ErrProofGenerationFailed, models.ErrProofVerificationFailed, models.ErrEncryptionFailed:
		status = http.StatusInternalServerError
	case models.ErrStaleData, models.ErrLowConfidence, models.ErrConsensusNotReached, models.ErrSourceUnavailable:
		status = http.StatusServiceUnavailable
	}

	message := "price temporarily unavailable"
	var oracleErr *models.OracleError
	if errors.As(err, &oracleErr) {
		message = oracleErr.Message
	}

	c.JSON(status, ErrorResponse{
		Code:      string(code),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
