package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/venuegateway/internal/gateway/application"
	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
	redisrepo "github.com/wyfcoding/venuegateway/internal/gateway/infrastructure/persistence/redis"
	"github.com/wyfcoding/venuegateway/internal/gateway/infrastructure/persistence/mysql"
)

// GatewayHandler is the ops control surface: subscribe, lookup, inspect.
type GatewayHandler struct {
	mux      *application.Multiplexer
	down     domain.DownstreamAdapter
	recorder *redisrepo.ResultRecorder
	audit    *mysql.AuditRepository
}

func NewGatewayHandler(mux *application.Multiplexer, down domain.DownstreamAdapter, recorder *redisrepo.ResultRecorder, audit *mysql.AuditRepository) *GatewayHandler {
	return &GatewayHandler{mux: mux, down: down, recorder: recorder, audit: audit}
}

func (h *GatewayHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1/gateway")
	{
		v1.GET("/state", h.GetState)
		v1.POST("/marketdata", h.SubscribeMarketData)
		v1.POST("/portfolio", h.SubscribePortfolio)
		v1.POST("/lookups/securities", h.LookupSecurities)
		v1.GET("/audit", h.GetAudit)
	}
}

func (h *GatewayHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.mux.Snapshot())
}

type marketDataRequest struct {
	DataType     string `json:"data_type" binding:"required"`
	SecurityID   int64  `json:"security_id"`
	Arg          string `json:"arg"`
	NewsID       string `json:"news_id"`
	BoardCode    string `json:"board_code"`
	Subscribe    *bool  `json:"subscribe" binding:"required"`
	OriginalTxID int64  `json:"original_tx_id"`
}

func (h *GatewayHandler) SubscribeMarketData(c *gin.Context) {
	var req marketDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dataType := parseDataType(req.DataType)
	if dataType == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown data_type"})
		return
	}

	msg := &domain.MarketDataMessage{
		Header: domain.Header{
			TxID:         h.down.NextTxID(),
			OriginalTxID: domain.TxID(req.OriginalTxID),
		},
		DataType:    dataType,
		SecurityID:  req.SecurityID,
		Arg:         req.Arg,
		NewsID:      req.NewsID,
		BoardCode:   req.BoardCode,
		IsSubscribe: *req.Subscribe,
	}
	h.mux.SendIn(msg)
	h.recordAudit(int64(msg.TxID), "marketdata", *req.Subscribe, req.DataType)

	c.JSON(http.StatusAccepted, gin.H{"tx_id": int64(msg.TxID)})
}

type portfolioRequest struct {
	Portfolio    string `json:"portfolio" binding:"required"`
	Subscribe    *bool  `json:"subscribe" binding:"required"`
	OriginalTxID int64  `json:"original_tx_id"`
}

func (h *GatewayHandler) SubscribePortfolio(c *gin.Context) {
	var req portfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := &domain.PortfolioMessage{
		Header: domain.Header{
			TxID:         h.down.NextTxID(),
			OriginalTxID: domain.TxID(req.OriginalTxID),
		},
		Portfolio:   req.Portfolio,
		IsSubscribe: *req.Subscribe,
	}
	h.mux.SendIn(msg)
	h.recordAudit(int64(msg.TxID), "portfolio", *req.Subscribe, req.Portfolio)

	c.JSON(http.StatusAccepted, gin.H{"tx_id": int64(msg.TxID)})
}

func (h *GatewayHandler) recordAudit(txID int64, kind string, subscribe bool, key string) {
	if h.audit == nil {
		return
	}
	action := domain.AuditActionSubscribe
	if !subscribe {
		action = domain.AuditActionUnsubscribe
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = h.audit.Record(ctx, txID, kind, action, key, "")
	}()
}

type securityLookupRequest struct {
	SecurityCode string `json:"security_code"`
	BoardCode    string `json:"board_code"`
}

// LookupSecurities resolves from the redis cache when possible; otherwise
// the lookup is queued towards the venue and the response carries its tx id.
// No route returns the venue's answer by tx id: with the cache attached, a
// completed lookup is stored there and a repeat request for the same code
// and board is served from it.
func (h *GatewayHandler) LookupSecurities(c *gin.Context) {
	var req securityLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.recorder != nil {
		rows, hit, err := h.recorder.GetSecurities(c.Request.Context(), req.SecurityCode, req.BoardCode)
		if err == nil && hit {
			c.JSON(http.StatusOK, gin.H{"cached": true, "securities": rows})
			return
		}
	}

	msg := &domain.SecurityLookupMessage{
		Header:       domain.Header{TxID: h.down.NextTxID()},
		SecurityCode: req.SecurityCode,
		BoardCode:    req.BoardCode,
	}
	if h.recorder != nil {
		h.recorder.Track(msg.TxID, req.SecurityCode, req.BoardCode)
	}
	h.mux.SendIn(msg)

	c.JSON(http.StatusAccepted, gin.H{"cached": false, "tx_id": int64(msg.TxID)})
}

func (h *GatewayHandler) GetAudit(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit trail disabled"})
		return
	}
	txID, err := strconv.ParseInt(c.Query("tx_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tx_id is required"})
		return
	}
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}

	rows, err := h.audit.RecentByTx(c.Request.Context(), txID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": txID, "entries": rows})
}

func parseDataType(s string) domain.MarketDataType {
	switch s {
	case "level1":
		return domain.DataTypeLevel1
	case "depth":
		return domain.DataTypeMarketDepth
	case "ticks":
		return domain.DataTypeTicks
	case "orderlog":
		return domain.DataTypeOrderLog
	case "candles":
		return domain.DataTypeCandles
	case "news":
		return domain.DataTypeNews
	case "board":
		return domain.DataTypeBoard
	default:
		return 0
	}
}
