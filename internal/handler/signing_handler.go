package handler

import (
	"encoding/hex"

	"github.com/gin-gonic/gin"

	"vault-core/internal/handler/response"
	"vault-core/internal/signing"
	"vault-core/pkg/errno"
	"vault-core/pkg/monitor"
)

// SigningHandler 门限签名相关的 HTTP 入口
type SigningHandler struct {
	svc *signing.Service
}

func NewSigningHandler(svc *signing.Service) *SigningHandler {
	return &SigningHandler{svc: svc}
}

type setPathRequest struct {
	Path []string `json:"path" binding:"required"` // 4 字节段, hex
}

// SetDerivationPath POST /signing/path
func (h *SigningHandler) SetDerivationPath(c *gin.Context) {
	var req setPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	path := make([][]byte, len(req.Path))
	for i, seg := range req.Path {
		raw, err := hex.DecodeString(seg)
		if err != nil {
			response.Error(c, errno.Validationf("path segment %d is not hex", i))
			return
		}
		path[i] = raw
	}

	if err := h.svc.SetDerivationPath(Principal(c), path); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetPublicKey GET /signing/public-key
func (h *SigningHandler) GetPublicKey(c *gin.Context) {
	key, err := h.svc.PublicKey(c.Request.Context(), Principal(c))
	h.recordMetric("public_key", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"public_key": hex.EncodeToString(key)})
}

type signMessageRequest struct {
	Message string `json:"message" binding:"required"` // hex
}

// SignMessage POST /signing/sign
func (h *SigningHandler) SignMessage(c *gin.Context) {
	var req signMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	message, err := hex.DecodeString(req.Message)
	if err != nil {
		response.Error(c, errno.Validationf("message is not hex"))
		return
	}

	sig, err := h.svc.Sign(c.Request.Context(), Principal(c), message)
	h.recordMetric("sign", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"signature": hex.EncodeToString(sig)})
}

// GetMetrics GET /signing/metrics
func (h *SigningHandler) GetMetrics(c *gin.Context) {
	response.Success(c, h.svc.Metrics())
}

func (h *SigningHandler) recordMetric(operation string, err error) {
	if monitor.Business == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	monitor.Business.SigningRequestsTotal.WithLabelValues(operation, status).Inc()
}
