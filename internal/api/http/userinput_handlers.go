package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/packet"
)

// maxUserInputTimeout caps the wait a caller can ask for.
const maxUserInputTimeout = 5 * time.Minute

type userInputRequest struct {
	ClientId     string `json:"clientid"`
	QueryText    string `json:"querytext" binding:"required"`
	ResponseType string `json:"responsetype" binding:"required,oneof=text confirm"`
	Title        string `json:"title"`
	Markdown     bool   `json:"markdown"`
	CheckBoxMsg  string `json:"checkboxmsg"`
	PublicText   bool   `json:"publictext"`
	OkLabel      string `json:"oklabel"`
	CancelLabel  string `json:"cancellabel"`
	TimeoutMs    int    `json:"timeoutms"`
}

// RequestUserInput prompts a client (or every client when clientid is
// empty) and waits for the answer.
func (h *Handlers) RequestUserInput(c *gin.Context) {
	var req userInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if req.TimeoutMs > 0 {
		timeout := min(time.Duration(req.TimeoutMs)*time.Millisecond, maxUserInputTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := h.hub.RPC.DoRequest(ctx, req.ClientId, &feupdate.UserInputRequest{
		QueryText:    req.QueryText,
		ResponseType: req.ResponseType,
		Title:        req.Title,
		Markdown:     req.Markdown,
		CheckBoxMsg:  req.CheckBoxMsg,
		PublicText:   req.PublicText,
		OkLabel:      req.OkLabel,
		CancelLabel:  req.CancelLabel,
	})
	if err != nil {
		if resp == nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	uresp, ok := resp.(*packet.UserInputResponsePacket)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"text":         uresp.Text,
		"confirm":      uresp.Confirm,
		"checkboxstat": uresp.CheckboxStat,
	})
}
