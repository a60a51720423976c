package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/remote"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/id"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/utils"
)

// ListRemotes lists every running remote.
func (h *Handlers) ListRemotes(c *gin.Context) {
	remotes := h.hub.Remotes.List()
	c.JSON(http.StatusOK, gin.H{
		"remotes": remotes,
		"count":   len(remotes),
	})
}

// CreateRemote starts a new shell.
func (h *Handlers) CreateRemote(c *gin.Context) {
	var opts remote.Options
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}
	if opts.ScreenId != "" && !id.IsUUID(opts.ScreenId) {
		h.fail(c, errs.Validation("screenid", "invalid screenid %q", opts.ScreenId))
		return
	}
	if err := utils.ValidateString(opts.Alias, "alias", 1, utils.MaxNameLength, false); err != nil {
		h.fail(c, err)
		return
	}

	rs, err := h.hub.CreateRemote(opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"remote":  rs,
	})
}

// KillRemote stops a remote.
func (h *Handlers) KillRemote(c *gin.Context) {
	remoteId := c.Param("id")
	if _, ok := h.hub.Remotes.Get(remoteId); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "remote not found",
		})
		return
	}
	if err := h.hub.KillRemote(remoteId); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PostState records a remote's shell state. The body is an encoded state
// when full=1, otherwise an encoded diff against states already posted.
func (h *Handlers) PostState(c *gin.Context) {
	remoteId := c.Param("id")
	if _, ok := h.hub.Remotes.Get(remoteId); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "remote not found",
		})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxStateBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"success": false,
				"error":   "state body too large",
			})
			return
		}
		h.fail(c, err)
		return
	}
	full := c.Query("full") == "1"

	rs, err := h.hub.ApplyState(remoteId, body, full)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"remote":  rs,
	})
}
