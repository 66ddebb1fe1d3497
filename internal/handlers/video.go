package handlers

import (
	"github.com/gin-gonic/gin"

	"signbridge-server/internal/utils"
	"signbridge-server/internal/video"
)

// VideoHandler admits appointment parties to their video room.
type VideoHandler struct {
	Provisioner *video.Provisioner
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(provisioner *video.Provisioner) *VideoHandler {
	return &VideoHandler{Provisioner: provisioner}
}

// JoinVideoRoom returns the room url, a meeting token for the caller and
// the expected participants.
func (h *VideoHandler) JoinVideoRoom(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	session, err := h.Provisioner.Join(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Video room ready", session)
}
