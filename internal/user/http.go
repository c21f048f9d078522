package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/securecloud/api/internal/identity"
)

// RegisterRoutes mounts the current-user endpoints on the group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/user/me", handler.currentUser)
	group.DELETE("/user/me", handler.deleteAccount)
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) currentUser(c *gin.Context) {
	principal, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	view, err := h.service.GetUserView(c.Request.Context(), principal.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            principal.ID,
		"username":      principal.Username,
		"email":         principal.Email,
		"roles":         principal.Roles,
		"storage_quota": view.StorageQuota,
		"used_storage":  view.UsedStorage,
		"available":     view.Available,
	})
}

// deleteAccount always answers 200 with the per-subsystem breakdown:
// the deletion is irreversible and best-effort, so the caller is told
// exactly what succeeded even under partial failure.
func (h *httpHandler) deleteAccount(c *gin.Context) {
	principal, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	res := h.service.DeleteUser(c.Request.Context(), principal.ID)
	c.JSON(http.StatusOK, gin.H{
		"message":          "account deleted",
		"metadata_deleted": res.MetadataDeleted,
		"blobs_deleted":    res.BlobsDeleted,
		"identity_deleted": res.IdentityDeleted,
	})
}
