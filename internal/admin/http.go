package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/securecloud/api/internal/identity"
	"github.com/securecloud/api/internal/reconcile"
	"github.com/securecloud/api/internal/user"
)

// roleFetchConcurrency bounds parallel role-mapping requests to the
// identity provider while building the merged user list.
const roleFetchConcurrency = 8

// identityDirectory is the identity provider surface the admin API needs.
type identityDirectory interface {
	ListUsers(ctx context.Context) ([]identity.Record, error)
	GetRoles(ctx context.Context, userID string) []string
}

// userLifecycle is the account-management surface the admin API needs.
type userLifecycle interface {
	EnsureUser(ctx context.Context, userID string, desiredQuota *int64) (user.Account, error)
	GetAccount(ctx context.Context, userID string) (user.Account, error)
	DeleteUser(ctx context.Context, userID string) user.DeleteResult
}

// usageReader measures bytes stored for a user.
type usageReader interface {
	UsedBytes(userID string) int64
}

// cleaner triggers a reconciliation run.
type cleaner interface {
	Run(ctx context.Context) (reconcile.Result, error)
}

// Handler serves the administrative endpoints.
type Handler struct {
	identity     identityDirectory
	users        userLifecycle
	usage        usageReader
	cleaner      cleaner
	defaultQuota int64
	logger       *zap.Logger
}

// NewHandler constructs the admin handler.
func NewHandler(directory identityDirectory, users userLifecycle, usage usageReader, cleaner cleaner, defaultQuota int64, logger *zap.Logger) *Handler {
	return &Handler{
		identity:     directory,
		users:        users,
		usage:        usage,
		cleaner:      cleaner,
		defaultQuota: defaultQuota,
		logger:       logger,
	}
}

// RegisterRoutes mounts the admin endpoints on the group. The caller is
// expected to guard the group with the admin role requirement.
func RegisterRoutes(group *gin.RouterGroup, h *Handler) {
	group.GET("/users", h.listUsers)
	group.GET("/users/:id/quota", h.getUserQuota)
	group.POST("/users/:id/quota", h.updateUserQuota)
	group.DELETE("/users/:id", h.removeUser)
	group.POST("/system/cleanup", h.runCleanup)
}

type userView struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	StorageQuota int64    `json:"storage_quota"`
	UsedStorage  int64    `json:"used_storage"`
}

// listUsers merges the identity provider's user list with local quota
// settings and filesystem usage. Role lookups run concurrently and fail
// soft; a user without an account row shows the default quota.
func (h *Handler) listUsers(c *gin.Context) {
	records, err := h.identity.ListUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("list identity users failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
		return
	}

	views := make([]userView, len(records))
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.SetLimit(roleFetchConcurrency)

	for i, rec := range records {
		g.Go(func() error {
			quotaBytes := h.defaultQuota
			if acct, err := h.users.GetAccount(ctx, rec.ID); err == nil {
				quotaBytes = acct.StorageQuota
			} else if !errors.Is(err, user.ErrAccountNotFound) {
				h.logger.Warn("load account for user list failed",
					zap.String("user_id", rec.ID), zap.Error(err))
			}

			views[i] = userView{
				ID:           rec.ID,
				Username:     rec.Username,
				Email:        rec.Email,
				Roles:        h.identity.GetRoles(ctx, rec.ID),
				StorageQuota: quotaBytes,
				UsedStorage:  h.usage.UsedBytes(rec.ID),
			}
			return nil
		})
	}
	_ = g.Wait()

	c.JSON(http.StatusOK, gin.H{"users": views})
}

func (h *Handler) getUserQuota(c *gin.Context) {
	userID := c.Param("id")

	acct, err := h.users.GetAccount(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quota"})
		return
	}

	used := h.usage.UsedBytes(userID)
	c.JSON(http.StatusOK, gin.H{
		"user_id":       acct.ID,
		"storage_quota": acct.StorageQuota,
		"used_storage":  used,
		"available":     acct.StorageQuota - used,
	})
}

func (h *Handler) updateUserQuota(c *gin.Context) {
	userID := c.Param("id")

	// Quota arrives in whole gigabytes on the wire.
	var req struct {
		Quota float64 `json:"quota" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quota must be a positive number of GB"})
		return
	}

	quotaBytes := int64(req.Quota * (1 << 30))
	acct, err := h.users.EnsureUser(c.Request.Context(), userID, &quotaBytes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update quota"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       acct.ID,
		"storage_quota": acct.StorageQuota,
	})
}

// removeUser deletes the user everywhere, best-effort. 404 only when
// neither the metadata store nor the identity provider knew the user.
func (h *Handler) removeUser(c *gin.Context) {
	userID := c.Param("id")

	res := h.users.DeleteUser(c.Request.Context(), userID)
	if !res.MetadataDeleted && !res.IdentityDeleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found in any system"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "user deleted",
		"metadata_deleted": res.MetadataDeleted,
		"blobs_deleted":    res.BlobsDeleted,
		"identity_deleted": res.IdentityDeleted,
	})
}

func (h *Handler) runCleanup(c *gin.Context) {
	res, err := h.cleaner.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, reconcile.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "cleanup already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}
