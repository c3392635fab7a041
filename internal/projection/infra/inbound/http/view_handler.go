package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enrolab/enrolab/internal/projection/domain"
)

// ViewHandler sirve el read model proyectado, primero desde caché.
type ViewHandler struct {
	views domain.ViewRepository
	cache domain.ViewCache // puede ser nil
}

func NewViewHandler(views domain.ViewRepository, cache domain.ViewCache) *ViewHandler {
	return &ViewHandler{views: views, cache: cache}
}

// GetView endpoint GET /views/:entityType/:id
func (h *ViewHandler) GetView(c *gin.Context) {
	subject := c.Param("entityType") + "/" + c.Param("id")

	if h.cache != nil {
		var view domain.RecordView
		if ok, _ := h.cache.Get(c.Request.Context(), domain.CacheKey(subject), &view); ok {
			c.JSON(http.StatusOK, view)
			return
		}
	}

	view, err := h.views.GetBySubject(c.Request.Context(), subject)
	if err != nil {
		if err == domain.ErrViewNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "record view not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, view)
}

// ListViews endpoint GET /views/:entityType
func (h *ViewHandler) ListViews(c *gin.Context) {
	views, err := h.views.List(c.Request.Context(), c.Param("entityType"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if views == nil {
		views = []domain.RecordView{}
	}
	c.JSON(http.StatusOK, views)
}

func RegisterViewRoutes(r *gin.Engine, handler *ViewHandler) {
	views := r.Group("/views")
	{
		views.GET("/:entityType", handler.ListViews)
		views.GET("/:entityType/:id", handler.GetView)
	}
}
