package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/model"
)

func (s *Server) presign(c *gin.Context) {
	var req model.PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	out, err := s.media.PresignUpload(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(out))
}

func (s *Server) presignCustom(c *gin.Context) {
	var req model.CustomKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	out, err := s.media.PresignCustomKey(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(out))
}

func (s *Server) mediaURL(c *gin.Context) {
	out, err := s.media.GetMediaURL(c.Request.Context(), c.Query("key"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(out))
}

func (s *Server) save(c *gin.Context) {
	var in model.SaveMediaInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	rec, err := s.media.Save(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewSuccessResponse(rec))
}

func (s *Server) list(c *gin.Context) {
	f, err := parseListFilter(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	items, err := s.media.List(c.Request.Context(), f)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(items))
}

func parseListFilter(c *gin.Context) (model.ListFilter, error) {
	f := model.ListFilter{MediaType: model.KindFilter(c.Query("mediaType"))}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("%w: %s must be an integer", apperr.ErrInvalidInput, name)
		}
		*dst = v
	}
	if raw := c.Query("showFavorites"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("%w: showFavorites must be a boolean", apperr.ErrInvalidInput)
		}
		f.ShowFavorites = v
	}
	return f, nil
}

func (s *Server) get(c *gin.Context) {
	view, err := s.media.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(view))
}

func (s *Server) toggleFavorite(c *gin.Context) {
	rec, err := s.media.ToggleFavorite(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(rec))
}

func (s *Server) delete(c *gin.Context) {
	rec, err := s.media.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(rec))
}

func (s *Server) download(c *gin.Context) {
	link, err := s.media.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(link))
}
