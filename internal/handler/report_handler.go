package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ecoreports/internal/middleware"
	"ecoreports/internal/service"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	svc           *service.ReportService
	maxImageBytes int64
}

func NewReportHandler(svc *service.ReportService, maxImageBytes int64) *ReportHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = 5 << 20
	}
	return &ReportHandler{svc: svc, maxImageBytes: maxImageBytes}
}

func parseCoord(c *gin.Context, field string) (float64, bool) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		badRequest(c, field+" es obligatorio")
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		badRequest(c, field+" debe ser numérico")
		return 0, false
	}
	return v, true
}

// Create handles POST /reports (multipart). The image field is optional.
func (h *ReportHandler) Create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+1<<20)
	if err := c.Request.ParseMultipartForm(h.maxImageBytes + 1<<20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			middleware.Abort(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "la solicitud supera el tamaño máximo permitido")
			return
		}
		badRequest(c, "formulario inválido")
		return
	}
	lat, ok := parseCoord(c, "latitud")
	if !ok {
		return
	}
	lng, ok := parseCoord(c, "longitud")
	if !ok {
		return
	}
	in := service.CreateReportInput{
		Description: c.PostForm("descripcion"),
		Latitude:    lat,
		Longitude:   lng,
		Address:     c.PostForm("direccion"),
		WasteType:   c.PostForm("tipo_estimado"),
	}
	fh, err := c.FormFile("imagen")
	switch {
	case err == nil:
		if fh.Size > h.maxImageBytes {
			badRequest(c, "la imagen supera el tamaño máximo permitido")
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "no se pudo leer la imagen")
			return
		}
		in.Image, err = io.ReadAll(io.LimitReader(f, h.maxImageBytes+1))
		f.Close()
		if err != nil {
			badRequest(c, "no se pudo leer la imagen")
			return
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		badRequest(c, "formulario inválido")
		return
	}

	res, err := h.svc.Create(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type transitionRequest struct {
	Estado     string `json:"estado" binding:"required"`
	Comentario string `json:"comentario_autoridad"`
}

// Transition handles PATCH /reports/:id (authority/admin).
func (h *ReportHandler) Transition(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "estado es obligatorio")
		return
	}
	r, err := h.svc.Transition(c.Request.Context(), actor(c), id, req.Estado, req.Comentario)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reporte": r})
}

func (h *ReportHandler) List(c *gin.Context) {
	mine, _ := strconv.ParseBool(c.DefaultQuery("mine", "false"))
	page, err := h.svc.List(c.Request.Context(), actor(c), service.ListReportsInput{
		Status:   c.Query("estado"),
		Mine:     mine,
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ReportHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	r, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reporte": r})
}

func (h *ReportHandler) Nearby(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		badRequest(c, "lat y lng son obligatorios")
		return
	}
	radius, err := strconv.ParseFloat(c.DefaultQuery("radius_km", "2"), 64)
	if err != nil {
		badRequest(c, "radius_km inválido")
		return
	}
	list, err := h.svc.Nearby(c.Request.Context(), lat, lng, radius, queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reportes": list})
}

// Map handles GET /reports/map?level=N.
func (h *ReportHandler) Map(c *gin.Context) {
	cells, err := h.svc.MapCells(c.Request.Context(), queryInt(c, "level", 10))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"celdas": cells})
}

func (h *ReportHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
