package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-checkin/internal/middleware"
	"github.com/iliyamo/qr-checkin/internal/model"
	"github.com/iliyamo/qr-checkin/internal/service"
)

// QRHandler exposes the check-in service over HTTP.
type QRHandler struct {
	svc *service.CheckinService
}

func NewQRHandler(svc *service.CheckinService) *QRHandler {
	return &QRHandler{svc: svc}
}

type issueRequest struct {
	EventID                 string              `json:"event_id"`
	Geofence                *model.GeofenceSpec `json:"geofence"`
	SecurityLevel           model.SecurityLevel `json:"security_level"`
	RotationIntervalSeconds *int                `json:"rotation_interval_seconds"`
	ExpirationHours         int                 `json:"expiration_hours"`
	DeviceFingerprint       string              `json:"device_fingerprint"`
}

type sessionData struct {
	DeviceFingerprint string              `json:"device_fingerprint"`
	ExpirationHours   int                 `json:"expiration_hours"`
	Geofence          *model.GeofenceSpec `json:"geofence"`
}

type dynamicRequest struct {
	EventID     string       `json:"event_id"`
	HolderID    string       `json:"holder_id"`
	SessionData *sessionData `json:"session_data"`
}

type issueResponse struct {
	Code     *model.QRCode `json:"code"`
	ImagePNG string        `json:"image_png_base64"`
}

type validateRequest struct {
	QRData            string          `json:"qr_data"` // raw scanned payload, alternative to token/code_id
	Token             string          `json:"token"`
	EventID           string          `json:"event_id"`
	CodeID            string          `json:"code_id"`
	Location          *model.Location `json:"location"`
	DeviceFingerprint string          `json:"device_fingerprint"`
	ChallengeResponse string          `json:"challenge_response"`
	Rotation          *int64          `json:"rotation"`
}

type proximityRequest struct {
	Geofence model.GeofenceSpec `json:"geofence"`
	Location *model.Location    `json:"location"`
}

// Issue handles POST /v1/qr.
func (h *QRHandler) Issue(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON body"})
	}
	in := service.IssueRequest{
		EventID:           req.EventID,
		Geofence:          req.Geofence,
		Organizer:         middleware.Subject(c),
		SecurityLevel:     req.SecurityLevel,
		ExpirationHours:   req.ExpirationHours,
		DeviceFingerprint: req.DeviceFingerprint,
	}
	if req.RotationIntervalSeconds != nil {
		d, err := service.IntervalFromSeconds(*req.RotationIntervalSeconds)
		if err != nil {
			return writeError(c, err)
		}
		in.RotationInterval = &d
	}
	out, err := h.svc.Issue(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, issued(out))
}

// IssueDynamic handles POST /v1/qr/dynamic.
func (h *QRHandler) IssueDynamic(c echo.Context) error {
	var req dynamicRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON body"})
	}
	session := &service.SessionData{Organizer: middleware.Subject(c)}
	if sd := req.SessionData; sd != nil {
		session.DeviceFingerprint = sd.DeviceFingerprint
		session.ExpirationHours = sd.ExpirationHours
		session.Geofence = sd.Geofence
	}
	out, err := h.svc.IssueDynamic(c.Request().Context(), req.EventID, req.HolderID, session)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, issued(out))
}

func issued(out *service.Issued) issueResponse {
	return issueResponse{Code: out.Code, ImagePNG: base64.StdEncoding.EncodeToString(out.Image)}
}

// Get handles GET /v1/qr/:id.
func (h *QRHandler) Get(c echo.Context) error {
	q, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

// Deactivate handles DELETE /v1/qr/:id.
func (h *QRHandler) Deactivate(c echo.Context) error {
	if err := h.svc.Deactivate(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Cleanup handles POST /v1/qr/cleanup.
func (h *QRHandler) Cleanup(c echo.Context) error {
	n, err := h.svc.CleanupExpired(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": n})
}

// Image handles GET /v1/qr/:id/image.
func (h *QRHandler) Image(c echo.Context) error {
	png, err := h.svc.Image(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

// ImageVariant keys cached images by the code's rotation index.  Codes that
// cannot be displayed skip the cache so Image reports why.
func (h *QRHandler) ImageVariant(c echo.Context) (string, bool) {
	v, err := h.svc.ImageVersion(c.Request().Context(), c.Param("id"))
	if err != nil {
		return "", false
	}
	return strconv.FormatInt(v, 10), true
}

// Rotation handles GET /v1/qr/:id/rotation.
func (h *QRHandler) Rotation(c echo.Context) error {
	st, err := h.svc.RotationStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Proximity handles POST /v1/qr/proximity.
func (h *QRHandler) Proximity(c echo.Context) error {
	var req proximityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON body"})
	}
	pc, err := h.svc.ComputeProximity(req.Geofence, req.Location)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pc)
}

// Validate handles POST /v1/qr/validate.  Rejected scans are still 200
// responses; the verdict says why.  Store outages answer 503 with the
// verdict attached.
func (h *QRHandler) Validate(c echo.Context) error {
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON body"})
	}

	in := service.ValidateRequest{Token: req.Token, CodeID: req.CodeID, Rotation: req.Rotation}
	if req.QRData != "" {
		parsed, err := service.ParsePayload(req.QRData)
		if err != nil {
			return writeError(c, err)
		}
		in = parsed
		if req.Rotation != nil {
			in.Rotation = req.Rotation
		}
	}
	// the event being checked into comes from the scanner, never the payload
	in.EventID = req.EventID
	in.Location = req.Location
	in.DeviceFingerprint = req.DeviceFingerprint
	in.ChallengeResponse = req.ChallengeResponse

	v, err := h.svc.Validate(c.Request().Context(), in)
	if err != nil {
		if service.IsUnavailable(err) {
			return c.JSON(http.StatusServiceUnavailable, v)
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case service.IsNotFound(err):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "qr code not found"})
	case errors.Is(err, service.ErrCodeInactive):
		return c.JSON(http.StatusGone, echo.Map{"error": err.Error()})
	case service.IsUnavailable(err):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "code store unavailable, try again shortly"})
	default:
		c.Logger().Errorf("qr handler: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
