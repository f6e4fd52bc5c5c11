package main

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/sbnz-social/modguard/moderation"
	"github.com/sbnz-social/modguard/moderation/event"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ReportRequest struct {
	AuthorID   string `json:"authorId" validate:"required,max=128"`
	ReporterID string `json:"reporterId" validate:"required,max=128"`
	PostID     string `json:"postId" validate:"required,max=128"`
}

type BlockRequest struct {
	BlockerID string `json:"blockerId" validate:"required,max=128"`
	TargetID  string `json:"targetId" validate:"required,max=128"`
}

// Adapts go-playground/validator to echo; failures are client errors.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (rv *requestValidator) Validate(i any) error {
	if err := rv.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

type SuspensionResponse struct {
	UserID            string `json:"userId"`
	PostingSuspended  bool   `json:"postingSuspended"`
	PostingBanUntilMs int64  `json:"postingBanUntilMs"`
	LoginSuspended    bool   `json:"loginSuspended"`
	LoginBanUntilMs   int64  `json:"loginBanUntilMs"`
}

type flagOut struct {
	UserID    string `json:"userId"`
	Reason    string `json:"reason"`
	UntilMs   int64  `json:"untilMs"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

func newFlagOut(f event.Flag) flagOut {
	return flagOut{UserID: f.UserID, Reason: f.Reason, UntilMs: event.ToMillis(f.SuspendedUntil)}
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = http.StatusText(code)
		if msg, ok := he.Message.(string); ok {
			errorMessage = msg
		}
	} else {
		errorMessage = "internal error"
	}
	if code >= 500 {
		srv.logger.Warn("modguard-http-internal-error", "err", err)
	}
	if !c.Response().Committed {
		c.JSON(code, GenericError{Error: http.StatusText(code), Message: errorMessage})
	}
}

// Maps service errors onto HTTP errors.
func httpError(err error) error {
	switch {
	case errors.Is(err, moderation.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, event.ErrUnknownUser):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, event.ErrStorageUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "moderation storage unavailable")
	}
	return err
}

func (srv *Server) checkAdminToken(key string, c echo.Context) (bool, error) {
	if srv.adminToken == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(srv.adminToken)) == 1, nil
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

func (srv *Server) HandleReport(c echo.Context) error {
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := srv.svc.ReportPost(c.Request().Context(), req.AuthorID, req.ReporterID, req.PostID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusCreated)
}

func (srv *Server) HandleBlock(c echo.Context) error {
	var req BlockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := srv.svc.BlockUser(c.Request().Context(), req.BlockerID, req.TargetID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusCreated)
}

func (srv *Server) HandleSuspensionStatus(c echo.Context) error {
	userID := c.Param("userId")
	st, err := srv.svc.SuspensionStatus(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SuspensionResponse{
		UserID:            st.UserID,
		PostingSuspended:  st.PostingSuspended,
		PostingBanUntilMs: event.ToMillis(st.PostingBanUntil),
		LoginSuspended:    st.LoginSuspended,
		LoginBanUntilMs:   event.ToMillis(st.LoginBanUntil),
	})
}

func (srv *Server) HandleDetect(c echo.Context) error {
	flags, err := srv.svc.RunDetectionPass(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	out := make([]flagOut, 0, len(flags))
	for _, f := range flags {
		out = append(out, newFlagOut(f))
	}
	return c.JSON(http.StatusOK, out)
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" parameter")
	}
	return v, nil
}

const maxFlagHistoryHours = 24 * 365

func (srv *Server) HandleRecentFlags(c echo.Context) error {
	hours, err := queryInt(c, "sinceHours", 168)
	if err != nil {
		return err
	}
	if hours > maxFlagHistoryHours {
		hours = maxFlagHistoryHours
	}
	limit, err := queryInt(c, "limit", 200)
	if err != nil {
		return err
	}
	if limit > 1000 {
		limit = 1000
	}

	views, err := srv.svc.RecentFlags(c.Request().Context(), time.Duration(hours)*time.Hour, limit)
	if err != nil {
		return httpError(err)
	}
	out := make([]flagOut, 0, len(views))
	for _, v := range views {
		fo := newFlagOut(v.Flag)
		fo.FirstName = v.FirstName
		fo.LastName = v.LastName
		fo.Email = v.Email
		out = append(out, fo)
	}
	return c.JSON(http.StatusOK, out)
}
