package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/middleware"
)

// Handler adapts engine operations to echo handlers.
type Handler struct {
	engine *phoneauth.Engine
}

// NewHandler returns a Handler serving engine.
func NewHandler(engine *phoneauth.Engine) *Handler { return &Handler{engine: engine} }

func requestContext(c echo.Context) context.Context {
	ctx := c.Request().Context()
	if ip := c.RealIP(); ip != "" {
		ctx = phoneauth.WithClientIP(ctx, ip)
	}
	if ua := c.Request().UserAgent(); ua != "" {
		ctx = phoneauth.WithUserAgent(ctx, ua)
	}
	return ctx
}

func principal(c echo.Context) (phoneauth.Principal, bool) {
	info, ok := middleware.SessionFromContext(c.Request().Context())
	if !ok {
		return phoneauth.Principal{}, false
	}
	return info.Principal(), true
}

func bind[T any](c echo.Context) (*T, bool) {
	req := new(T)
	if err := c.Bind(req); err != nil {
		return nil, false
	}
	return req, true
}

func (h *Handler) SendCode(c echo.Context) error {
	req, ok := bind[sendCodeRequest](c)
	if !ok {
		return badPayload(c)
	}
	res, err := h.engine.SendCode(requestContext(c), phoneauth.SendCodeRequest{CountryCode: req.CountryCode, Phone: req.Phone})
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusAccepted, newSendCodeResponse(res))
}

func (h *Handler) VerifyCode(c echo.Context) error {
	req, ok := bind[verifyCodeRequest](c)
	if !ok {
		return badPayload(c)
	}
	res, err := h.engine.VerifyCode(requestContext(c), phoneauth.VerifyCodeRequest{
		CountryCode: req.CountryCode,
		Phone:       req.Phone,
		Code:        req.Code,
		Device:      req.Device.device(),
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusOK, newAuthResponse(res))
}

func (h *Handler) FederatedLogin(c echo.Context) error {
	req, ok := bind[federatedLoginRequest](c)
	if !ok {
		return badPayload(c)
	}
	res, err := h.engine.FederatedLogin(requestContext(c), phoneauth.FederatedLoginRequest{IDToken: req.IDToken, Device: req.Device.device()})
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusOK, newAuthResponse(res))
}

func (h *Handler) SendFederatedPhoneCode(c echo.Context) error {
	req, ok := bind[federatedPhoneCodeRequest](c)
	if !ok {
		return badPayload(c)
	}
	res, err := h.engine.SendFederatedPhoneCode(requestContext(c), phoneauth.FederatedPhoneCodeRequest{
		PhoneVerificationToken: req.PhoneVerificationToken,
		CountryCode:            req.CountryCode,
		Phone:                  req.Phone,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusAccepted, newSendCodeResponse(res))
}

func (h *Handler) VerifyFederatedPhone(c echo.Context) error {
	req, ok := bind[federatedPhoneVerifyRequest](c)
	if !ok {
		return badPayload(c)
	}
	res, err := h.engine.VerifyFederatedPhone(requestContext(c), phoneauth.FederatedPhoneVerifyRequest{
		PhoneVerificationToken: req.PhoneVerificationToken,
		CountryCode:            req.CountryCode,
		Phone:                  req.Phone,
		Code:                   req.Code,
		Device:                 req.Device.device(),
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusOK, newAuthResponse(res))
}

func (h *Handler) Refresh(c echo.Context) error {
	req, ok := bind[refreshRequest](c)
	if !ok {
		return badPayload(c)
	}
	pair, err := h.engine.Refresh(requestContext(c), req.RefreshToken)
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) Logout(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[logoutRequest](c)
	if !ok {
		return badPayload(c)
	}
	n, err := h.engine.Logout(requestContext(c), p, phoneauth.LogoutRequest{TargetDeviceID: req.TargetDeviceID, AllOthers: req.AllOthers})
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusOK, map[string]int{"revoked": n})
}

func (h *Handler) Me(c echo.Context) error {
	p, _ := principal(c)
	u, err := h.engine.Profile(requestContext(c), p)
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusOK, newUserResponse(u))
}

func (h *Handler) ListDevices(c echo.Context) error {
	p, _ := principal(c)
	list, err := h.engine.ListDevices(requestContext(c), p)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]deviceResponse, 0, len(list))
	for _, d := range list {
		out = append(out, deviceResponse(d))
	}
	return writeJSON(c, http.StatusOK, out)
}

func (h *Handler) UpdatePushToken(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[pushTokenRequest](c)
	if !ok {
		return badPayload(c)
	}
	if err := h.engine.UpdatePushToken(requestContext(c), p, req.Token); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SaveProfile(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[profileRequest](c)
	if !ok {
		return badPayload(c)
	}
	return h.userResult(c)(h.engine.SaveProfile(requestContext(c), p, phoneauth.ProfileInput{DisplayName: req.DisplayName}))
}

func (h *Handler) SaveInterests(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[interestsRequest](c)
	if !ok {
		return badPayload(c)
	}
	return h.userResult(c)(h.engine.SaveInterests(requestContext(c), p, req.Interests))
}

func (h *Handler) AcknowledgeRecommendations(c echo.Context) error {
	p, _ := principal(c)
	return h.userResult(c)(h.engine.AcknowledgeRecommendations(requestContext(c), p))
}

func (h *Handler) RequestEmailChange(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[emailRequest](c)
	if !ok {
		return badPayload(c)
	}
	return h.sendResult(c)(h.engine.RequestEmailChange(requestContext(c), p, req.Email))
}

func (h *Handler) ConfirmEmailChange(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[codeRequest](c)
	if !ok {
		return badPayload(c)
	}
	return h.userResult(c)(h.engine.ConfirmEmailChange(requestContext(c), p, req.Code))
}

func (h *Handler) RequestPhoneChange(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[phoneRequest](c)
	if !ok {
		return badPayload(c)
	}
	return h.sendResult(c)(h.engine.RequestPhoneChange(requestContext(c), p, req.CountryCode, req.Phone))
}

func (h *Handler) ConfirmPhoneChange(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[codeRequest](c)
	if !ok {
		return badPayload(c)
	}
	return h.userResult(c)(h.engine.ConfirmPhoneChange(requestContext(c), p, req.Code))
}

func (h *Handler) RequestEmailVerification(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[emailRequest](c)
	if !ok {
		return badPayload(c)
	}
	return h.sendResult(c)(h.engine.RequestEmailVerification(requestContext(c), p, req.Email))
}

func (h *Handler) ConfirmEmailVerification(c echo.Context) error {
	p, _ := principal(c)
	req, ok := bind[codeRequest](c)
	if !ok {
		return badPayload(c)
	}
	return h.userResult(c)(h.engine.ConfirmEmailVerification(requestContext(c), p, req.Code))
}

func (h *Handler) ScheduleDeletion(c echo.Context) error {
	p, _ := principal(c)
	at, err := h.engine.ScheduleDeletion(requestContext(c), p)
	if err != nil {
		return writeError(c, err)
	}
	return writeJSON(c, http.StatusAccepted, map[string]any{"deletion_scheduled_for": at})
}

func (h *Handler) Health(c echo.Context) error {
	st := h.engine.Health(c.Request().Context())
	resp := healthResponse{Status: "ok", DatabaseAvailable: st.DatabaseAvailable, RedisAvailable: st.RedisAvailable}
	if !st.Healthy() {
		resp.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SecurityReport(c echo.Context) error {
	return writeJSON(c, http.StatusOK, h.engine.SecurityReport())
}

func (h *Handler) userResult(c echo.Context) func(*phoneauth.UserInfo, error) error {
	return func(u *phoneauth.UserInfo, err error) error {
		if err != nil {
			return writeError(c, err)
		}
		return writeJSON(c, http.StatusOK, newUserResponse(u))
	}
}

func (h *Handler) sendResult(c echo.Context) func(*phoneauth.SendCodeResult, error) error {
	return func(r *phoneauth.SendCodeResult, err error) error {
		if err != nil {
			return writeError(c, err)
		}
		return writeJSON(c, http.StatusAccepted, newSendCodeResponse(r))
	}
}
