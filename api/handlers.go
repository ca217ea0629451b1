package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Request bodies

type initRequest struct {
	Token           string       `json:"token"`
	Admin           string       `json:"admin"`
	MinTopup        types.Amount `json:"min_topup"`
	BillingService  string       `json:"billing_service"`
	MeteringService string       `json:"metering_service"`
}

type minTopupRequest struct {
	Admin string       `json:"admin"`
	Value types.Amount `json:"value"`
}

type createRequest struct {
	Subscriber      string       `json:"subscriber"`
	Merchant        string       `json:"merchant"`
	Amount          types.Amount `json:"amount"`
	IntervalSeconds int64        `json:"interval_seconds"`
	UsageEnabled    bool         `json:"usage_enabled"`
}

type depositRequest struct {
	Subscriber string       `json:"subscriber"`
	Amount     types.Amount `json:"amount"`
}

type amountRequest struct {
	Amount types.Amount `json:"amount"`
}

type batchRequest struct {
	IDs []subscription.ID `json:"ids"`
}

type authorizerRequest struct {
	Authorizer string `json:"authorizer"`
}

func (r initRequest) validate() error {
	var errs subvault.MultiError
	errs.Add(required("admin", r.Admin))
	return errs.ErrOrNil()
}

func (r minTopupRequest) validate() error {
	var errs subvault.MultiError
	errs.Add(required("admin", r.Admin))
	return errs.ErrOrNil()
}

func (r createRequest) validate() error {
	var errs subvault.MultiError
	errs.Add(required("subscriber", r.Subscriber))
	errs.Add(required("merchant", r.Merchant))
	return errs.ErrOrNil()
}

func (r depositRequest) validate() error {
	var errs subvault.MultiError
	errs.Add(required("subscriber", r.Subscriber))
	return errs.ErrOrNil()
}

func (r authorizerRequest) validate() error {
	var errs subvault.MultiError
	errs.Add(required("authorizer", r.Authorizer))
	return errs.ErrOrNil()
}

// Helpers

type validator interface {
	validate() error
}

func required(field, value string) error {
	if value == "" {
		return subvault.ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return subvault.ValidationError{Field: "body", Message: "invalid request format"}
	}
	if v, ok := dst.(validator); ok {
		return v.validate()
	}
	return nil
}

func pathID(c echo.Context) (subscription.ID, error) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, subvault.ValidationError{Field: "id", Message: "must be a subscription id"}
	}
	return subscription.ID(v), nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, subvault.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return v, nil
}

// ──────────────────────────────────────────────────
// Settings
// ──────────────────────────────────────────────────

// Init handles POST /init.
func (s *Server) Init(c echo.Context) error {
	var req initRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	err := s.vault.Init(c.Request().Context(), subvault.InitParams{
		Token:           req.Token,
		Admin:           req.Admin,
		MinTopup:        req.MinTopup,
		BillingService:  req.BillingService,
		MeteringService: req.MeteringService,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusCreated)
}

// GetMinTopup handles GET /settings/min-topup.
func (s *Server) GetMinTopup(c echo.Context) error {
	v, err := s.vault.GetMinTopup(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"min_topup": v})
}

// SetMinTopup handles PUT /settings/min-topup.
func (s *Server) SetMinTopup(c echo.Context) error {
	var req minTopupRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.vault.SetMinTopup(c.Request().Context(), req.Admin, req.Value); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

// CreateSubscription handles POST /subscriptions.
func (s *Server) CreateSubscription(c echo.Context) error {
	var req createRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	subID, err := s.vault.CreateSubscription(c.Request().Context(), subvault.CreateParams{
		Subscriber:      req.Subscriber,
		Merchant:        req.Merchant,
		Amount:          req.Amount,
		IntervalSeconds: req.IntervalSeconds,
		UsageEnabled:    req.UsageEnabled,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"id": subID})
}

// ListSubscriptions handles GET /subscriptions.
func (s *Server) ListSubscriptions(c echo.Context) error {
	opts := subscription.ListOpts{}
	if raw := c.QueryParam("status"); raw != "" {
		st, err := subscription.ParseStatus(raw)
		if err != nil {
			return subvault.ValidationError{Field: "status", Message: err.Error()}
		}
		opts.Status = st
	}
	if raw := c.QueryParam("due_before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return subvault.ValidationError{Field: "due_before", Message: "must be a unix timestamp"}
		}
		opts.DueBefore = v
	}
	var err error
	if opts.Limit, err = queryInt(c, "limit", 50); err != nil {
		return err
	}
	if opts.Offset, err = queryInt(c, "offset", 0); err != nil {
		return err
	}

	subs, err := s.vault.ListSubscriptions(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"subscriptions": subs,
		"limit":         opts.Limit,
		"offset":        opts.Offset,
	})
}

// GetSubscription handles GET /subscriptions/:id.
func (s *Server) GetSubscription(c echo.Context) error {
	subID, err := pathID(c)
	if err != nil {
		return err
	}
	sub, err := s.vault.GetSubscription(c.Request().Context(), subID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

// EstimateTopup handles GET /subscriptions/:id/topup-estimate?intervals=N.
func (s *Server) EstimateTopup(c echo.Context) error {
	subID, err := pathID(c)
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(c.QueryParam("intervals"), 10, 32)
	if err != nil {
		return subvault.ValidationError{Field: "intervals", Message: "must be a non-negative integer"}
	}
	amount, err := s.vault.EstimateTopup(c.Request().Context(), subID, uint32(n))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"amount": amount})
}

// Deposit handles POST /subscriptions/:id/deposit.
func (s *Server) Deposit(c echo.Context) error {
	subID, err := pathID(c)
	if err != nil {
		return err
	}
	var req depositRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.vault.DepositFunds(c.Request().Context(), subID, req.Subscriber, req.Amount); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ──────────────────────────────────────────────────
// Charges
// ──────────────────────────────────────────────────

// ChargeInterval handles POST /subscriptions/:id/charge.
func (s *Server) ChargeInterval(c echo.Context) error {
	subID, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.vault.ChargeInterval(c.Request().Context(), subID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ChargeUsage handles POST /subscriptions/:id/usage.
func (s *Server) ChargeUsage(c echo.Context) error {
	subID, err := pathID(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.vault.ChargeUsage(c.Request().Context(), subID, req.Amount); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// BatchCharge handles POST /subscriptions/batch-charge.
func (s *Server) BatchCharge(c echo.Context) error {
	var req batchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	results, err := s.vault.BatchCharge(c.Request().Context(), req.IDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Pause handles POST /subscriptions/:id/pause.
func (s *Server) Pause(c echo.Context) error {
	return s.lifecycle(c, s.vault.Pause)
}

// Resume handles POST /subscriptions/:id/resume.
func (s *Server) Resume(c echo.Context) error {
	return s.lifecycle(c, s.vault.Resume)
}

func (s *Server) lifecycle(c echo.Context, op func(ctx context.Context, subID subscription.ID, authorizer string) error) error {
	subID, err := pathID(c)
	if err != nil {
		return err
	}
	var req authorizerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := op(c.Request().Context(), subID, req.Authorizer); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Cancel handles POST /subscriptions/:id/cancel.
func (s *Server) Cancel(c echo.Context) error {
	subID, err := pathID(c)
	if err != nil {
		return err
	}
	var req authorizerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.vault.Cancel(c.Request().Context(), subID, req.Authorizer)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ──────────────────────────────────────────────────
// Merchants
// ──────────────────────────────────────────────────

// Withdraw handles POST /merchants/:merchant/withdraw.
func (s *Server) Withdraw(c echo.Context) error {
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.vault.WithdrawMerchantFunds(c.Request().Context(), c.Param("merchant"), req.Amount); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}
