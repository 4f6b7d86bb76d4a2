package handler

import (
	"strconv"

	"pointsledger/internal/models"
	"pointsledger/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

const DEFAULT_EXPIRING_DAYS = 30

type groupLoyalty struct {
	container *do.Injector
}

type earnPayload struct {
	Amount      int                  `json:"amount"`
	Source      models.Source        `json:"source"`
	Description string               `json:"description"`
	Metadata    *models.EarnMetadata `json:"metadata"`
}

type usePayload struct {
	OrderID *string `json:"order_id"`
}

type referralPayload struct {
	Code string `json:"code"`
}

func (gr *groupLoyalty) service(c echo.Context) (*services.ServiceLoyalty, *models.UserFromAuth, error) {
	serviceLoyalty, err := do.Invoke[*services.ServiceLoyalty](gr.container)
	if err != nil {
		return nil, nil, errorx.Wrap(err, errorx.Service)
	}

	user, err := ResolveValidUser(c.Request().Context())
	if err != nil {
		return nil, nil, err
	}

	return serviceLoyalty, user, nil
}

func (gr *groupLoyalty) Account(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	account, err := serviceLoyalty.GetAccount(c.Request().Context(), user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, account, nil)
}

func (gr *groupLoyalty) Enroll(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	account, err := serviceLoyalty.Enroll(c.Request().Context(), user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, account, nil)
}

func (gr *groupLoyalty) Tier(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	progress, err := serviceLoyalty.TierProgress(c.Request().Context(), user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, progress, nil)
}

func (gr *groupLoyalty) Tiers(c echo.Context) error {
	serviceLoyalty, err := do.Invoke[*services.ServiceLoyalty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	return httpx.RestAbort(c, serviceLoyalty.Tiers(), nil)
}

func (gr *groupLoyalty) Expiring(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	days := DEFAULT_EXPIRING_DAYS
	if daysStr := c.QueryParam("days"); daysStr != "" {
		days, err = strconv.Atoi(daysStr)
		if err != nil {
			return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Validation))
		}
	}

	points, err := serviceLoyalty.ExpiringPoints(c.Request().Context(), user.ID, days)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, map[string]interface{}{
		"days":   days,
		"points": points,
	}, nil)
}

func (gr *groupLoyalty) Transactions(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	txs, err := serviceLoyalty.Transactions(c.Request().Context(), user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, txs, nil)
}

// Earn credits the user named in the path. Mounted behind AdminOnly.
func (gr *groupLoyalty) Earn(c echo.Context) error {
	serviceLoyalty, err := do.Invoke[*services.ServiceLoyalty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	var payload earnPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	tx, err := serviceLoyalty.Earn(c.Request().Context(), c.Param("user_id"), payload.Amount, payload.Source, payload.Description, payload.Metadata)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, tx, nil)
}

func (gr *groupLoyalty) Rewards(c echo.Context) error {
	serviceLoyalty, err := do.Invoke[*services.ServiceLoyalty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	rewards, err := serviceLoyalty.Rewards(c.Request().Context())
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, rewards, nil)
}

func (gr *groupLoyalty) Redeem(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	redemption, err := serviceLoyalty.Redeem(c.Request().Context(), user.ID, c.Param("id"))
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, redemption, nil)
}

func (gr *groupLoyalty) Redemptions(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	redemptions, err := serviceLoyalty.Redemptions(c.Request().Context(), user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, redemptions, nil)
}

func (gr *groupLoyalty) UseRedemption(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	var payload usePayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	ctx := c.Request().Context()
	redemption, err := serviceLoyalty.GetRedemption(ctx, c.Param("id"))
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}
	// other users' redemptions look missing
	if redemption.UserID != user.ID {
		return httpx.RestAbort(c, nil, wrapLedgerError(errRedemptionNotOwned))
	}

	redemption, err = serviceLoyalty.UseRedemption(ctx, redemption.ID, payload.OrderID)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, redemption, nil)
}

func (gr *groupLoyalty) ReferralCode(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	code, err := serviceLoyalty.GenerateReferralCode(c.Request().Context(), user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, code, nil)
}

func (gr *groupLoyalty) CompleteReferral(c echo.Context) error {
	serviceLoyalty, user, err := gr.service(c)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	var payload referralPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	referral, err := serviceLoyalty.CompleteReferral(c.Request().Context(), payload.Code, user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, referral, nil)
}

func (gr *groupLoyalty) PutReward(c echo.Context) error {
	serviceLoyalty, err := do.Invoke[*services.ServiceLoyalty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	var reward models.RewardItem
	if err := c.Bind(&reward); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}
	reward.ID = c.Param("id")

	saved, err := serviceLoyalty.PutReward(c.Request().Context(), &reward)
	if err != nil {
		return httpx.RestAbort(c, nil, wrapLedgerError(err))
	}

	return httpx.RestAbort(c, saved, nil)
}
