package handler

import (
	"net/http"

	"pointsledger/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do"
)

type Config struct {
	Container *do.Injector
	Mode      string
	Origins   []string
	AdminIDs  []string
}

func New(cfg *Config) (http.Handler, error) {
	r := echo.New()
	r.Pre(middleware.RemoveTrailingSlash())
	if cfg.Mode == "debug" {
		r.Debug = true
		pprof.Register(r)
	}

	r.JSONSerializer = httpx.SegmentJSONSerializer{}
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339}\t${method}\t${uri}\t${status}\t${latency_human}\n",
	}))
	r.Use(middleware.Recover())

	r.GET("", func(c echo.Context) error {
		return c.String(http.StatusOK, "🤖")
	})

	routesAPIv1 := r.Group("/api/v1")
	{
		authentication, err := do.Invoke[*services.Authentication](cfg.Container)
		if err != nil {
			return nil, err
		}
		cors := middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.Origins,
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			AllowCredentials: true,
			MaxAge:           60 * 60,
		})

		routesAPIv1.Use(cors)
		routesAPIv1.Use(Authn(authentication)) // Authn will NOT terminate unauthenticated request.
		routesAPIv1.GET("", Hello)

		l := groupLoyalty{cfg.Container}
		routesAPIv1.GET("/loyalty/tiers", l.Tiers)
		routesAPIv1.GET("/loyalty/rewards", l.Rewards)

		routesAPIv1Loyalty := routesAPIv1.Group("/loyalty")
		{
			routesAPIv1Loyalty.POST("/enroll", l.Enroll)
			routesAPIv1Loyalty.GET("/account", l.Account)
			routesAPIv1Loyalty.GET("/tier", l.Tier)
			routesAPIv1Loyalty.GET("/expiring", l.Expiring)
			routesAPIv1Loyalty.GET("/transactions", l.Transactions)

			routesAPIv1Loyalty.POST("/rewards/:id/redeem", l.Redeem)
			routesAPIv1Loyalty.GET("/redemptions", l.Redemptions)
			routesAPIv1Loyalty.POST("/redemptions/:id/use", l.UseRedemption)

			routesAPIv1Loyalty.POST("/referral/code", l.ReferralCode)
			routesAPIv1Loyalty.POST("/referral/complete", l.CompleteReferral)
		}

		routesAPIv1Admin := routesAPIv1.Group("/admin")
		routesAPIv1Admin.Use(AdminOnly(cfg.AdminIDs))
		{
			routesAPIv1Admin.PUT("/rewards/:id", l.PutReward)
			routesAPIv1Admin.POST("/accounts/:user_id/earn", l.Earn)
		}
	}

	return r, nil
}

func Hello(c echo.Context) error {
	return httpx.RestAbort(c, "hello world", nil)
}
