// Package api 市场节点的 HTTP 接口（gin）。
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nftmarket/internal/ledger"
	"github.com/betbot/nftmarket/internal/market"
	"github.com/betbot/nftmarket/internal/metrics"
	"github.com/betbot/nftmarket/internal/nft"
	"github.com/betbot/nftmarket/internal/notify"
	"github.com/betbot/nftmarket/pkg/ratelimit"
)

var log = logrus.WithField("component", "api")

// AccountHeader 调用方身份（开发节点不做签名校验）
const AccountHeader = "X-Account"

// Config 依赖
type Config struct {
	Engine *market.Engine
	Bank   *ledger.Bank
	Tokens *nft.Directory
	Bus    *notify.Bus
	Hub    *notify.Hub

	// RateCapacity/RateRefill 为 0 时不限流
	RateCapacity int
	RateRefill   int
}

type Server struct {
	engine  *market.Engine
	bank    *ledger.Bank
	tokens  *nft.Directory
	bus     *notify.Bus
	hub     *notify.Hub
	limiter *ratelimit.Keyed
}

func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil || cfg.Bank == nil || cfg.Tokens == nil || cfg.Bus == nil {
		return nil, errors.New("api: engine, bank, tokens and bus are required")
	}
	s := &Server{
		engine: cfg.Engine,
		bank:   cfg.Bank,
		tokens: cfg.Tokens,
		bus:    cfg.Bus,
		hub:    cfg.Hub,
	}
	if cfg.RateCapacity > 0 {
		s.limiter = ratelimit.NewKeyed(cfg.RateCapacity, cfg.RateRefill, 10*time.Minute)
	}
	return s, nil
}

// Close 停止后台资源（限流桶回收）
func (s *Server) Close() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	if s.limiter != nil {
		r.Use(rateLimit(s.limiter))
	}

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	debug := gin.WrapH(metrics.Handler())
	r.GET("/metrics", debug)
	r.GET("/debug/pprof/*name", debug)

	api := r.Group("/api")
	api.GET("/market", s.wrap(s.handleMarket))

	items := api.Group("/items")
	items.POST("", s.wrap(s.handleList))
	items.GET("/count", s.wrap(s.handleItemCount))
	itemID := items.Group("/:itemID")
	itemID.GET("", s.wrap(s.handleItemGet))
	itemID.GET("/total", s.wrap(s.handleItemTotal))
	itemID.POST("/purchase", s.wrap(s.handlePurchase))

	api.GET("/events", s.wrap(s.handleEvents))
	if s.hub != nil {
		api.GET("/events/ws", s.wrap(s.hub.ServeHTTP))
	}

	collection := api.Group("/collections/:contract")
	collection.GET("", s.wrap(s.handleCollectionGet))
	collection.POST("/mint", s.wrap(s.handleMint))
	collection.POST("/approval", s.wrap(s.handleApproval))
	collection.GET("/tokens/:tokenID", s.wrap(s.handleTokenGet))

	account := api.Group("/accounts/:address")
	account.GET("/balance", s.wrap(s.handleBalance))
	account.POST("/faucet", s.wrap(s.handleFaucet))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "nftmarket_path_params"

// wrap 把 net/http handler 适配到 gin，路径参数注入 request context
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

// pathParam 读取 wrap 注入的路径参数
func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}
