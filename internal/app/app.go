// Package app 按配置组装开发节点、挂单存储、事件总线、市场引擎与 HTTP 服务。
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nftmarket/internal/api"
	"github.com/betbot/nftmarket/internal/devnet"
	"github.com/betbot/nftmarket/internal/fee"
	"github.com/betbot/nftmarket/internal/market"
	"github.com/betbot/nftmarket/internal/notify"
	"github.com/betbot/nftmarket/internal/registry"
	"github.com/betbot/nftmarket/pkg/config"
	"github.com/betbot/nftmarket/pkg/kvstore"
	"github.com/betbot/nftmarket/pkg/shutdown"
	"github.com/betbot/nftmarket/pkg/units"
)

var log = logrus.WithField("component", "app")

// App 已组装的节点
type App struct {
	Config   *config.Config
	Node     *devnet.Node
	Registry *registry.Registry
	Bus      *notify.Bus
	Hub      *notify.Hub
	Engine   *market.Engine
	API      *api.Server

	httpSrv  *http.Server
	shutdown *shutdown.Manager
}

// New 组装全部组件。失败时已打开的资源会被关闭。
func New(cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg, shutdown: shutdown.NewManager()}
	defer func() {
		if err != nil {
			a.shutdown.Shutdown(context.Background())
		}
	}()

	initial, err := units.ParseAmount(cfg.Devnet.InitialBalance)
	if err != nil {
		return nil, fmt.Errorf("devnet.initial_balance: %w", err)
	}
	a.Node, err = devnet.Bootstrap(devnet.Options{
		Mnemonic:         cfg.Devnet.Mnemonic,
		Accounts:         cfg.Devnet.Accounts,
		InitialBalance:   initial,
		CollectionName:   cfg.Devnet.CollectionName,
		CollectionSymbol: cfg.Devnet.CollectionSymbol,
		ExportDir:        cfg.Devnet.ExportDir,
		SnapshotDir:      cfg.Devnet.SnapshotDir,
	})
	if err != nil {
		return nil, fmt.Errorf("devnet: %w", err)
	}
	a.shutdown.OnShutdown("snapshot", func(context.Context) error { return a.Node.SaveSnapshot() })

	store, journal, err := openStorage(cfg, a.shutdown)
	if err != nil {
		return nil, err
	}

	var regOpts []registry.Option
	if cfg.Store.ReadCacheTTL > 0 {
		regOpts = append(regOpts, registry.WithReadCache(cfg.Store.ReadCacheTTL))
	}
	a.Registry = registry.New(store, a.Node.Tokens, a.Node.MarketAddress, regOpts...)
	a.shutdown.OnShutdown("registry", func(context.Context) error { return a.Registry.Close() })

	feeAccount := a.Node.Deployer
	if cfg.Fee.Account != "" {
		feeAccount = common.HexToAddress(cfg.Fee.Account)
	}
	policy, err := fee.NewPolicy(cfg.Fee.Percent, feeAccount)
	if err != nil {
		return nil, err
	}

	a.Bus = notify.NewBus(journal)
	a.Hub = notify.NewHub(a.Bus)
	a.shutdown.OnShutdown("websocket", func(context.Context) error { a.Hub.Close(); return nil })

	a.Engine, err = market.NewEngine(market.Config{
		Registry:  a.Registry,
		Bank:      a.Node.Bank,
		Policy:    policy,
		Publisher: a.Bus,
	})
	if err != nil {
		return nil, err
	}

	a.API, err = api.New(api.Config{
		Engine:       a.Engine,
		Bank:         a.Node.Bank,
		Tokens:       a.Node.Tokens,
		Bus:          a.Bus,
		Hub:          a.Hub,
		RateCapacity: cfg.Server.RateLimit.Capacity,
		RateRefill:   cfg.Server.RateLimit.RefillPerSecond,
	})
	if err != nil {
		return nil, err
	}
	a.shutdown.OnShutdown("api", func(context.Context) error { return a.API.Close() })

	log.Infof("市场已启动: address=%s fee=%d%% fee_account=%s store=%s journal=%s",
		a.Engine.Address().Hex(), policy.Percent(), policy.Account().Hex(),
		backendName(cfg.Store.Backend), backendName(cfg.Events.Journal))
	return a, nil
}

// openStorage 打开挂单存储与事件日志。badger 日志未配置目录时与 badger 存储共用实例。
func openStorage(cfg *config.Config, sd *shutdown.Manager) (registry.Store, notify.Journal, error) {
	storeBackend := backendName(cfg.Store.Backend)
	journalBackend := backendName(cfg.Events.Journal)

	if storeBackend == registry.BackendBadger && journalBackend == "badger" && cfg.Events.Path == "" {
		key, err := kvstore.ParseKey(cfg.Store.EncryptionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		kv, err := kvstore.Open(kvstore.OpenOptions{Path: cfg.Store.Path, EncryptionKey: key})
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		// 最先注册，最后关闭
		sd.OnShutdown("badger", func(context.Context) error { return kv.Close() })
		return registry.NewBadgerStore(kv), notify.NewBadgerJournal(kv), nil
	}

	store, err := registry.Open(registry.Options{
		Backend:       storeBackend,
		Path:          cfg.Store.Path,
		DSN:           cfg.Store.DSN,
		EncryptionKey: cfg.Store.EncryptionKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	var journal notify.Journal
	switch journalBackend {
	case "badger":
		bj, err := notify.OpenBadgerJournal(kvstore.OpenOptions{Path: cfg.Events.Path})
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		journal = bj
	default:
		journal = notify.NewMemoryJournal()
	}
	sd.OnShutdown("journal", func(context.Context) error { return journal.Close() })
	return store, journal, nil
}

func backendName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "memory"
	}
	return s
}

// Handler HTTP 入口
func (a *App) Handler() http.Handler {
	return a.API.Router()
}

// Serve 在 ln 上提供服务，直到 Shutdown
func (a *App) Serve(ln net.Listener) error {
	a.httpSrv = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := a.httpSrv
	a.shutdown.OnShutdown("http", func(ctx context.Context) error { return srv.Shutdown(ctx) })

	log.Infof("HTTP 服务监听: %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe 监听配置中的地址
func (a *App) ListenAndServe() error {
	ln, err := net.Listen("tcp", a.Config.Server.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ln)
}

// Shutdown 按启动的相反顺序关闭，返回失败数量
func (a *App) Shutdown(ctx context.Context) int {
	return a.shutdown.Shutdown(ctx)
}
