package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/teamsync/internal/cache"
	"github.com/teamsync/internal/config"
	"github.com/teamsync/internal/handler"
	"github.com/teamsync/internal/logger"
	"github.com/teamsync/internal/middleware"
	"github.com/teamsync/internal/notify"
	"github.com/teamsync/internal/realtime"
	"github.com/teamsync/internal/remote"
	"github.com/teamsync/internal/render"
	"github.com/teamsync/internal/startup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger.SetPrefix("syncd")
	team := flag.String("team", "", "id команды, которую открыть после загрузки (по умолчанию последняя из initial data)")
	dev := flag.Bool("dev", false, "черновики во встроенном PostgreSQL (внешняя БД не нужна)")
	flag.Parse()

	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	if *dev {
		cfg.Staging.Backend = config.StagingPostgres
		cfg.Staging.PostgresEmbedded = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}
	logger.Infof("starting sync agent, api=%s realtime=%s session=%s",
		cfg.Remote.APIBaseURL, cfg.Remote.RealtimeURL, middleware.MaskSecret(cfg.Remote.SessionID))

	signer, err := remote.NewSigner(cfg.Remote.SessionID, cfg.Remote.SessionSecret)
	if err != nil {
		logger.Errorf("session: %v", err)
		os.Exit(1)
	}
	client := remote.NewHTTPClient(cfg.Remote.APIBaseURL, cfg.Remote.RequestTimeout, signer)

	header := http.Header{}
	header.Set("X-Session-Id", cfg.Remote.SessionID)
	conn := realtime.New(realtime.Options{URL: cfg.Remote.RealtimeURL, Header: header})
	client.SetSocketID(conn.ID)

	startCtx, startCancel := context.WithTimeout(context.Background(), cfg.StartupMaxWait)
	defer startCancel()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if cfg.Staging.Backend == config.StagingPostgres && cfg.Staging.PostgresEmbedded {
		embeddedDB, err = startup.StartEmbeddedPostgres(&cfg.Staging)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
	}
	staging, err := startup.OpenStaging(startCtx, cfg.Staging, cfg.StartupMaxWait)
	if err != nil {
		stopEmbedded(embeddedDB)
		logger.Errorf("staging: %v", err)
		os.Exit(1)
	}

	store := cache.New(cache.Options{
		Caller:      client,
		Transport:   conn,
		Staging:     staging,
		Renderer:    render.NewMarkdown(),
		Highlighter: render.NewHighlighter(),
		TypingReset: cache.TypingReset(cfg.Cache.TypingReset),
		TypingDelay: cfg.Cache.TypingDelay,
		ChatOrder:   cache.ChatOrder(cfg.Cache.ChatOrder),
	})

	connCtx, connCancel := context.WithCancel(context.Background())
	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		if err := conn.Run(connCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("realtime: %v", err)
		}
	}()

	if err := conn.WaitConnected(startCtx); err != nil {
		logger.Errorf("realtime: no connection within %s: %v", cfg.StartupMaxWait, err)
		os.Exit(1)
	}
	if err := startup.Retry(startCtx, cfg.StartupMaxWait, "initial data", store.Load); err != nil {
		logger.Errorf("load: %v", err)
		os.Exit(1)
	}
	if *team != "" {
		if err := store.SetCurrentTeam(startCtx, *team); err != nil {
			logger.Errorf("team %s: %v", *team, err)
			os.Exit(1)
		}
	}
	if err := store.Start(); err != nil {
		logger.Errorf("start: %v", err)
		os.Exit(1)
	}
	if err := store.LoadAllMembers(startCtx); err != nil {
		logger.Errorf("load members: %v", err)
	}
	startCancel()

	// составы команд перечитываются после переподключения и смены команды
	membersCtx, membersCancel := context.WithCancel(context.Background())
	unwatchMembers := store.Subscribe(func(c cache.Change) {
		if c.Kind != cache.ChangeViewer {
			return
		}
		go func() {
			if err := store.LoadAllMembers(membersCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("reload members: %v", err)
			}
		}()
	})

	var vapidPublic string
	var detachPush func()
	pushCtx, pushCancel := context.WithCancel(context.Background())
	if cfg.Push.SubscriptionFile != "" {
		keys, err := notify.EnsureVAPIDKeys(cfg.Push.VAPIDKeysFile)
		if err != nil {
			logger.Errorf("vapid: %v", err)
			os.Exit(1)
		}
		vapidPublic = keys.PublicKey
		subs, err := notify.LoadSubscriptions(cfg.Push.SubscriptionFile)
		if err != nil {
			logger.Errorf("push subscriptions: %v", err)
			os.Exit(1)
		}
		n := notify.New(store, notify.NewWebPushSender(keys, cfg.Push.Subject), subs)
		detachPush = n.Attach()
		go n.Run(pushCtx)
		logger.Infof("push: %d subscriptions", n.Subscriptions())
	}

	r := handler.NewRouter(
		handler.NewCacheHandler(store),
		handler.NewConfigHandler(cfg, vapidPublic),
		cfg.CORSOrigins(),
	)
	srv := &http.Server{
		Addr:              cfg.InspectAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Infof("inspection API listening on %s", cfg.InspectAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"sync": func(ctx context.Context) error {
				if detachPush != nil {
					detachPush()
				}
				pushCancel()
				unwatchMembers()
				membersCancel()
				// кеш покидает комнаты до закрытия соединения
				err := store.Close()
				connCancel()
				select {
				case <-connDone:
				case <-ctx.Done():
				}
				if cerr := conn.Close(); cerr != nil && err == nil {
					err = cerr
				}
				if serr := staging.Close(); serr != nil && err == nil {
					err = serr
				}
				stopEmbedded(embeddedDB)
				return err
			},
		},
	)

	exitCode := <-wait
	logger.Infof("sync agent exited with code %d", exitCode)
	os.Exit(exitCode)
}

func stopEmbedded(db *embeddedpostgres.EmbeddedPostgres) {
	if db == nil {
		return
	}
	logger.Info("stopping embedded postgres...")
	if err := db.Stop(); err != nil {
		logger.Errorf("embedded postgres stop: %v", err)
	}
}
