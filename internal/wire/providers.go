package wire

import (
	"context"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"classlink/internal/cache"
	"classlink/internal/common"
	"classlink/internal/config"
	"classlink/internal/dbmongo"
	"classlink/internal/dbmysql"
	"classlink/internal/handler"
	"classlink/internal/notify"
	"classlink/internal/notify/channels"
	"classlink/internal/realtime"
	"classlink/internal/store"
)

// Application bundles everything the entrypoint needs.
type Application struct {
	Config    *config.Config
	DB        *gorm.DB
	Mongo     *dbmongo.MongoClient
	Router    *realtime.Router
	Transport *realtime.Transport
	Service   *notify.Service
	Handler   *handler.Handler
}

func ProvideConfig() *config.Config {
	return config.FromEnv()
}

func ProvideDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := dbmysql.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := dbmysql.Migrate(db); err != nil {
		log.Printf("migration warning: %v", err)
	}
	return db, nil
}

func ProvideMongo(cfg *config.Config) (*dbmongo.MongoClient, error) {
	return dbmongo.NewMongoConnection(cfg)
}

func ProvideCache(cfg *config.Config) cache.Cache {
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewRedisCache(client, "notify")
	}
	return cache.NewMemoryCache(cfg.Notification.SweepInterval)
}

func ProvidePreferenceStore(mc *dbmongo.MongoClient, c cache.Cache) *store.PreferenceStore {
	return store.NewPreferenceStore(dbmongo.NewPreferenceRepository(mc), c)
}

func ProvideHistoryStore(cfg *config.Config, db *gorm.DB) *store.HistoryStore {
	return store.NewHistoryStore(
		cfg.Notification.HistoryLimit,
		cfg.Notification.HistoryMaxAge,
		cfg.Notification.SweepInterval,
		dbmysql.NewHistoryRepository(db),
	)
}

func ProvideFirebaseApp(cfg *config.Config) *firebase.App {
	if !cfg.Firebase.Enabled || cfg.Firebase.CredentialsFilePath == "" {
		log.Println("firebase disabled, push channel unavailable")
		return nil
	}

	opt := option.WithCredentialsFile(cfg.Firebase.CredentialsFilePath)
	app, err := firebase.NewApp(context.Background(), &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opt)
	if err != nil {
		log.Printf("firebase initialization failed: %v", err)
		return nil
	}
	return app
}

func ProvideFirebaseMessaging(app *firebase.App) *messaging.Client {
	if app == nil {
		return nil
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("failed to create FCM client: %v", err)
		return nil
	}
	return client
}

func ProvideEmailService(cfg *config.Config) common.EmailService {
	if cfg.Email.Enabled && cfg.Email.SMTPHost != "" {
		return channels.NewSMTPEmailService(cfg.Email)
	}
	return channels.ConsoleEmailService{}
}

func ProvideSMSService(cfg *config.Config) common.SMSService {
	if !cfg.SMS.Enabled {
		return nil
	}
	return channels.ConsoleSMSService{Sender: cfg.SMS.Sender}
}

func ProvideRouter() *realtime.Router {
	return realtime.NewRouter()
}

func ProvideTransport(cfg *config.Config, router *realtime.Router) *realtime.Transport {
	return realtime.NewTransport(cfg.Realtime, router)
}

func ProvideAdapters(
	cfg *config.Config,
	fcm *messaging.Client,
	db *gorm.DB,
	email common.EmailService,
	sms common.SMSService,
	router *realtime.Router,
) []common.ChannelAdapter {
	return []common.ChannelAdapter{
		channels.NewPushAdapter(fcm, dbmysql.NewDeviceRepository(db)),
		channels.NewInAppAdapter(dbmysql.NewInboxRepository(db)),
		channels.NewEmailAdapter(email),
		channels.NewSMSAdapter(sms),
		channels.NewRealtimeAdapter(router),
	}
}

func ProvideDispatcher(
	cfg *config.Config,
	adapters []common.ChannelAdapter,
	history *store.HistoryStore,
	db *gorm.DB,
) *notify.Dispatcher {
	return notify.NewDispatcher(adapters, history, dbmysql.NewNotificationRepository(db), cfg.Notification.RetryBackoff)
}

// ProvideContextResolver returns the default resolver. The host application
// swaps in one backed by its enrollment data.
func ProvideContextResolver() common.ContextResolver {
	return common.ContextResolverFunc(func(_ context.Context, _ string) (common.UserContext, error) {
		return common.UserContext{}, nil
	})
}

func ProvidePredictor() common.EngagementPredictor {
	return notify.HourlyEngagement{}
}

func ProvideService(
	cfg *config.Config,
	dispatcher *notify.Dispatcher,
	prefs *store.PreferenceStore,
	history *store.HistoryStore,
	db *gorm.DB,
	resolver common.ContextResolver,
	predictor common.EngagementPredictor,
) *notify.Service {
	return notify.NewService(
		cfg.Notification,
		dispatcher,
		prefs,
		history,
		dbmysql.NewNotificationRepository(db),
		resolver,
		predictor,
	)
}

func ProvideHandler(service *notify.Service) *handler.Handler {
	return handler.NewHandler(service)
}
