package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/enrolab/enrolab/internal/config"
	"github.com/enrolab/enrolab/internal/hub"
	projApp "github.com/enrolab/enrolab/internal/projection/application"
	projDomain "github.com/enrolab/enrolab/internal/projection/domain"
	projCache "github.com/enrolab/enrolab/internal/projection/infra/cache"
	projPostgres "github.com/enrolab/enrolab/internal/projection/infra/db/postgres"
	projSqlite "github.com/enrolab/enrolab/internal/projection/infra/db/sqlite"
	projHttp "github.com/enrolab/enrolab/internal/projection/infra/inbound/http"
	recordsApp "github.com/enrolab/enrolab/internal/records/application"
	recordsDomain "github.com/enrolab/enrolab/internal/records/domain"
	recordsHttp "github.com/enrolab/enrolab/internal/records/infra/inbound/http"
	recordsPostgres "github.com/enrolab/enrolab/internal/records/infra/outbound/db/postgres"
	recordsSqlite "github.com/enrolab/enrolab/internal/records/infra/outbound/db/sqlite"
	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
	chDeliveryLog "github.com/enrolab/enrolab/internal/shared/infra/analytics/clickhouse"
	sharedMongo "github.com/enrolab/enrolab/internal/shared/infra/db/mongodb"
	sharedPostgres "github.com/enrolab/enrolab/internal/shared/infra/db/postgres"
	sharedSqlite "github.com/enrolab/enrolab/internal/shared/infra/db/sqlite"
	infraEvents "github.com/enrolab/enrolab/internal/shared/infra/events"
	infraRelayer "github.com/enrolab/enrolab/internal/shared/infra/relayer"
	"github.com/enrolab/enrolab/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	// _ "github.com/mattn/go-sqlite3" // requires gcc
	_ "modernc.org/sqlite"
)

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	// ---------------- DB ----------------
	var db *sql.DB
	var err error
	var recordRepo recordsDomain.RecordRepository
	var viewRepo projDomain.ViewRepository
	var outboxSource sharedDomain.OutboxSource
	var inboxGuard sharedDomain.InboxGuard

	if cfg.LocalDeployment {
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatal("failed to open SQLite", zap.Error(err))
		}
		// modernc/sqlite no soporta escritores concurrentes
		db.SetMaxOpenConns(1)

		for _, init := range []func(*sql.DB) error{
			sharedSqlite.InitOutboxSchema,
			sharedSqlite.InitInboxSchema,
			recordsSqlite.InitRecordSchema,
			projSqlite.InitViewSchema,
		} {
			if err := init(db); err != nil {
				log.Fatal("failed to initialize SQLite schema", zap.Error(err))
			}
		}

		recordRepo = recordsSqlite.NewRecordRepoSQLite(db)
		viewRepo = projSqlite.NewViewRepoSQLite(db)
		outboxSource = sharedSqlite.NewOutboxRepoSQLite(db)
		inboxGuard = sharedSqlite.NewInboxGuardSQLite(db)
	} else {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to open PostgreSQL", zap.Error(err))
		}

		for _, init := range []func(*sql.DB) error{
			sharedPostgres.InitOutboxSchema,
			sharedPostgres.InitInboxSchema,
			recordsPostgres.InitRecordSchema,
			projPostgres.InitViewSchema,
		} {
			if err := init(db); err != nil {
				log.Fatal("failed to initialize PostgreSQL schema", zap.Error(err))
			}
		}

		recordRepo = recordsPostgres.NewRecordRepoPostgres(db)
		viewRepo = projPostgres.NewViewRepoPostgres(db)
		outboxSource = sharedPostgres.NewOutboxRepoPostgres(db)
		inboxGuard = sharedPostgres.NewInboxGuardPostgres(db)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping database", zap.Error(err))
	}

	// MongoDB como fuente de outbox alternativa (lado de escritura en Mongo).
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, mongoOptions.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoClient.Disconnect(context.Background())
		outboxSource = sharedMongo.NewOutboxRepoMongoDB(mongoClient, "enrolab", log)
		log.Info("✅ MongoDB conectado, outbox sobre Mongo")
	}

	// ---------------- Cache ----------------
	var viewCache projDomain.ViewCache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, cache en memoria:", zap.Error(err))
		viewCache = projCache.NewInMemoryViewCache(cfg.CacheTTL, 3*cfg.CacheTTL)
	} else {
		viewCache = projCache.NewRedisViewCache(rdb, cfg.CacheTTL)
		log.Info("✅ Redis conectado, cache habilitado")
	}

	// --------------- Servicios --------------
	recordService := recordsApp.NewRecordService(recordRepo, log)
	projector := projApp.NewProjector(inboxGuard, viewRepo, viewCache, log)

	// ------------- Connection Hub -----------
	connHub := hub.NewHub(hub.Config{
		PerUserLimit:      cfg.WSUserConnLimit,
		GlobalLimit:       cfg.WSGlobalConnLimit,
		KeepaliveInterval: cfg.WSKeepaliveInterval,
	}, log)
	connHub.StartKeepalive(ctx)

	// ---------------- Events ---------------
	topics := recordsDomain.NewTopicRegistry()
	var publisher sharedDomain.EventPublisher

	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como bus de eventos")

		writers := make(map[string]infraEvents.MessageWriter)
		for _, topic := range []string{recordsDomain.ProspectTopic, recordsDomain.StudentTopic, recordsDomain.InstructorTopic} {
			w := kafka.NewWriter(kafka.WriterConfig{
				Brokers: cfg.KafkaBrokers,
				Topic:   topic,
			})
			defer w.Close()
			writers[topic] = w

			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  cfg.KafkaBrokers,
				Topic:    topic,
				GroupID:  "enrolab-projection",
				MinBytes: 10e3, // 10KB
				MaxBytes: 10e6, // 10MB
			})
			defer reader.Close()

			infraEvents.NewEnvelopeConsumer(reader, projector, log).Start(ctx)
		}

		publisher = infraEvents.NewTopicPublisher(writers, topics, log)
	} else {
		log.Info("⚡️Usando bus de eventos en memoria (canales de Go)")

		bus := infraEvents.NewInMemoryEventBus()
		publisher = bus

		// Un suscriptor alimenta la proyección, otro el hub de sockets.
		startBusConsumer(ctx, bus.Subscribe(64), projector, log)
		startBusForwarder(ctx, bus.Subscribe(64), connHub, log)
	}

	// ------------ Outbox Relay --------------
	relay := infraRelayer.NewOutboxWorker(outboxSource, publisher, cfg.OutboxPollInterval, cfg.OutboxBatchSize, log)
	if cfg.ClickHouseAddr != "" {
		deliveryLog, err := chDeliveryLog.NewDeliveryLogRepo(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, sin delivery log", zap.Error(err))
		} else {
			relay = relay.WithDeliveryLog(deliveryLog)
			log.Info("✅ ClickHouse conectado, delivery log habilitado")
		}
	}
	go relay.Start(ctx)

	// ------------ Inbox Sweeper -------------
	sweeper := projApp.NewInboxSweeper(inboxGuard, cfg.InboxRetention, cfg.InboxSweepInterval, log)
	sweeper.Start(ctx)

	// ---------------- HTTP ----------------
	recordHandler := recordsHttp.NewRecordHandler(recordService)
	viewHandler := projHttp.NewViewHandler(viewRepo, viewCache)
	wsHandler := hub.NewWSHandler(connHub, log)
	webhookHandler := hub.NewWebhookHandler(connHub, log)

	router := gin.Default()
	recordsHttp.RegisterRecordRoutes(router, recordHandler)
	projHttp.RegisterViewRoutes(router, viewHandler)
	hub.RegisterHubRoutes(router, wsHandler, webhookHandler)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Info("🚀 Server running",
			zap.String("url", "http://localhost:"+cfg.HTTPPort),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Shutdown cooperativo: las tareas observan ctx, los sockets se cierran
	// con un close normal.
	<-ctx.Done()
	log.Info("🛑 Señal de apagado recibida, cerrando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connHub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("⚠️ Shutdown del servidor HTTP con errores", zap.Error(err))
	}
}

// startBusConsumer drena los sobres del bus en memoria hacia un handler.
func startBusConsumer(ctx context.Context, ch <-chan []byte, handler infraEvents.EnvelopeHandler, log *zap.Logger) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info("Consumidor en memoria detenido")
				return
			case payload := <-ch:
				env, err := sharedDomain.DecodeEnvelope(payload)
				if err != nil {
					log.Warn("Sobre malformado en el bus en memoria", zap.Error(err))
					continue
				}
				// Sin broker detrás no hay reentrega: el handler ya lo deja logueado.
				_ = handler.HandleEnvelope(ctx, env)
			}
		}
	}()
}

// startBusForwarder reenvía los sobres del bus en memoria al hub (el mismo
// papel que cumple el webhook cuando hay broker de por medio).
func startBusForwarder(ctx context.Context, ch <-chan []byte, h *hub.Hub, log *zap.Logger) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info("Forwarder del hub detenido")
				return
			case payload := <-ch:
				env, err := sharedDomain.DecodeEnvelope(payload)
				if err != nil {
					log.Warn("Sobre malformado en el bus en memoria", zap.Error(err))
					continue
				}
				h.Broadcast(ctx, env)
			}
		}
	}()
}
