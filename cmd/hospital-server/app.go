package main

import (
	"context"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hospital/appointments/internal/config"
	"github.com/hospital/appointments/internal/domain/medication"
	"github.com/hospital/appointments/internal/domain/patient"
	"github.com/hospital/appointments/internal/domain/portal"
	"github.com/hospital/appointments/internal/domain/practice"
	"github.com/hospital/appointments/internal/domain/prescription"
	"github.com/hospital/appointments/internal/domain/scheduling"
	"github.com/hospital/appointments/internal/domain/task"
	"github.com/hospital/appointments/internal/platform/auth"
	"github.com/hospital/appointments/internal/platform/booking"
	"github.com/hospital/appointments/internal/platform/calendar"
	"github.com/hospital/appointments/internal/platform/db"
	"github.com/hospital/appointments/internal/platform/lock"
	"github.com/hospital/appointments/internal/platform/middleware"
	"github.com/hospital/appointments/internal/platform/notification"
	"github.com/hospital/appointments/internal/platform/sequence"
	"github.com/hospital/appointments/internal/platform/sweep"
	"github.com/hospital/appointments/internal/platform/telemetry"
	"github.com/hospital/appointments/internal/platform/validation"
	"github.com/hospital/appointments/pkg/circuitbreaker"
)

type app struct {
	echo    *echo.Echo
	runner  *sweep.Runner
	closers []func(ctx context.Context)
}

// Close releases the connections opened by newApp in reverse order.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

// infra holds the external resources the services are wired onto. Tests
// build it from pgxmock and miniredis.
type infra struct {
	cfg      *config.Config
	logger   zerolog.Logger
	db       db.Querier
	tx       db.TxManager
	redis    *redis.Client
	registry *prometheus.Registry
	sender   notification.EmailSender
	dbHealth echo.HandlerFunc
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	var closers []func(ctx context.Context)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](ctx)
		}
	}

	tracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		ServiceName:    "hospital-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	closers = append(closers, func(ctx context.Context) {
		if err := tracing.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown")
		}
	})

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	closers = append(closers, func(context.Context) { pool.Close() })
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	var rdb *redis.Client
	checks := []db.Check{}
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func(context.Context) { _ = rdb.Close() })
		checks = append(checks, db.RedisCheck(rdb))
		logger.Info().Msg("connected to redis")
	}

	sender, err := newEmailSender(ctx, cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	a, err := wire(infra{
		cfg:      cfg,
		logger:   logger,
		db:       pool,
		tx:       db.NewTxManager(pool),
		redis:    rdb,
		registry: newRegistry(),
		sender:   sender,
		dbHealth: db.HealthHandler(pool, checks...),
	})
	if err != nil {
		closeAll()
		return nil, err
	}
	a.closers = closers
	return a, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newEmailSender picks the provider named by EMAIL_PROVIDER.
func newEmailSender(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (notification.EmailSender, error) {
	from := notification.Sender{Email: cfg.EmailFrom, Name: cfg.EmailFromName}
	switch cfg.EmailProvider {
	case "sendgrid":
		return notification.NewSendGridSender(cfg.SendGridAPIKey, from), nil
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return notification.NewSESSender(sesv2.NewFromConfig(awsCfg), from), nil
	case "log", "":
		return notification.NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
}

func newSequence(cfg *config.Config, q db.Querier, rdb *redis.Client) (sequence.Generator, error) {
	switch cfg.SequenceBackend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("SEQUENCE_BACKEND=redis needs REDIS_URL")
		}
		return sequence.NewRedisGenerator(rdb), nil
	case "postgres", "":
		return sequence.NewPGGenerator(q), nil
	default:
		return nil, fmt.Errorf("unknown sequence backend %q", cfg.SequenceBackend)
	}
}

func newCalendarStore(cfg *config.Config, q db.Querier) calendar.Store {
	if cfg.CalendarBackend == "memory" {
		return calendar.NewMemoryStore()
	}
	return calendar.NewPGStore(q)
}

// wire builds the services on top of in and mounts their routes.
func wire(in infra) (*app, error) {
	cfg, logger := in.cfg, in.logger

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	seq, err := newSequence(cfg, in.db, in.redis)
	if err != nil {
		return nil, err
	}

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.NewMetrics(in.registry)
	}

	var locker lock.Locker = lock.Noop{}
	if in.redis != nil {
		locker = lock.NewRedisLocker(in.redis, "hospital:lock:")
	}

	notifier := notification.NewManager(
		notification.NewGuardedSender(in.sender, circuitbreaker.New(circuitbreaker.DefaultConfig("email"), logger)),
		notification.NewTemplateEngine(), metrics, logger,
	)
	cal := calendar.NewGuarded(newCalendarStore(cfg, in.db),
		circuitbreaker.New(circuitbreaker.DefaultConfig("calendar"), logger))

	practiceSvc := practice.NewService(practice.NewSpecialtyRepoPG(in.db), practice.NewDoctorRepoPG(in.db), in.tx)
	patientSvc := patient.NewService(patient.NewRepoPG(in.db))
	medicationSvc := medication.NewService(medication.NewRepoPG(in.db))
	taskSvc := task.NewService(task.NewRepoPG(in.db))

	prescriptionSvc := prescription.NewService(prescription.Deps{
		Repo:      prescription.NewRepoPG(in.db),
		Doctors:   practiceSvc,
		Patients:  patientSvc,
		Pharmacy:  medicationSvc,
		Sequence:  seq,
		Notifier:  notifier,
		Tx:        in.tx,
		Metrics:   metrics,
		Logger:    logger,
		Location:  loc,
		PortalURL: cfg.PublicURL,
	})

	schedulingSvc := scheduling.NewService(scheduling.Deps{
		Schedules:    scheduling.NewScheduleRepoPG(in.db),
		Appointments: scheduling.NewAppointmentRepoPG(in.db),
		Doctors:      practiceSvc,
		Patients:     patientSvc,
		Sequence:     seq,
		Calendar:     cal,
		Notifier:     notifier,
		Tasks:        taskSvc,
		Prescriber:   prescriptionSvc,
		Tx:           in.tx,
		Metrics:      metrics,
		Logger:       logger,
		Location:     loc,
		PortalURL:    cfg.PublicURL,
	})

	validator := validation.New()
	flow := booking.NewFlow(booking.Deps{
		Practice:  practiceSvc,
		Patients:  patientSvc,
		Scheduler: schedulingSvc,
		Validator: validator,
		Tx:        in.tx,
		Metrics:   metrics,
		Logger:    logger,
	})

	portalSvc := portal.NewService(portal.Deps{
		Patients:      patientSvc,
		Doctors:       practiceSvc,
		Appointments:  schedulingSvc,
		Prescriptions: prescriptionSvc,
		Logger:        logger,
	})

	runner := sweep.NewRunner(locker, metrics, logger)
	schedulingSvc.RegisterSweeps(runner)
	prescriptionSvc.RegisterSweeps(runner)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if metrics != nil {
		e.Use(middleware.Metrics(metrics))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.DevAuth() {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}
		if cfg.AuthSigningKey != "" {
			jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
		}
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.Use(middleware.Audit(logger))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	limiter := middleware.RateLimit(rateLimitCfg)

	apiV1 := e.Group("/api/v1", limiter)
	public := e.Group("", limiter)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", in.dbHealth)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(in.registry, promhttp.HandlerOpts{})))
	}

	practice.NewHandler(practiceSvc).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	medication.NewHandler(medicationSvc).RegisterRoutes(apiV1)
	task.NewHandler(taskSvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)
	prescription.NewHandler(prescriptionSvc).RegisterRoutes(apiV1)
	portal.NewHandler(portalSvc).RegisterRoutes(apiV1, public)
	notification.NewHandler(notifier).RegisterRoutes(apiV1)
	sweep.NewHandler(runner).RegisterRoutes(apiV1)
	booking.NewHandler(flow).RegisterRoutes(public.Group("/booking"))

	return &app{echo: e, runner: runner}, nil
}
