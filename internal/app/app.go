package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/config"
	"github.com/clubsched/sessiond/internal/httpapi"
	"github.com/clubsched/sessiond/internal/model"
	"github.com/clubsched/sessiond/internal/repository"
	"github.com/clubsched/sessiond/internal/service"
	"github.com/clubsched/sessiond/internal/tasks"
)

// App wires the repositories, services, task runner, housekeeping cron and
// HTTP server together.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	taskRepo     *repository.TaskRepository
	templateRepo *repository.TemplateRepository

	sessions      *service.SessionService
	participation *service.ParticipationService
	rosters       *service.RosterService

	runner *tasks.Runner
	cron   *cron.Cron
	server *http.Server
}

func New(cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) *App {
	txRunner := repository.NewTxRunner(pool)
	templateRepo := repository.NewTemplateRepository(pool)
	instanceRepo := repository.NewInstanceRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)
	taskRepo := repository.NewTaskRepository(pool)

	scheduler := tasks.NewScheduler(taskRepo, logger)

	// TODO: plug in the club backend's membership service once its admin
	// lookup is exposed; until then template management is open to any
	// authenticated actor.
	perms := service.PermissionFunc(func(ctx context.Context, actorID, clubID int64) error {
		return nil
	})

	genCfg := service.GenerationConfig{
		HorizonDays:     cfg.HorizonDays,
		MaxDailyBatch:   cfg.MaxDailyBatch,
		MaxWeeklyBatch:  cfg.MaxWeeklyBatch,
		MaxMonthlyBatch: cfg.MaxMonthlyBatch,
	}

	sessions := service.NewSessionService(txRunner, templateRepo, instanceRepo, participantRepo, scheduler, perms, genCfg, logger)
	participation := service.NewParticipationService(txRunner, instanceRepo, participantRepo, logger)
	rosters := service.NewRosterService(txRunner, instanceRepo, participantRepo, perms, logger)

	runner := tasks.NewRunner(taskRepo, cfg.TaskPollEvery, logger)
	runner.Register(model.TaskSessionStart, sessions.HandleSessionStart)
	runner.Register(model.TaskSessionEnd, sessions.HandleSessionEnd)
	runner.Register(model.TaskTemplateGenerate, sessions.HandleGenerateBatch)
	runner.Register(model.TaskTemplateDeactivate, sessions.HandleDeactivate)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Sessions:      sessions,
		Participation: participation,
		Rosters:       rosters,
		Logger:        logger,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		taskRepo:      taskRepo,
		templateRepo:  templateRepo,
		sessions:      sessions,
		participation: participation,
		rosters:       rosters,
		runner:        runner,
		cron:          cron.New(),
		server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start launches the task runner, the housekeeping cron and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	a.runner.Start(ctx)

	if _, err := a.cron.AddFunc("@daily", func() { a.housekeeping(ctx) }); err != nil {
		return err
	}
	a.cron.Start()

	go func() {
		a.logger.Info("HTTP server listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts everything down in reverse order.
func (a *App) Stop(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	<-a.cron.Stop().Done()
	a.runner.Stop()
	return err
}

// housekeeping purges finished tasks past retention and repairs rolling
// chains whose pending link was lost (crash between a finished batch and its
// successor being armed).
func (a *App) housekeeping(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -a.cfg.TaskRetentionDays)
	purged, err := a.taskRepo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error("Task purge failed", zap.Error(err))
	} else if purged > 0 {
		a.logger.Info("Purged finished tasks", zap.Int64("count", purged))
	}

	templates, err := a.templateRepo.ListActiveRecurring(ctx)
	if err != nil {
		a.logger.Error("Chain sweep failed to list templates", zap.Error(err))
		return
	}

	for _, tmpl := range templates {
		healthy := false
		if tmpl.NextTaskID != nil {
			healthy, err = a.taskRepo.PendingExists(ctx, *tmpl.NextTaskID)
			if err != nil {
				a.logger.Error("Chain sweep failed to check task",
					zap.Int64("template_id", tmpl.ID),
					zap.Error(err),
				)
				continue
			}
		}
		if healthy {
			continue
		}

		a.logger.Warn("Re-arming broken rolling chain", zap.Int64("template_id", tmpl.ID))
		if err := a.sessions.EnsureScheduled(ctx, tmpl.ID); err != nil {
			a.logger.Error("Chain repair failed",
				zap.Int64("template_id", tmpl.ID),
				zap.Error(err),
			)
		}
	}
}
