package router

import (
	"net/http"
	"time"

	memledger "pet-custody-escrow/internal/adapters/ledger/memory"
	mem "pet-custody-escrow/internal/adapters/storage/memory"
	pg "pet-custody-escrow/internal/adapters/storage/postgres"
	"pet-custody-escrow/internal/domain/adoption"
	"pet-custody-escrow/internal/domain/custody"
	"pet-custody-escrow/internal/domain/escrow"
	"pet-custody-escrow/internal/domain/eventlog"
	"pet-custody-escrow/internal/domain/pets"
	"pet-custody-escrow/internal/domain/users"
	"pet-custody-escrow/internal/middleware"
	"pet-custody-escrow/internal/platform/logger"
	"pet-custody-escrow/internal/platform/metrics"
	"pet-custody-escrow/internal/ports/auth"
	"pet-custody-escrow/internal/ports/ledger"
	"pet-custody-escrow/internal/ports/storage"
	"pet-custody-escrow/internal/workflow"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *pg.DB

	// Opcional: si no viene, ledger simulado con auto-confirm y cuentas
	// abiertas (modo dev).
	Ledger ledger.Gateway

	Log     logger.Logger
	Metrics *metrics.Metrics

	Retry             escrow.RetryPolicy
	ReconcileInterval time.Duration
}

// App es el servicio armado: el handler HTTP más el reconciler de escrows,
// que el caller corre aparte (`go app.Reconciler.Run(ctx)`).
type App struct {
	Handler    http.Handler
	Reconciler *escrow.Reconciler
}

func New(opts Options) App {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	log := opts.Log
	if log == nil {
		log = logger.New(logger.Options{})
	}
	mets := opts.Metrics
	if mets == nil {
		mets = metrics.New()
	}

	var (
		usersRepo    users.Repository
		petsRepo     pets.Repository
		factsRepo    eventlog.Repository
		adoptionRepo adoption.Repository
		custodyRepo  custody.Repository
		escrowRepo   escrow.Repository
		tx           storage.TxRunner
	)

	if opts.DB != nil {
		usersRepo = pg.NewUsersRepo(opts.DB)
		petsRepo = pg.NewPetsRepo(opts.DB)
		factsRepo = pg.NewEventLogRepo(opts.DB)
		adoptionRepo = pg.NewAdoptionRepo(opts.DB)
		custodyRepo = pg.NewCustodyRepo(opts.DB)
		escrowRepo = pg.NewEscrowRepo(opts.DB)
		tx = opts.DB
	} else {
		store := mem.NewStore()
		usersRepo = mem.NewUsersRepo(store)
		petsRepo = mem.NewPetsRepo(store)
		factsRepo = mem.NewEventLogRepo(store)
		adoptionRepo = mem.NewAdoptionRepo(store)
		custodyRepo = mem.NewCustodyRepo(store)
		escrowRepo = mem.NewEscrowRepo(store)
		tx = store
	}

	gw := opts.Ledger
	if gw == nil {
		gw = memledger.New(
			memledger.WithAutoConfirm(),
			memledger.WithOpenAccounts(10_000),
		)
	}

	// Services por módulo
	factsSvc := eventlog.NewService(factsRepo)
	usersSvc := users.NewService(usersRepo, factsSvc, tx)
	petsSvc := pets.NewService(petsRepo, factsSvc, tx)

	flow := workflow.New(adoptionRepo, custodyRepo)

	escrowSvc := escrow.NewService(escrow.Deps{
		Repo:    escrowRepo,
		Gateway: gw,
		Log:     factsSvc,
		Keys:    usersSvc,
		Flow:    flow,
		Tx:      tx,
		Metrics: mets,
		Retry:   opts.Retry,
	})

	custodySvc := custody.NewService(custody.Deps{
		Repo:    custodyRepo,
		Pets:    petsSvc,
		Escrow:  escrowSvc,
		Log:     factsSvc,
		Keys:    usersSvc,
		Flow:    flow,
		Tx:      tx,
		Metrics: mets,
	})

	adoptionSvc := adoption.NewService(adoption.Deps{
		Repo:    adoptionRepo,
		Pets:    petsSvc,
		Log:     factsSvc,
		Flow:    flow,
		Tx:      tx,
		Metrics: mets,
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", mets.Handler())

	// Rutas por módulo
	users.RegisterRoutes(r, usersSvc)
	pets.RegisterRoutes(r, petsSvc)
	eventlog.RegisterRoutes(r, factsSvc)
	adoption.RegisterRoutes(r, adoptionSvc, usersSvc)
	custody.RegisterRoutes(r, custodySvc, usersSvc)

	rec := escrow.NewReconciler(escrowSvc, custodySvc, opts.ReconcileInterval, log, mets)

	return App{
		Handler:    r,
		Reconciler: rec,
	}
}
