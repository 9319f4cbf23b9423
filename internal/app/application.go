// Package app wires the CRM services onto their persistence dependencies.
package app

import (
	"time"

	"github.com/ridgeline-labs/minicrm/internal/app/services/activities"
	"github.com/ridgeline-labs/minicrm/internal/app/services/analytics"
	authsvc "github.com/ridgeline-labs/minicrm/internal/app/services/auth"
	"github.com/ridgeline-labs/minicrm/internal/app/services/contacts"
	dealsvc "github.com/ridgeline-labs/minicrm/internal/app/services/deals"
	"github.com/ridgeline-labs/minicrm/internal/app/services/orgs"
	tasksvc "github.com/ridgeline-labs/minicrm/internal/app/services/tasks"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
	"github.com/ridgeline-labs/minicrm/internal/app/storage/memory"
	"github.com/ridgeline-labs/minicrm/internal/cache"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation, sharing one transactional scope.
type Stores struct {
	Users         storage.UserStore
	Organizations storage.OrganizationStore
	Contacts      storage.ContactStore
	Deals         storage.DealStore
	Tasks         storage.TaskStore
	Activities    storage.ActivityStore
	Tx            storage.TxRunner
}

// Options carries the tunables the services need beyond their stores.
type Options struct {
	AuthSecret        string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	AnalyticsCacheTTL time.Duration
	Cache             cache.Cache
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Auth       *authsvc.Service
	Orgs       *orgs.Service
	Contacts   *contacts.Service
	Deals      *dealsvc.Service
	Tasks      *tasksvc.Service
	Activities *activities.Service
	Analytics  *analytics.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Organizations == nil {
		stores.Organizations = mem
	}
	if stores.Contacts == nil {
		stores.Contacts = mem
	}
	if stores.Deals == nil {
		stores.Deals = mem
	}
	if stores.Tasks == nil {
		stores.Tasks = mem
	}
	if stores.Activities == nil {
		stores.Activities = mem
	}
	if stores.Tx == nil {
		stores.Tx = mem
	}

	if opts.AuthSecret == "" {
		opts.AuthSecret = "dev-secret-change-me"
	}
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = 30 * time.Minute
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 24 * time.Hour
	}
	if opts.AnalyticsCacheTTL <= 0 {
		opts.AnalyticsCacheTTL = 60 * time.Second
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}

	return &Application{
		log:        log,
		Auth:       authsvc.New(stores.Users, stores.Tx, opts.AuthSecret, opts.AccessTokenTTL, opts.RefreshTokenTTL, log),
		Orgs:       orgs.New(stores.Organizations, log),
		Contacts:   contacts.New(stores.Contacts, stores.Organizations, log),
		Deals:      dealsvc.New(stores.Deals, stores.Contacts, stores.Organizations, stores.Tx, log),
		Tasks:      tasksvc.New(stores.Tasks, stores.Deals, stores.Tx, log),
		Activities: activities.New(stores.Activities, stores.Deals, log),
		Analytics:  analytics.New(stores.Deals, opts.Cache, opts.AnalyticsCacheTTL, log),
	}
}
