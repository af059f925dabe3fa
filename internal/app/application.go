// Package app wires the relay services over their stores and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"

	announcementsvc "github.com/relaypoint/community_layer/internal/app/services/announcements"
	messagesvc "github.com/relaypoint/community_layer/internal/app/services/messages"
	profilesvc "github.com/relaypoint/community_layer/internal/app/services/profiles"
	requestsvc "github.com/relaypoint/community_layer/internal/app/services/requests"
	usersvc "github.com/relaypoint/community_layer/internal/app/services/users"
	"github.com/relaypoint/community_layer/internal/app/storage"
	"github.com/relaypoint/community_layer/internal/app/storage/memory"
	"github.com/relaypoint/community_layer/internal/app/system"
	"github.com/relaypoint/community_layer/internal/logging"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users         storage.UserStore
	Requests      storage.RequestStore
	Fulfillments  storage.FulfillmentStore
	Messages      storage.MessageStore
	Profiles      storage.ProfileStore
	Announcements storage.AnnouncementStore
}

// Application ties the relay services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Users         *usersvc.Service
	Requests      *requestsvc.Service
	Messages      *messagesvc.Service
	Profiles      *profilesvc.Service
	Announcements *announcementsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Requests == nil {
		stores.Requests = mem
	}
	if stores.Fulfillments == nil {
		stores.Fulfillments = mem
	}
	if stores.Messages == nil {
		stores.Messages = mem
	}
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Announcements == nil {
		stores.Announcements = mem
	}

	manager := system.NewManager()

	userService := usersvc.New(stores.Users, log)
	requestService := requestsvc.New(stores.Requests, stores.Fulfillments, stores.Users, stores.Profiles, log)
	messageService := messagesvc.New(stores.Messages, stores.Fulfillments, stores.Requests, log)
	profileService := profilesvc.New(stores.Profiles, log)
	announcementService := announcementsvc.New(stores.Announcements, log)

	for _, name := range []string{"users", "requests", "messages", "profiles", "announcements"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Users:         userService,
		Requests:      requestService,
		Messages:      messageService,
		Profiles:      profileService,
		Announcements: announcementService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
