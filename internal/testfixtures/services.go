package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/group-matcher/internal/application"
	"github.com/example/group-matcher/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("event"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("event")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger overrides the logger handed to constructed services.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// MatchService builds a lifecycle controller over the given repositories.
func (f *ServiceFactory) MatchService(events persistence.EventRepository, availability persistence.AvailabilityRepository) *application.MatchService {
	return application.NewMatchService(events, availability, f.Logger, f.Clock.NowFunc())
}

// EventService builds an event service wired to the given controller.
func (f *ServiceFactory) EventService(events persistence.EventRepository, matcher *application.MatchService) *application.EventService {
	return application.NewEventService(events, matcher, f.Logger, f.IDGenerator.NextFunc(), f.Clock.NowFunc())
}

// AvailabilityService builds an availability service wired to the given controller.
func (f *ServiceFactory) AvailabilityService(availability persistence.AvailabilityRepository, matcher *application.MatchService) *application.AvailabilityService {
	return application.NewAvailabilityService(availability, matcher, f.Logger, f.Clock.NowFunc())
}
