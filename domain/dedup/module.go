package dedup

import (
	"go.uber.org/fx"

	"github.com/felinebridge/cockpit/domain/entities"
)

// Module provides the dedup domain. The service depends on small interfaces
// so tests can substitute fakes; the bindings below close the loop to the
// concrete repository, executor and snapshot loader.
var Module = fx.Module("dedup",
	fx.Provide(
		NewRepository,
		NewExecutor,
		DefaultTierConfig,
		func(r *Repository) CandidateStore { return r },
		func(e *Executor) Merger { return e },
		func(r *entities.Repository) SnapshotLoader { return r },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
