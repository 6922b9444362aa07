package feeschedule

import (
	"github.com/smallbiznis/memberbill/internal/feeschedule/repository"
	"github.com/smallbiznis/memberbill/internal/feeschedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feeschedule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
