package client

import (
	"github.com/smallbiznis/memberbill/internal/client/repository"
	"github.com/smallbiznis/memberbill/internal/client/service"
	"go.uber.org/fx"
)

var Module = fx.Module("client.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
