//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"
)

func InitializeApplication() (*Application, error) {
	wire.Build(
		ProvideConfig,
		ProvideDatabase,
		ProvideMongo,
		ProvideCache,
		ProvidePreferenceStore,
		ProvideHistoryStore,
		ProvideFirebaseApp,
		ProvideFirebaseMessaging,
		ProvideEmailService,
		ProvideSMSService,
		ProvideRouter,
		ProvideTransport,
		ProvideAdapters,
		ProvideDispatcher,
		ProvideContextResolver,
		ProvidePredictor,
		ProvideService,
		ProvideHandler,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil
}
