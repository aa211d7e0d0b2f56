package importer

import (
	"log/slog"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/db"
	"github.com/eventhub/event-importer/internal/metrics"
	"github.com/eventhub/event-importer/internal/occasion"
	"github.com/eventhub/event-importer/internal/provider"
	"github.com/eventhub/event-importer/internal/provider/arcgis"
	"github.com/eventhub/event-importer/internal/provider/cbis"
	"github.com/eventhub/event-importer/internal/provider/rest"
	"github.com/eventhub/event-importer/internal/provider/transticket"
	"github.com/eventhub/event-importer/internal/provider/xcap"
	"github.com/eventhub/event-importer/internal/store"
)

// Sources builds the provider adapters keyed by provider name. Each
// provider gets its own rate-limited client.
func Sources(cfg *config.Config, logger *slog.Logger) map[string]provider.Source {
	rpm := cfg.ProviderRateLimit
	if rpm <= 0 {
		rpm = 120
	}
	return map[string]provider.Source{
		config.ProviderCBIS:        cbis.NewSource(cbis.NewClient(rpm, logger), logger),
		config.ProviderXCAP:        xcap.NewSource(rest.NewClient(rpm, logger), logger),
		config.ProviderTransTicket: transticket.NewSource(rest.NewClient(rpm, logger), cfg.Location, logger),
		config.ProviderArcGIS:      arcgis.NewSource(rest.NewClient(rpm, logger), logger),
	}
}

// FromConfig wires an Importer over the database and every provider source.
func FromConfig(cfg *config.Config, q db.Querier, m *metrics.ImportMetrics, logger *slog.Logger) *Importer {
	return New(
		Sources(cfg, logger),
		cfg.Providers,
		store.New(q),
		occasion.NewStore(q, cfg.Location),
		Options{FuzzyThreshold: cfg.FuzzyThreshold, Metrics: m},
		logger,
	)
}
