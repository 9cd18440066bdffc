package dispatch

import (
	"github.com/stocky-devel/stocky/internal/events"
)

// Routes classifies event kinds by destination. A kind may appear in more
// than one set and is then delivered to each exactly once.
type Routes struct {
	Client map[events.Kind]bool
	Device map[events.Kind]bool
	Local  map[events.Kind]bool
}

func set(kinds ...events.Kind) map[events.Kind]bool {
	m := make(map[events.Kind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// DefaultRoutes returns the server's routing table.
func DefaultRoutes() Routes {
	return Routes{
		Client: set(
			events.KindRadarData,
			events.KindCommandResponse,
			events.KindStatusReport,
			events.KindReaderState,
			events.KindLoginResult,
			events.KindLogoutResult,
			events.KindStockInfo,
			events.KindLocMutResult,
			events.KindConfigData,
		),
		Device: set(
			events.KindRadarMode,
			events.KindStockMode,
			events.KindTimerTick,
			events.KindGenericCommand,
		),
		Local: set(
			events.KindRadarMode,
			events.KindStockMode,
			events.KindActivity,
			events.KindDevicePresence,
			events.KindLoginTry,
			events.KindLogoutTry,
			events.KindStockInfoReq,
			events.KindSetLocation,
			events.KindLocMutRequest,
			events.KindConfigRequest,
			events.KindEndSession,
		),
	}
}
