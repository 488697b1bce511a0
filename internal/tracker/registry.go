package tracker

import (
	"fmt"
	"net/http"

	"trapforwarder/internal/config"
	"trapforwarder/internal/external"
	"trapforwarder/internal/types"
)

// New builds the Tracker selected by configuration. Local runs always get
// the in-memory stub so nothing talks to a real platform.
func New(cfg *config.Config, logger types.Logger) (Tracker, error) {
	if cfg.Environment == "local" {
		logger.Warn("local environment: using stub tracker")
		return NewStubTracker(), nil
	}

	tc := cfg.Tracker
	switch tc.Kind {
	case config.TrackerStub:
		return NewStubTracker(), nil
	case config.TrackerEmcli:
		return NewEmcliTracker(tc.EmcliPath, tc.Timeout, ExecRunner{}, logger), nil
	case config.TrackerHTTP:
		base := external.NewBaseClient(
			&http.Client{Timeout: tc.Timeout},
			"tracker",
			external.DefaultRetryPolicy(),
			tc.UserAgent,
		)
		return NewHTTPTracker(base, tc.URL, tc.Username, tc.Password, logger), nil
	default:
		return nil, fmt.Errorf("unknown tracker kind %q", tc.Kind)
	}
}
