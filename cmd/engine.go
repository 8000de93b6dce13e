package cmd

import (
	"fmt"

	"github.com/marcus/ck/internal/config"
	"github.com/marcus/ck/internal/engine"
	"github.com/marcus/ck/internal/identity"
	"github.com/marcus/ck/internal/status"
	"github.com/marcus/ck/internal/store"
)

// openEngine assembles the engine over the durable store with the
// persisted settings and credentials, and mounts local state. The
// returned closer flushes any pending debounced sync before shutdown,
// so short-lived commands never lose their trailing mutation.
func openEngine() (*engine.Engine, func(), error) {
	settings, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	creds, err := identity.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load credentials: %w", err)
	}
	path, err := config.StorePath()
	if err != nil {
		return nil, nil, err
	}
	kv, err := store.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	eng := engine.New(store.NewRecords(kv), status.NewTracker(), settings, creds)
	eng.LoadLocal()

	closer := func() {
		eng.Flush()
		eng.Close()
		kv.Close()
	}
	return eng, closer, nil
}
