package cmd

import (
	"fmt"
	"os"

	"github.com/linanwx/triptych/bus"
	"github.com/linanwx/triptych/channel"
	"github.com/linanwx/triptych/config"
	"github.com/linanwx/triptych/dispatch"
	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/session"
)

const eventBufferSize = 1024

// runtime wires the panels, the dispatcher and the event bus for one
// invocation.
type runtime struct {
	cfg        *config.Config
	sessions   *session.Manager
	events     *bus.Bus
	dispatcher *dispatch.Dispatcher
}

func newRuntime(cfg *config.Config) *runtime {
	sessions := session.NewManager()
	if err := cfg.ApplyPanels(sessions); err != nil {
		logger.Warn("some panels were not configured", "err", err)
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	events := bus.NewBus(eventBufferSize)
	client := provider.NewClient(cfg.HTTP.Timeout())

	return &runtime{
		cfg:        cfg,
		sessions:   sessions,
		events:     events,
		dispatcher: dispatch.New(sessions, client, events),
	}
}

func (r *runtime) deps() channel.Deps {
	exportDir, err := os.Getwd()
	if err != nil {
		exportDir = "."
	}
	return channel.Deps{
		Sessions:   r.sessions,
		Dispatcher: r.dispatcher,
		Bus:        r.events,
		ExportDir:  exportDir,
	}
}

func (r *runtime) close() {
	r.events.Close()
}
