// Package telemetry exposes a pprof endpoint for live profiling of the
// long-running worker process (enabled by its --pprof-port flag), adapted from the
// teacher's telemetry package.
package telemetry

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/lyzr/workflowcore/internal/logger"
)

// Telemetry owns the process's debug pprof listener.
type Telemetry struct {
	log      *logger.Logger
	pprofAddr string
}

// New builds a Telemetry bound to localhost:pprofPort.
func New(pprofPort int, log *logger.Logger) *Telemetry {
	return &Telemetry{log: log, pprofAddr: fmt.Sprintf("localhost:%d", pprofPort)}
}

// Start launches the pprof HTTP listener in the background. It never blocks
// and never returns an error synchronously — a bind failure is logged, not
// fatal, since profiling is a debug aid rather than a required component.
func (t *Telemetry) Start() {
	go func() {
		t.log.Info("pprof listener starting", "addr", t.pprofAddr)
		if err := http.ListenAndServe(t.pprofAddr, nil); err != nil {
			t.log.Error("pprof listener stopped", "error", err)
		}
	}()
}
