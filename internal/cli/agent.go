package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/config"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/api"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/monitor"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/queue"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/statushub"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/store"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/syncer"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
)

// deviceStack wires the device-side components from config.
type deviceStack struct {
	kv     *store.KV
	queue  *queue.Queue
	client *api.Client
	syncer *syncer.Syncer
}

func openDeviceStack(cfg *config.Config, online func() bool) (*deviceStack, error) {
	kv, err := store.Open(filepath.Join(cfg.Device.DataDir, "device.db"))
	if err != nil {
		return nil, err
	}

	q, err := queue.Open(kv, cfg.Device.QueueCapacity, cfg.Device.MaxAttempts)
	if err != nil {
		kv.Close()
		return nil, err
	}

	status, err := syncer.OpenStatusStore(kv)
	if err != nil {
		kv.Close()
		return nil, err
	}

	client := api.New(cfg.Device.ServerURL, cfg.Device.RequestTimeout(), q)
	sy := syncer.New(q, client, status, syncer.Options{
		Online:  online,
		Timeout: cfg.Device.RequestTimeout(),
	})

	return &deviceStack{kv: kv, queue: q, client: client, syncer: sy}, nil
}

func (s *deviceStack) Close() error {
	return s.kv.Close()
}

// AgentCmd returns the agent command: the long-running device-side
// process that monitors connectivity, drains the queue and publishes
// sync status to the local UI.
func AgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the device sync agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			checker := &monitor.HTTPChecker{URL: cfg.Device.ServerURL + "/health"}

			stack, err := openDeviceStack(cfg, func() bool {
				return checker.Reachable(ctx)
			})
			if err != nil {
				return err
			}
			defer stack.Close()

			hub := statushub.New(stack.syncer.Status)
			stack.syncer.Subscribe(hub.OnSyncEvent)

			mon := monitor.New(checker, monitor.DrainFunc(func(ctx context.Context) error {
				_, err := stack.syncer.Drain(ctx)
				return err
			}), cfg.Device.ProbeInterval())

			mon.Start(ctx)
			defer mon.Stop()

			go func() {
				logging.Info("Status hub listening", map[string]interface{}{
					"addr": cfg.Device.StatusListenAddr,
				})
				if err := http.ListenAndServe(cfg.Device.StatusListenAddr, hub.Handler()); err != nil {
					logging.Error("Status hub stopped", err)
				}
			}()

			// Drain once at startup to flush anything left from the
			// previous run.
			if _, err := stack.syncer.Drain(ctx); err != nil {
				logging.Error("Startup drain failed", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			logging.Info("Agent shutting down", nil)
			return nil
		},
	}
}
