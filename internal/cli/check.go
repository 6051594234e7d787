package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"smarthub/internal/global"
	"smarthub/internal/hub"
	"strings"
)

func CheckMode(ctx context.Context, cliOpts *CommandSet, commandname string, args []string) {
	var configPath, envPath string
	commandFlags := newCommandFlags(commandname, cliOpts)
	SetCommon(commandFlags, &configPath, &envPath)
	commandFlags.Parse(args)

	if global.Hostname == "" {
		global.Hostname, _ = os.Hostname()
	}

	err := checkConfig(configPath, envPath, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Validates config and prints the effective settings, secrets masked
func checkConfig(configPath, envPath string, out io.Writer) (err error) {
	fileCfg, err := hub.LoadConfig(configPath, envPath)
	if err != nil {
		return
	}
	cfg, err := fileCfg.NewDaemonConf()
	if err != nil {
		return
	}
	cfg = cfg.Effective()

	fmt.Fprintf(out, "Configuration '%s' is valid\n", configPath)
	fmt.Fprintf(out, "  gateway:      %s\n", cfg.Gateway)
	fmt.Fprintf(out, "  storage:      kv=%s volume=%s\n", cfg.KVPath, cfg.VolumePath)
	fmt.Fprintf(out, "  link:         address=%s channel=%d listen=%q air=%s sealed=%t\n",
		cfg.LinkAddress, cfg.LinkChannel, cfg.LinkListen, strings.Join(cfg.LinkAir, ","), len(cfg.LinkSecret) > 0)
	fmt.Fprintf(out, "  backend:      %s (dial %s, write %s)\n", cfg.ServerAddress, cfg.DialTimeout, cfg.WriteTimeout)
	fmt.Fprintf(out, "  network:      %s ssid=%q password=%s\n", cfg.NetworkManager, cfg.WifiSSID, mask(cfg.WifiPassword))
	fmt.Fprintf(out, "  queue:        %d..%d scaling=%t\n", cfg.MinQueueSize, cfg.MaxQueueSize, cfg.QueueScaleEnabled)
	fmt.Fprintf(out, "  metrics:      every %s, kept %s\n", cfg.MetricCollectionInterval, cfg.MetricMaxAge)
	for _, sensor := range cfg.Sensors {
		fmt.Fprintf(out, "  sensor:       %s slave %d, %d registers every %s\n", sensor.Address, sensor.SlaveID, len(sensor.Registers), sensor.Interval)
	}
	return
}

func mask(secret string) (masked string) {
	if secret == "" {
		masked = "(none)"
		return
	}
	masked = "********"
	return
}
