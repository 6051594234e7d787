package install

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"smarthub/internal/global"
	"smarthub/internal/hub"

	"gopkg.in/yaml.v3"
)

func installConfig(configDir, configPath string) (err error) {
	err = os.MkdirAll(configDir, 0755)
	if err != nil {
		err = fmt.Errorf("failed to create configuration directory: %w", err)
		return
	}

	// Don't overwrite existing
	_, err = os.Stat(configPath)
	if err == nil {
		if !isTerminal() {
			fmt.Printf("Existing configuration file present, not overwriting\n")
			return
		}
		prompt := fmt.Sprintf("Configuration file already exists at '%s'. Are you SURE you want to overwrite it? (yes/no): ", configPath)
		if !confirm(os.Stdin, prompt) {
			fmt.Printf("Not overwriting configuration file\n")
			return
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("failed checking configuration file: %w", err)
		return
	}

	err = CreateTemplateConfig(configPath)
	if err != nil {
		return
	}
	fmt.Printf("Successfully wrote template configuration file to '%s'\n", configPath)
	return
}

// Writes a starting configuration with every section filled in
func CreateTemplateConfig(path string) (err error) {
	if path == "" {
		err = fmt.Errorf("specify template file path via the --config/-c arguments")
		return
	}

	var newCfg hub.FileConfig
	newCfg.Storage.KVPath = global.DefaultKVPath
	newCfg.Storage.VolumePath = global.DefaultVolumePath

	newCfg.Link.Listen = fmt.Sprintf(":%d", global.LinkDefaultPort)
	newCfg.Link.Air = []string{fmt.Sprintf("192.168.4.255:%d", global.LinkDefaultPort)}
	newCfg.Link.Channel = global.LinkDefaultChannel
	newCfg.Link.Address = "24:6F:28:00:00:01"

	newCfg.Backend.Address = global.DefaultServerAddr
	newCfg.Backend.DialTimeout = global.DefaultDialTimeout.String()
	newCfg.Backend.WriteTimeout = global.DefaultWriteTimeout.String()

	newCfg.Network.Manager = hub.NetworkManagerDBus

	newCfg.Queue.MinSize = global.DefaultMinQueueSize
	newCfg.Queue.MaxSize = global.DefaultMaxQueueSize
	newCfg.Queue.ScaleEnabled = true
	newCfg.Queue.ScaleCheck = "5s"

	newCfg.Metrics.Interval = global.DefaultMetricInterval.String()
	newCfg.Metrics.MaxAge = global.DefaultMetricMaxAge.String()

	newCfg.Sensors = []hub.SensorFile{{
		Address:  "127.0.0.1:502",
		SlaveID:  1,
		Timeout:  "1s",
		Interval: "30s",
		Registers: []hub.RegisterFile{
			{Register: 0, FunctionCode: 4, Message: "temperature", Datatype: "S16", Gain: 0.1},
			{Register: 1, FunctionCode: 4, Message: "humidity", Datatype: "U16", Gain: 0.1},
		},
	}}

	confBytes, err := yaml.Marshal(newCfg)
	if err != nil {
		err = fmt.Errorf("error marshaling new config: %w", err)
		return
	}

	// Link secret and Wi-Fi password belong in the env file
	err = os.WriteFile(path, confBytes, 0600)
	if err != nil {
		err = fmt.Errorf("failed to write config to file: %w", err)
		return
	}
	return
}
