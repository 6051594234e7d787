package install

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"smarthub/internal/global"
	"strings"
)

const unitTemplate string = `[Unit]
Description=Smart hub telemetry gateway
Wants=network-online.target NetworkManager.service
After=network-online.target NetworkManager.service

[Service]
Type=notify
ExecStart=$executableFilePath run --config $configFilePath --env-file $envFilePath
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=5s
StateDirectory=smarthub

[Install]
WantedBy=multi-user.target
`

func renderUnit() (unit string) {
	unit = strings.Replace(unitTemplate, "$executableFilePath", global.DefaultBinaryPath, 1)
	unit = strings.Replace(unit, "$configFilePath", global.DefaultConfigPath, 1)
	unit = strings.Replace(unit, "$envFilePath", global.DefaultEnvPath, 1)
	return
}

func systemctl(args ...string) (output string, err error) {
	command := exec.Command("systemctl", args...)
	out, err := command.CombinedOutput()
	output = strings.TrimSpace(string(out))
	return
}

func installService(unitFilePath string) (err error) {
	unitName := filepath.Base(unitFilePath)

	err = os.WriteFile(unitFilePath, []byte(renderUnit()), 0644)
	if err != nil {
		return
	}

	output, err := systemctl("daemon-reload")
	if err != nil {
		err = fmt.Errorf("failed to reload systemd units: %w: %s", err, output)
		return
	}

	// Disabled is exit code 1
	enableStatus, err := systemctl("is-enabled", unitName)
	if err != nil && !strings.Contains(enableStatus, "disabled") {
		err = fmt.Errorf("failed to check systemd service enablement status: %w: %s", err, enableStatus)
		return
	}
	err = nil

	if strings.ToLower(enableStatus) != "enabled" {
		output, err = systemctl("enable", unitName)
		if err != nil {
			err = fmt.Errorf("failed to enable systemd service: %w: %s", err, output)
			return
		}
	}

	fmt.Printf("Successfully installed Systemd service\n")
	fmt.Printf("  IMPORTANT: modify the configuration to your needs and start the service with 'systemctl start %s'\n", unitName)
	return
}

func uninstallService(unitFilePath string) (err error) {
	unitName := filepath.Base(unitFilePath)

	enableStatus, err := systemctl("is-enabled", unitName)
	if err != nil && !strings.Contains(enableStatus, "not-found") && !strings.Contains(enableStatus, "disabled") {
		err = fmt.Errorf("failed to check systemd service enablement status: %w: %s", err, enableStatus)
		return
	}
	err = nil

	if strings.ToLower(enableStatus) == "enabled" {
		output, err := systemctl("disable", unitName)
		if err != nil {
			return fmt.Errorf("failed to disable systemd service: %w: %s", err, output)
		}
	}

	serviceStatus, err := systemctl("show", unitName, "--property=ActiveState")
	if err != nil && !strings.Contains(serviceStatus, "could not be found") {
		err = fmt.Errorf("failed to check systemd service status: %w: %s", err, serviceStatus)
		return
	}
	err = nil

	if strings.Contains(serviceStatus, "active") && !strings.Contains(serviceStatus, "inactive") {
		output, err := systemctl("stop", unitName)
		if err != nil {
			return fmt.Errorf("failed to stop systemd service: %w: %s", err, output)
		}
	}

	err = os.Remove(unitFilePath)
	if err != nil && !os.IsNotExist(err) {
		return
	}
	err = nil

	output, err := systemctl("daemon-reload")
	if err != nil {
		err = fmt.Errorf("failed to reload systemd units: %w: %s", err, output)
		return
	}

	fmt.Printf("Successfully uninstalled systemd service\n")
	return
}
