// Handles installation, removal and template generation for the hub daemon
package install

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"smarthub/internal/global"
	"strings"

	"golang.org/x/term"
)

// Full installation (idempotent)
func Run() (err error) {
	if os.Geteuid() != 0 {
		err = fmt.Errorf("installation must be run as root")
		return
	}

	err = installBinary(global.DefaultBinaryPath)
	if err != nil {
		err = fmt.Errorf("failed installing binary: %w", err)
		return
	}

	err = installConfig(global.DefaultConfigDir, global.DefaultConfigPath)
	if err != nil {
		err = fmt.Errorf("failed with template config: %w", err)
		return
	}

	err = installService(global.DefaultUnitPath)
	if err != nil {
		err = fmt.Errorf("failed with systemd service: %w", err)
		return
	}

	fmt.Printf("Installation completed successfully\n")
	return
}

// Full uninstall, configuration and persisted hub state included
func Remove() (err error) {
	if isTerminal() && !confirm(os.Stdin, "Are you SURE you want to uninstall? (this will remove the configuration and hub state) (yes/no): ") {
		fmt.Printf("Aborting uninstall\n")
		return
	}

	if os.Geteuid() != 0 {
		err = fmt.Errorf("uninstall must be run as root")
		return
	}

	// Best effort past this point
	if err := uninstallService(global.DefaultUnitPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error with systemd service: %v\n", err)
	}
	if err := removeFile(global.DefaultBinaryPath, "binary"); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing binary: %v\n", err)
	}
	if err := removeDir(global.DefaultConfigDir, "configuration directory"); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing configuration: %v\n", err)
	}
	if err := removeFile(global.DefaultKVPath, "key-value store"); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing key-value store: %v\n", err)
	}
	return
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Reads a yes/no answer, anything but "yes" is a no
func confirm(input io.Reader, prompt string) (accepted bool) {
	fmt.Print(prompt)
	reader := bufio.NewReader(input)
	answer, _ := reader.ReadString('\n')
	accepted = strings.ToLower(strings.TrimSpace(answer)) == "yes"
	return
}
