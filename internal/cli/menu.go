package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

const (
	RootCLICommand  string = "root"
	helpMenuTrailer string = `
Configuration is read from YAML, secrets from the optional env file.
Send SIGHUP to a running daemon to re-apply backend and Wi-Fi settings.
`
)

// Full standardized help menu
func PrintHelpMenu(fs *pflag.FlagSet, command string, rootCmd *CommandSet) {
	const baseIndentSpaces = 2

	curCmdSet := rootCmd
	if command != "" && command != RootCLICommand {
		cmd, ok := rootCmd.ChildCommands[command]
		if !ok {
			fmt.Printf("Unknown command: %s\n", command)
			return
		}
		curCmdSet = cmd
	}

	usageParts := []string{filepath.Base(os.Args[0])}
	if curCmdSet != rootCmd {
		usageParts = append(usageParts, curCmdSet.CommandName)
	} else {
		usageParts = append(usageParts, "[options]", "[command]")
	}
	if curCmdSet.UsageOption != "" {
		usageParts = append(usageParts, curCmdSet.UsageOption)
	}
	fmt.Printf("Usage: %s\n\n", strings.Join(usageParts, " "))

	if curCmdSet == rootCmd {
		fmt.Println(curCmdSet.Description)
		fmt.Println(curCmdSet.FullDescription)
		fmt.Println()
	} else if curCmdSet.FullDescription != "" {
		fmt.Println("  Description:")
		fmt.Printf("    %s\n\n", curCmdSet.FullDescription)
	}

	indent := strings.Repeat(" ", baseIndentSpaces)
	if len(curCmdSet.ChildCommands) > 0 {
		fmt.Printf("%sCommands:\n", indent)

		maxLen := 0
		names := make([]string, 0, len(curCmdSet.ChildCommands))
		for name := range curCmdSet.ChildCommands {
			names = append(names, name)
			maxLen = max(maxLen, len(name))
		}
		sort.Strings(names)

		for _, name := range names {
			padding := strings.Repeat(" ", maxLen-len(name)+2)
			fmt.Printf("%s%s%s%s - %s\n", indent, indent, name, padding, curCmdSet.ChildCommands[name].Description)
		}
		fmt.Println()
	}

	if fs.HasFlags() {
		fmt.Printf("%sOptions:\n", indent)
		for _, line := range strings.Split(strings.TrimRight(fs.FlagUsages(), "\n"), "\n") {
			fmt.Printf("%s%s\n", indent, line)
		}
	}

	if curCmdSet == rootCmd {
		fmt.Print(helpMenuTrailer)
	}
}
