package cli

type CommandSet struct {
	CommandName     string
	Description     string
	FullDescription string
	UsageOption     string
	ChildCommands   map[string]*CommandSet
}

func DefineOptions() (cmdOpts *CommandSet) {
	root := &CommandSet{
		Description:     "Smart Hub Gateway (smarthub)",
		FullDescription: "  Collects sensor frames from wireless slaves and forwards them to a metrics backend",
		CommandName:     RootCLICommand,
		ChildCommands:   make(map[string]*CommandSet),
	}

	root.ChildCommands["run"] = &CommandSet{
		CommandName:     "run",
		Description:     "Run the Hub Daemon",
		FullDescription: "Receives slave frames, stamps identity and time, delivers them upstream or logs them to storage while offline",
		UsageOption:     "[options]",
	}

	root.ChildCommands["check"] = &CommandSet{
		CommandName:     "check",
		Description:     "Validate Configuration",
		FullDescription: "Loads the configuration and environment file, validates every section and prints the effective settings",
		UsageOption:     "[options]",
	}

	root.ChildCommands["configure"] = &CommandSet{
		CommandName:     "configure",
		Description:     "Setup Actions",
		FullDescription: "Install or remove the daemon, or generate a template configuration",
		UsageOption:     "[options]",
	}

	root.ChildCommands["version"] = &CommandSet{
		CommandName:     "version",
		Description:     "Show Version Information",
		FullDescription: "Display meta information about program",
	}

	cmdOpts = root
	return
}
