package app

// Command is the server's run mode.
type Command string

const (
	CommandServe       Command = "serve"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand reads the subcommand from args. Empty or unknown input
// selects CommandServe.
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// migrateDirection returns the direction argument of "migrate", "up" by
// default.
func migrateDirection(args []string) string {
	if len(args) > 1 && args[1] != "" {
		return args[1]
	}
	return "up"
}
