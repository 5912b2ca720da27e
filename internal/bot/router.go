package bot

import "errors"

// Flow identifies which pipeline answers an inbound command or event.
type Flow int

const (
	FlowGenerate Flow = iota
	FlowWeather
)

// ErrUnknownCommand is surfaced to the user as a normal message, never as an
// error status, so the platform does not retry a non-transient condition.
var ErrUnknownCommand = errors.New("unrecognized command")

// RouteCommand maps a slash command to a flow. The command set is closed:
// adding a command means adding a case here.
func RouteCommand(command string) (Flow, error) {
	switch command {
	case "/bard", "/zbard":
		return FlowGenerate, nil
	case "/wf", "/zwf":
		return FlowWeather, nil
	default:
		return 0, ErrUnknownCommand
	}
}

// RouteEvent maps an event-subscription type to a flow.
func RouteEvent(eventType string) (Flow, error) {
	switch eventType {
	case "app_mention", "message":
		return FlowGenerate, nil
	default:
		return 0, ErrUnknownCommand
	}
}
