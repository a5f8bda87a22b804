package voice

import "strings"

// Tab names a top-level seeker screen.
type Tab string

const (
	TabVision   Tab = "vision"
	TabFriends  Tab = "friends"
	TabSettings Tab = "settings"
)

// Action is what a matched command does.
type Action string

const (
	ActionOpenVision   Action = "open_vision"
	ActionOpenFriends  Action = "open_friends"
	ActionOpenSettings Action = "open_settings"
	ActionCallHelper   Action = "call_helper"
	ActionTakePicture  Action = "take_picture"
	ActionRepeat       Action = "repeat"
)

// Command maps a spoken phrase to an action.
type Command struct {
	Phrase string
	Action Action
}

// DefaultCommands is the seeker command table.
var DefaultCommands = []Command{
	{Phrase: "open my vision", Action: ActionOpenVision},
	{Phrase: "open my friends", Action: ActionOpenFriends},
	{Phrase: "open my settings", Action: ActionOpenSettings},
	{Phrase: "open settings", Action: ActionOpenSettings},
	{Phrase: "call a helper", Action: ActionCallHelper},
	{Phrase: "call helper", Action: ActionCallHelper},
	{Phrase: "take a picture", Action: ActionTakePicture},
	{Phrase: "repeat", Action: ActionRepeat},
}

// Match finds the command whose phrase occurs in text. Matching is case-insensitive substring
// containment; when several phrases occur the longest wins.
func Match(text string, commands []Command) (Command, bool) {
	text = strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if text == "" {
		return Command{}, false
	}

	var (
		best  Command
		found bool
	)
	for _, cmd := range commands {
		if !strings.Contains(text, cmd.Phrase) {
			continue
		}
		if !found || len(cmd.Phrase) > len(best.Phrase) {
			best, found = cmd, true
		}
	}
	return best, found
}
