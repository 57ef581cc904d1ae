package bridge

import (
	"strconv"
	"strings"
)

// Line prefixes of the recognizer protocol. Fields are separated by '|'.
const (
	prefixDialogue      = "DIALOGUE"
	prefixEquip         = "EQUIP"
	prefixCommand       = "COMMAND"
	prefixSelect        = "select "
	prefixStartDialogue = "START_DIALOGUE"
	prefixSelected      = "SELECTED"
	prefixFavorites     = "FAVORITES"

	// StopDialogue tells the recognizer that the dialogue ended.
	StopDialogue = "STOP_DIALOGUE"

	separator = "|"
)

// CloseIndex is the selection index that requests closing the dialogue.
const CloseIndex = -2

// Stream is the destination queue of an inbound line.
type Stream int

// Inbound streams.
const (
	Malformed Stream = iota
	Commands
	Equips
)

// Classify returns the stream that an inbound line belongs to.
func Classify(line string) Stream {
	switch {
	case strings.HasPrefix(line, prefixEquip+separator):
		return Equips
	case strings.HasPrefix(line, prefixCommand+separator):
		if strings.TrimSpace(line[len(prefixCommand)+1:]) == "" {
			return Malformed
		}
		return Commands
	default:
		if _, ok := ParseSelection(line); ok {
			return Commands
		}
		return Malformed
	}
}

// Selection is a dialogue line selection requested by the recognizer.
type Selection struct {
	// DialogueID is the dialogue the selection was made for, 0 for a
	// selection that applies to the current dialogue.
	DialogueID int
	Index      int
}

// ParseSelection parses a "DIALOGUE|<id>|<index>" or "select <index>" line.
func ParseSelection(line string) (Selection, bool) {
	if rest, ok := strings.CutPrefix(line, prefixSelect); ok {
		index, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || index < CloseIndex {
			return Selection{}, false
		}
		return Selection{Index: index}, true
	}

	fields := strings.Split(line, separator)
	if len(fields) != 3 || fields[0] != prefixDialogue {
		return Selection{}, false
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil || id <= 0 {
		return Selection{}, false
	}
	index, err := strconv.Atoi(fields[2])
	if err != nil || index < CloseIndex {
		return Selection{}, false
	}
	return Selection{DialogueID: id, Index: index}, true
}

// ParseCommand returns the console command of a "COMMAND|<command>" line.
func ParseCommand(line string) (string, bool) {
	command, ok := strings.CutPrefix(line, prefixCommand+separator)
	command = strings.TrimSpace(command)
	return command, ok && command != ""
}

// ParseEquip returns the fields of an "EQUIP|<fields>" line.
func ParseEquip(line string) (string, bool) {
	fields, ok := strings.CutPrefix(line, prefixEquip+separator)
	return fields, ok && fields != ""
}

// sanitize removes characters from a field that would break the framing.
func sanitize(field string) string {
	return strings.NewReplacer("\r", " ", "\n", " ", separator, " ").Replace(field)
}

// FormatStartDialogue formats the message announcing a populated dialogue.
func FormatStartDialogue(id int, lines []string) string {
	var sb strings.Builder
	sb.WriteString(prefixStartDialogue)
	sb.WriteString(separator)
	sb.WriteString(strconv.Itoa(id))
	for _, line := range lines {
		sb.WriteString(separator)
		sb.WriteString(sanitize(line))
	}
	return sb.String()
}

// FormatSelected formats the message reporting the current selection.
func FormatSelected(id, index int) string {
	return prefixSelected + separator + strconv.Itoa(id) + separator + strconv.Itoa(index)
}

// FormatFavorites formats the message listing the favorites. Entries are
// already comma separated records.
func FormatFavorites(entries []string) string {
	fields := make([]string, 0, len(entries)+1)
	fields = append(fields, prefixFavorites)
	for _, entry := range entries {
		fields = append(fields, sanitize(entry))
	}
	return strings.Join(fields, separator)
}

// Kinds of outbound messages.
const (
	KindStartDialogue = prefixStartDialogue
	KindStopDialogue  = StopDialogue
	KindSelected      = prefixSelected
	KindFavorites     = prefixFavorites
)

// Message is a parsed message sent to the recognizer.
type Message struct {
	Kind   string
	ID     int      // dialogue id of dialogue messages
	Index  int      // selected index of selection messages
	Fields []string // dialogue lines or favorites records
}

// ParseMessage parses a line written by FormatStartDialogue, FormatSelected,
// FormatFavorites or the stop message.
func ParseMessage(line string) (Message, bool) {
	fields := strings.Split(line, separator)
	msg := Message{Kind: fields[0]}

	switch msg.Kind {
	case KindStopDialogue:
		return msg, len(fields) == 1

	case KindFavorites:
		msg.Fields = fields[1:]
		return msg, true

	case KindStartDialogue:
		if len(fields) < 2 {
			return Message{}, false
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return Message{}, false
		}
		msg.ID = id
		msg.Fields = fields[2:]
		return msg, true

	case KindSelected:
		if len(fields) != 3 {
			return Message{}, false
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return Message{}, false
		}
		index, err := strconv.Atoi(fields[2])
		if err != nil {
			return Message{}, false
		}
		msg.ID = id
		msg.Index = index
		return msg, true

	default:
		return Message{}, false
	}
}
