package mocks

import "github.com/retroenv/retrohook/internal/bridge"

// Notifier records the messages that would be sent to the recognizer.
type Notifier struct {
	Messages []string
	id       int
}

// StartDialogue implements session.Notifier.
func (n *Notifier) StartDialogue(lines []string) (int, error) {
	n.id++
	n.Messages = append(n.Messages, bridge.FormatStartDialogue(n.id, lines))
	return n.id, nil
}

// StopDialogue implements session.Notifier.
func (n *Notifier) StopDialogue() error {
	n.Messages = append(n.Messages, bridge.StopDialogue)
	return nil
}

// ReportSelection implements session.Notifier.
func (n *Notifier) ReportSelection(index int) error {
	n.Messages = append(n.Messages, bridge.FormatSelected(n.id, index))
	return nil
}

// Count returns how often a message was recorded.
func (n *Notifier) Count(message string) int {
	count := 0
	for _, m := range n.Messages {
		if m == message {
			count++
		}
	}
	return count
}
