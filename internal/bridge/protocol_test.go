package bridge

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line     string
		expected Stream
	}{
		{line: "EQUIP|0x12EB7;0;41;1", expected: Equips},
		{line: "COMMAND|tgm", expected: Commands},
		{line: "COMMAND| ", expected: Malformed},
		{line: "DIALOGUE|3|1", expected: Commands},
		{line: "DIALOGUE|3|-2", expected: Commands},
		{line: "DIALOGUE|3|-3", expected: Malformed},
		{line: "DIALOGUE|x|1", expected: Malformed},
		{line: "DIALOGUE|3", expected: Malformed},
		{line: "select 1", expected: Commands},
		{line: "select one", expected: Malformed},
		{line: "EQUIPMENT", expected: Malformed},
		{line: "hello", expected: Malformed},
	}

	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, Classify(test.line))
		})
	}
}

func TestParseSelection(t *testing.T) {
	t.Parallel()

	selection, ok := ParseSelection("DIALOGUE|12|3")
	assert.True(t, ok)
	assert.Equal(t, Selection{DialogueID: 12, Index: 3}, selection)

	selection, ok = ParseSelection("select 1")
	assert.True(t, ok)
	assert.Equal(t, Selection{Index: 1}, selection)

	selection, ok = ParseSelection("DIALOGUE|4|-2")
	assert.True(t, ok)
	assert.Equal(t, CloseIndex, selection.Index)

	_, ok = ParseSelection("DIALOGUE|0|1")
	assert.False(t, ok)
	_, ok = ParseSelection("COMMAND|select 1")
	assert.False(t, ok)
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	command, ok := ParseCommand("COMMAND|player.additem f 100 ")
	assert.True(t, ok)
	assert.Equal(t, "player.additem f 100", command)

	_, ok = ParseCommand("select 1")
	assert.False(t, ok)

	fields, ok := ParseEquip("EQUIP|1;2;3;0")
	assert.True(t, ok)
	assert.Equal(t, "1;2;3;0", fields)
	_, ok = ParseEquip("EQUIP|")
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "START_DIALOGUE|1|Hello|Goodbye", FormatStartDialogue(1, []string{"Hello", "Goodbye"}))
	assert.Equal(t, "START_DIALOGUE|2|a b|c d", FormatStartDialogue(2, []string{"a|b", "c\nd"}))
	assert.Equal(t, "START_DIALOGUE|3", FormatStartDialogue(3, nil))
	assert.Equal(t, "SELECTED|1|0", FormatSelected(1, 0))
	assert.Equal(t, "FAVORITES|Iron Sword,77,0,1,41|Healing,78,0,0,22",
		FormatFavorites([]string{"Iron Sword,77,0,1,41", "Healing,78,0,0,22"}))
}

func TestParseMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		ok   bool
		want Message
	}{
		{line: "START_DIALOGUE|1|Hello|Goodbye", ok: true,
			want: Message{Kind: KindStartDialogue, ID: 1, Fields: []string{"Hello", "Goodbye"}}},
		{line: "START_DIALOGUE|3", ok: true, want: Message{Kind: KindStartDialogue, ID: 3, Fields: []string{}}},
		{line: "SELECTED|2|1", ok: true, want: Message{Kind: KindSelected, ID: 2, Index: 1}},
		{line: "STOP_DIALOGUE", ok: true, want: Message{Kind: KindStopDialogue}},
		{line: "FAVORITES", ok: true, want: Message{Kind: KindFavorites, Fields: []string{}}},
		{line: "FAVORITES|Bow,1,0,0,41", ok: true, want: Message{Kind: KindFavorites, Fields: []string{"Bow,1,0,0,41"}}},
		{line: "START_DIALOGUE|x|a"},
		{line: "SELECTED|1"},
		{line: "SELECTED|1|x"},
		{line: "STOP_DIALOGUE|1"},
		{line: "select 1"},
	}

	for _, tt := range tests {
		msg, ok := ParseMessage(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		if tt.ok {
			assert.Equal(t, tt.want, msg, tt.line)
		}
	}
}
