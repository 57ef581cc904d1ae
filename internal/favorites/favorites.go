// Package favorites publishes the favorited items of the player to the
// recognizer and equips the items the recognizer asks for.
package favorites

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/retroenv/retrohook/internal/bridge"
	"github.com/retroenv/retrogolib/log"
)

var errMalformedAction = errors.New("malformed equip action")

// Hand is the hand an item is equipped to.
type Hand int

// Hands as sent by the recognizer.
const (
	Both Hand = iota
	Right
	Left
)

func (h Hand) String() string {
	switch h {
	case Both:
		return "both"
	case Right:
		return "right"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("hand(%d)", int(h))
	}
}

// Item is a favorited item of the player.
type Item struct {
	Name         string
	FormID       uint32
	ItemID       int64
	SingleHanded bool
	TypeID       int
}

// Record formats the item as "name,formId,itemId,single,typeId".
func (i Item) Record() string {
	single := 0
	if i.SingleHanded {
		single = 1
	}
	name := strings.ReplaceAll(i.Name, ",", " ")
	return fmt.Sprintf("%s,%d,%d,%d,%d", name, i.FormID, i.ItemID, single, i.TypeID)
}

// Action is a parsed equip request.
type Action struct {
	FormID uint32
	ItemID int64
	TypeID int
	Hand   Hand
}

// ParseAction parses the "formID;itemID;typeID;hand" fields of an equip
// line. A missing hand equips both hands.
func ParseAction(fields string) (Action, error) {
	parts := strings.Split(fields, ";")
	if len(parts) < 3 || len(parts) > 4 {
		return Action{}, fmt.Errorf("%w: %q", errMalformedAction, fields)
	}

	formID, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Action{}, fmt.Errorf("%w: form id: %w", errMalformedAction, err)
	}
	itemID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Action{}, fmt.Errorf("%w: item id: %w", errMalformedAction, err)
	}
	typeID, err := strconv.Atoi(parts[2])
	if err != nil {
		return Action{}, fmt.Errorf("%w: type id: %w", errMalformedAction, err)
	}

	action := Action{
		FormID: uint32(formID),
		ItemID: itemID,
		TypeID: typeID,
	}
	if len(parts) == 4 && parts[3] != "" {
		hand, err := strconv.Atoi(parts[3])
		if err != nil || hand < int(Both) || hand > int(Left) {
			return Action{}, fmt.Errorf("%w: hand %q", errMalformedAction, parts[3])
		}
		action.Hand = Hand(hand)
	}
	return action, nil
}

// Source returns the favorited items of the player.
type Source interface {
	Favorites() ([]Item, error)
}

// Equipper equips an item on the player.
type Equipper interface {
	Equip(item Item, hand Hand) error
}

// Publisher sends the favorites records to the recognizer.
type Publisher interface {
	PublishFavorites(entries []string) error
}

// ActionSource returns pending equip lines.
type ActionSource interface {
	PopEquipAction() (string, bool)
}

// Manager keeps the published favorites in sync with the host. It is only
// used on the host thread.
type Manager struct {
	logger    *log.Logger
	source    Source
	equipper  Equipper
	publisher Publisher
	actions   ActionSource
	enabled   bool

	items map[uint32]Item
}

// New returns a manager. A disabled manager never publishes or equips.
func New(logger *log.Logger, source Source, equipper Equipper, publisher Publisher,
	actions ActionSource, enabled bool) *Manager {

	return &Manager{
		logger:    logger,
		source:    source,
		equipper:  equipper,
		publisher: publisher,
		actions:   actions,
		enabled:   enabled,
		items:     make(map[uint32]Item),
	}
}

// Items returns the number of known favorites.
func (m *Manager) Items() int {
	return len(m.items)
}

// Refresh reads the favorites from the host and publishes them.
func (m *Manager) Refresh() error {
	if !m.enabled {
		return nil
	}

	items, err := m.source.Favorites()
	if err != nil {
		return fmt.Errorf("reading favorites: %w", err)
	}

	m.items = make(map[uint32]Item, len(items))
	records := make([]string, 0, len(items))
	for _, item := range items {
		m.items[item.FormID] = item
		records = append(records, item.Record())
	}

	if err := m.publisher.PublishFavorites(records); err != nil {
		return fmt.Errorf("publishing favorites: %w", err)
	}
	m.logger.Debug("Favorites refreshed", log.Int("items", len(items)))
	return nil
}

// Clear forgets the favorites and publishes an empty list.
func (m *Manager) Clear() error {
	if !m.enabled {
		return nil
	}
	m.items = make(map[uint32]Item)
	if err := m.publisher.PublishFavorites(nil); err != nil {
		return fmt.Errorf("publishing favorites: %w", err)
	}
	return nil
}

// ProcessEquipActions drains all pending equip lines and equips the
// requested items. Malformed lines and unknown items are dropped.
func (m *Manager) ProcessEquipActions() {
	for {
		line, ok := m.actions.PopEquipAction()
		if !ok {
			return
		}
		if !m.enabled {
			continue
		}
		m.process(line)
	}
}

func (m *Manager) process(line string) {
	fields, ok := bridge.ParseEquip(line)
	if !ok {
		m.logger.Debug("Dropping malformed equip line", log.String("line", line))
		return
	}
	action, err := ParseAction(fields)
	if err != nil {
		m.logger.Debug("Dropping equip action", log.Err(err))
		return
	}

	item, ok := m.items[action.FormID]
	if !ok {
		m.logger.Debug("Dropping equip action for unknown item", log.Hex("form_id", action.FormID))
		return
	}
	item.ItemID = action.ItemID
	item.TypeID = action.TypeID

	if err := m.equipper.Equip(item, action.Hand); err != nil {
		m.logger.Warn("Equipping item failed",
			log.String("item", item.Name),
			log.Err(err))
		return
	}
	m.logger.Info("Item equipped",
		log.String("item", item.Name),
		log.Stringer("hand", action.Hand))
}
