package world

import (
	"fmt"
	"strconv"

	"github.com/quarryline/netsync/internal/replica"
)

// NoSlot marks an item that is not in any inventory.
const NoSlot int32 = -1

// Item is a pick-up-able object. Holder is the net ID of the player carrying
// it, zero when it lies in the world.
type Item struct {
	replica.Base
	Kind       *replica.NetVar[string]
	Holder     *replica.NetVar[int32]
	HolderSlot *replica.NetVar[int32]
}

func NewItem() replica.Behaviour {
	it := &Item{
		Kind:       replica.String("kind", ""),
		Holder:     replica.Int32("holder", 0),
		HolderSlot: replica.Int32("holder_slot", NoSlot),
	}
	it.Track(it.Kind, it.Holder, it.HolderSlot)
	return it
}

// Held reports whether any player carries the item.
func (it *Item) Held() bool {
	return it.Holder.Get() != 0 || it.HolderSlot.Get() != NoSlot
}

// GiveTo records the carrying player and slot.
func (it *Item) GiveTo(player, slot int32) {
	it.Holder.Set(player)
	it.HolderSlot.Set(slot)
}

// Drop clears the holder fields.
func (it *Item) Drop() {
	it.Holder.Set(0)
	it.HolderSlot.Set(NoSlot)
}

// Configure applies scene manifest properties.
func (it *Item) Configure(props map[string]string) error {
	for k, v := range props {
		switch k {
		case "kind":
			it.Kind.Set(v)
		default:
			return fmt.Errorf("item: unknown property %q", k)
		}
	}
	return nil
}

// Switch is a two-state scene fixture (lamp, lever, door). Changes are
// reported to the named "switch_changed" callback.
type Switch struct {
	replica.Base
	On *replica.NetVar[bool]
}

func NewSwitch() replica.Behaviour {
	s := &Switch{On: replica.Bool("on", false).Callback("switch_changed")}
	s.Track(s.On)
	return s
}

func (s *Switch) Toggle() { s.On.Set(!s.On.Get()) }

func (s *Switch) Configure(props map[string]string) error {
	for k, v := range props {
		switch k {
		case "on":
			on, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("switch: property on: %w", err)
			}
			s.On.Set(on)
		default:
			return fmt.Errorf("switch: unknown property %q", k)
		}
	}
	return nil
}

// Configurable is implemented by behaviours that accept manifest properties.
type Configurable interface {
	Configure(props map[string]string) error
}

// Factories returns the behaviour constructors known to catalogs.
func Factories() map[string]replica.BehaviourFactory {
	return map[string]replica.BehaviourFactory{
		"player":    NewPlayer,
		"inventory": NewInventory,
		"item":      NewItem,
		"switch":    NewSwitch,
	}
}
