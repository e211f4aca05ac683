package world

import (
	"errors"
	"strconv"

	"github.com/quarryline/netsync/internal/replica"
)

// InventorySlots is the fixed number of slots on every player.
const InventorySlots = 8

var (
	ErrBadSlot  = errors.New("inventory slot out of range")
	ErrSlotUsed = errors.New("inventory slot occupied")
)

// Inventory holds item net IDs in fixed slots; zero marks an empty slot.
// Slots are host-authoritative.
type Inventory struct {
	replica.Base
	slots [InventorySlots]*replica.NetVar[int32]
}

func NewInventory() replica.Behaviour {
	inv := &Inventory{}
	for i := range inv.slots {
		inv.slots[i] = replica.Int32(slotName(i), 0)
		inv.Track(inv.slots[i])
	}
	return inv
}

func slotName(i int) string {
	return "slot" + strconv.Itoa(i)
}

// Slot returns the item net ID in a slot.
func (inv *Inventory) Slot(slot int32) (int32, bool) {
	if slot < 0 || slot >= InventorySlots {
		return 0, false
	}
	return inv.slots[slot].Get(), true
}

// HasSpace reports whether slot exists and is empty.
func (inv *Inventory) HasSpace(slot int32) bool {
	id, ok := inv.Slot(slot)
	return ok && id == 0
}

// Put stores an item net ID in an empty slot.
func (inv *Inventory) Put(slot, itemID int32) error {
	if slot < 0 || slot >= InventorySlots {
		return ErrBadSlot
	}
	if inv.slots[slot].Get() != 0 {
		return ErrSlotUsed
	}
	inv.slots[slot].Set(itemID)
	return nil
}

// Take empties a slot and returns what it held.
func (inv *Inventory) Take(slot int32) int32 {
	if slot < 0 || slot >= InventorySlots {
		return 0
	}
	id := inv.slots[slot].Get()
	inv.slots[slot].Set(0)
	return id
}

// FindItem returns the slot holding itemID, or -1.
func (inv *Inventory) FindItem(itemID int32) int32 {
	if itemID == 0 {
		return -1
	}
	for i, s := range inv.slots {
		if s.Get() == itemID {
			return int32(i)
		}
	}
	return -1
}

// Size returns the number of occupied slots.
func (inv *Inventory) Size() int {
	n := 0
	for _, s := range inv.slots {
		if s.Get() != 0 {
			n++
		}
	}
	return n
}

// IsFull returns true if no slot is free.
func (inv *Inventory) IsFull() bool {
	return inv.Size() >= InventorySlots
}
