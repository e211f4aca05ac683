package handler

import (
	"errors"

	"github.com/quarryline/netsync/internal/replica"
	"github.com/quarryline/netsync/internal/session"
	"github.com/quarryline/netsync/internal/world"
	"go.uber.org/zap"
)

var (
	ErrNotItem     = errors.New("object has no item behaviour")
	ErrNoInventory = errors.New("player has no inventory")
	ErrItemHeld    = errors.New("item already held")
	ErrNoSpace     = errors.New("no space in slot")
)

// RequestPickUp asks the host to move item into slot of this client's inventory.
func RequestPickUp(c *session.Client, item *replica.Object, slot int32) error {
	it, ok := replica.Find[*world.Item](item)
	if !ok {
		return ErrNotItem
	}
	m := &PickUpItemRequest{Slot: slot}
	m.Object = item.NetID
	m.Component = int32(it.Index())
	return c.Send(c.HostPeer(), m)
}

// PickUp performs a pick-up on the host and tells every peer. Business
// rejections return an error and change nothing.
func PickUp(s *session.Context, player, item *replica.Object, slot int32) error {
	it, ok := replica.Find[*world.Item](item)
	if !ok {
		return ErrNotItem
	}
	inv, ok := replica.Find[*world.Inventory](player)
	if !ok {
		return ErrNoInventory
	}
	if it.Held() {
		return ErrItemHeld
	}
	if !inv.HasSpace(slot) {
		return ErrNoSpace
	}

	if err := inv.Put(slot, item.NetID); err != nil {
		return err
	}
	it.GiveTo(player.NetID, slot)

	m := &PickUpItemSuccess{Player: player.NetID, Slot: slot}
	m.Object = item.NetID
	m.Component = int32(it.Index())
	return s.Broadcast(m)
}

// HandlePickUpRequest processes PickUpItemRequest on the host.
func HandlePickUpRequest(s *session.Context, in *session.Inbound, deps *Deps) {
	m := in.Msg.(*PickUpItemRequest)
	log := in.From.Log()

	player := in.From.Player
	if player == nil || !player.Registered() {
		log.Info("pick-up without a player", zap.Int32("item", m.Object))
		return
	}
	if _, ok := in.Behaviour.(*world.Item); !ok {
		log.Warn("pick-up targets a non-item component",
			zap.Int32("net_id", m.Object),
			zap.Int32("component", m.Component),
		)
		return
	}

	err := PickUp(s, player, in.Object, m.Slot)
	switch {
	case err == nil:
		log.Debug("item picked up", zap.Int32("item", m.Object), zap.Int32("slot", m.Slot))
	case errors.Is(err, ErrItemHeld), errors.Is(err, ErrNoSpace), errors.Is(err, ErrNoInventory):
		log.Info("pick-up rejected", zap.Int32("item", m.Object), zap.Int32("slot", m.Slot), zap.Error(err))
	default:
		log.Error("pick-up failed", zap.Int32("item", m.Object), zap.Error(err))
	}
}

// HandlePickUpSuccess applies a host-confirmed pick-up on a client.
func HandlePickUpSuccess(s *session.Context, in *session.Inbound, deps *Deps) {
	m := in.Msg.(*PickUpItemSuccess)
	it, ok := in.Behaviour.(*world.Item)
	if !ok {
		deps.Log.Warn("pick-up success targets a non-item component",
			zap.Int32("net_id", m.Object),
			zap.Int32("component", m.Component),
		)
		return
	}
	it.GiveTo(m.Player, m.Slot)
	deps.Log.Debug("pick-up confirmed", zap.Int32("item", m.Object), zap.Int32("player", m.Player), zap.Int32("slot", m.Slot))

	player, ok := s.Objects().Lookup(m.Player)
	if !ok {
		deps.Log.Debug("pick-up by unknown player", zap.Int32("player", m.Player))
		return
	}
	inv, ok := replica.Find[*world.Inventory](player)
	if !ok {
		return
	}
	if id, _ := inv.Slot(m.Slot); id == m.Object {
		return
	}
	if err := inv.Put(m.Slot, m.Object); err != nil {
		deps.Log.Warn("pick-up success does not fit local inventory",
			zap.Int32("player", m.Player),
			zap.Int32("slot", m.Slot),
			zap.Error(err),
		)
	}
}
