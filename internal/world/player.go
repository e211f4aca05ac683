package world

import (
	"github.com/quarryline/netsync/internal/replica"
)

// MaxHealth is the health a freshly spawned player starts with.
const MaxHealth = 100

// Player is the replicated avatar of one participant. Name and health are
// host-authoritative; position belongs to the owner and is predicted locally.
type Player struct {
	replica.Base
	Name   *replica.NetVar[string]
	Health *replica.NetVar[int32]
	X      *replica.NetVar[float32]
	Y      *replica.NetVar[float32]
}

func NewPlayer() replica.Behaviour {
	p := &Player{
		Name:   replica.String("name", ""),
		Health: replica.Int32("health", MaxHealth),
		X:      replica.Float32("x", 0).OwnerWritable(),
		Y:      replica.Float32("y", 0).OwnerWritable(),
	}
	p.Track(p.Name, p.Health, p.X, p.Y)
	return p
}

// Dead reports whether health has reached zero.
func (p *Player) Dead() bool { return p.Health.Get() <= 0 }

// Damage lowers health, clamped at zero. Only the host's write replicates.
func (p *Player) Damage(n int32) {
	hp := p.Health.Get() - n
	if hp < 0 {
		hp = 0
	}
	p.Health.Set(hp)
}

// Heal raises health, clamped at MaxHealth.
func (p *Player) Heal(n int32) {
	hp := p.Health.Get() + n
	if hp > MaxHealth {
		hp = MaxHealth
	}
	p.Health.Set(hp)
}

// MoveTo sets the position. On the owner this is replicated; elsewhere it is
// a local prediction overwritten by the next update.
func (p *Player) MoveTo(x, y float32) {
	p.X.Set(x)
	p.Y.Set(y)
}
