package protocol

import (
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
)

// ServerWorldUpdate 字段号
const (
	fieldFrame protowire.Number = iota + 1
	fieldRevision
	fieldPlayers
	fieldMonsters
	fieldMissiles
	fieldRemoved
	fieldWalks
	fieldLooks
	fieldCasts
	fieldPlayerSpawns
	fieldMonsterSpawns
	fieldDespawns
)

func appendWorldUpdate(b []byte, u *netcode.ServerWorldUpdate) []byte {
	b = appendUint(b, fieldFrame, uint64(u.Frame))
	b = appendUint(b, fieldRevision, uint64(u.Revision))
	for id, p := range u.Players.All() {
		b = appendMessage(b, fieldPlayers, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(id))
			b = appendVec(b, 2, p.Position)
			b = appendVec(b, 3, p.Velocity)
			b = appendVec(b, 4, p.WalkDirection)
			b = appendVec(b, 5, p.LookDirection)
			b = appendInt(b, 6, p.Health)
			b = appendBool(b, 7, p.Dead)
			return appendInt(b, 8, p.CastCooldown)
		})
	}
	for id, m := range u.Monsters.All() {
		b = appendMessage(b, fieldMonsters, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(id))
			b = appendUint(b, 2, uint64(m.Kind))
			b = appendVec(b, 3, m.Position)
			b = appendVec(b, 4, m.Velocity)
			b = appendInt(b, 5, m.Health)
			b = appendBool(b, 6, m.Dead)
			return appendUint(b, 7, uint64(m.Target))
		})
	}
	for id, m := range u.Missiles.All() {
		b = appendMessage(b, fieldMissiles, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(id))
			b = appendUint(b, 2, uint64(m.Owner))
			b = appendVec(b, 3, m.Position)
			b = appendVec(b, 4, m.Velocity)
			b = appendInt(b, 5, m.TTL)
			return appendInt(b, 6, m.Damage)
		})
	}
	b = appendPacked(b, fieldRemoved, netIDs(u.Removed))

	for id, w := range u.Actions.Walk.All() {
		b = appendMessage(b, fieldWalks, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(id))
			b = appendUint(b, 2, w.ID)
			b = appendUint(b, 3, uint64(w.OriginFrame))
			return appendVec(b, 4, w.Direction)
		})
	}
	for id, l := range u.Actions.Look.All() {
		b = appendMessage(b, fieldLooks, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(id))
			return appendVec(b, 2, l.Direction)
		})
	}
	for id, c := range u.Actions.Cast.All() {
		b = appendMessage(b, fieldCasts, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(id))
			b = appendUint(b, 2, c.ID)
			b = appendUint(b, 3, c.ClientID)
			b = appendUint(b, 4, uint64(c.MissileID))
			return appendVec(b, 5, c.Target)
		})
	}
	for id, s := range u.Spawns.Players.All() {
		b = appendMessage(b, fieldPlayerSpawns, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(id))
			return appendVec(b, 2, s.Position)
		})
	}
	for id, s := range u.Spawns.Monsters.All() {
		b = appendMessage(b, fieldMonsterSpawns, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(id))
			b = appendUint(b, 2, uint64(s.Kind))
			return appendVec(b, 3, s.Position)
		})
	}
	return appendPacked(b, fieldDespawns, netIDs(u.Spawns.Despawns))
}

func netIDs(ids []core.EntityNetID) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

func decodeWorldUpdate(b []byte) (netcode.ServerWorldUpdate, error) {
	var (
		removed, despawns []uint64
		frame             netcode.FrameNumber
	)
	u := netcode.NewServerWorldUpdate(0)
	err := walk(b, func(f *field) error {
		switch f.num {
		case fieldFrame:
			frame = netcode.FrameNumber(f.uint64())
		case fieldRevision:
			u.Revision = netcode.FrameNumber(f.uint64())
		case fieldPlayers:
			var p core.Player
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					p.NetID = core.EntityNetID(f.uint32())
				case 2:
					p.Position, err = f.vec()
				case 3:
					p.Velocity, err = f.vec()
				case 4:
					p.WalkDirection, err = f.vec()
				case 5:
					p.LookDirection, err = f.vec()
				case 6:
					p.Health = f.int32()
				case 7:
					p.Dead = f.bool()
				case 8:
					p.CastCooldown = f.int32()
				}
				return err
			})
			if err != nil {
				return err
			}
			u.Players.Put(p.NetID, p)
		case fieldMonsters:
			var (
				id core.EntityNetID
				m  netcode.MonsterState
			)
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					id = core.EntityNetID(f.uint32())
				case 2:
					m.Kind = core.MonsterKind(f.uint64())
				case 3:
					m.Position, err = f.vec()
				case 4:
					m.Velocity, err = f.vec()
				case 5:
					m.Health = f.int32()
				case 6:
					m.Dead = f.bool()
				case 7:
					m.Target = core.EntityNetID(f.uint32())
				}
				return err
			})
			if err != nil {
				return err
			}
			u.Monsters.Put(id, m)
		case fieldMissiles:
			var m core.Missile
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					m.NetID = core.EntityNetID(f.uint32())
				case 2:
					m.Owner = core.EntityNetID(f.uint32())
				case 3:
					m.Position, err = f.vec()
				case 4:
					m.Velocity, err = f.vec()
				case 5:
					m.TTL = f.int32()
				case 6:
					m.Damage = f.int32()
				}
				return err
			})
			if err != nil {
				return err
			}
			u.Missiles.Put(m.NetID, m)
		case fieldRemoved:
			removed = f.packed(removed)
		case fieldWalks:
			var (
				id core.EntityNetID
				w  netcode.WalkAction
			)
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					id = core.EntityNetID(f.uint32())
				case 2:
					w.ID = f.uint64()
				case 3:
					w.OriginFrame = netcode.FrameNumber(f.uint64())
				case 4:
					w.Direction, err = f.vec()
				}
				return err
			})
			if err != nil {
				return err
			}
			u.Actions.Walk.Put(id, w)
		case fieldLooks:
			var (
				id core.EntityNetID
				l  netcode.LookAction
			)
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					id = core.EntityNetID(f.uint32())
				case 2:
					l.Direction, err = f.vec()
				}
				return err
			})
			if err != nil {
				return err
			}
			u.Actions.Look.Put(id, l)
		case fieldCasts:
			var (
				id core.EntityNetID
				c  netcode.CastAction
			)
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					id = core.EntityNetID(f.uint32())
				case 2:
					c.ID = f.uint64()
				case 3:
					c.ClientID = f.uint64()
				case 4:
					c.MissileID = core.EntityNetID(f.uint32())
				case 5:
					c.Target, err = f.vec()
				}
				return err
			})
			if err != nil {
				return err
			}
			u.Actions.Cast.Put(id, c)
		case fieldPlayerSpawns:
			var (
				id core.EntityNetID
				s  netcode.PlayerSpawn
			)
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					id = core.EntityNetID(f.uint32())
				case 2:
					s.Position, err = f.vec()
				}
				return err
			})
			if err != nil {
				return err
			}
			u.Spawns.Players.Put(id, s)
		case fieldMonsterSpawns:
			var (
				id core.EntityNetID
				s  netcode.MonsterSpawn
			)
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					id = core.EntityNetID(f.uint32())
				case 2:
					s.Kind = core.MonsterKind(f.uint64())
				case 3:
					s.Position, err = f.vec()
				}
				return err
			})
			if err != nil {
				return err
			}
			u.Spawns.Monsters.Put(id, s)
		case fieldDespawns:
			despawns = f.packed(despawns)
		}
		return nil
	})

	u.Frame = frame
	u.Actions.Frame = frame
	u.Spawns.Frame = frame
	for _, id := range removed {
		u.Removed = append(u.Removed, core.EntityNetID(id))
	}
	for _, id := range despawns {
		u.Spawns.Despawn(core.EntityNetID(id))
	}
	u.Removed = sortedUnique(u.Removed)
	return u, err
}

func sortedUnique(ids []core.EntityNetID) []core.EntityNetID {
	slices.Sort(ids)
	return slices.Compact(ids)
}
