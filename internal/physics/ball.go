package physics

// Rack layout for 8-ball: 0 is the cue ball, 1-7 solids, 8 the money ball, 9-15 stripes.
const (
	CueBall   = 0
	MoneyBall = 8
	NumBalls  = 16
)

// Kind classifies a ball by its rack number.
type Kind uint8

const (
	KindCue Kind = iota
	KindSolid
	KindStripe
	KindMoney
)

func (k Kind) String() string {
	switch k {
	case KindCue:
		return "cue"
	case KindSolid:
		return "solid"
	case KindStripe:
		return "stripe"
	case KindMoney:
		return "money"
	}
	return "unknown"
}

// KindOf returns the kind for a rack number.
func KindOf(number int) Kind {
	switch {
	case number == CueBall:
		return KindCue
	case number == MoneyBall:
		return KindMoney
	case number >= 1 && number <= 7:
		return KindSolid
	default:
		return KindStripe
	}
}

// PocketState only moves forward: none → falling → collected. A cue ball
// put back in play starts over at none.
type PocketState uint8

const (
	PocketNone PocketState = iota
	PocketFalling
	PocketCollected
)

func (s PocketState) String() string {
	switch s {
	case PocketNone:
		return "none"
	case PocketFalling:
		return "falling"
	case PocketCollected:
		return "collected"
	}
	return "unknown"
}

// Ball is the full simulation state of one disc. Every field is always set;
// a ball with no spin simply carries the zero vector.
type Ball struct {
	Number   int         `json:"number"`
	Kind     Kind        `json:"kind"`
	Pos      Vec2        `json:"pos"`
	Vel      Vec2        `json:"vel"`
	Spin     Vec2        `json:"spin"` // X = side (english), Y = vertical (+follow / -draw)
	Active   bool        `json:"active"`
	Pocket   PocketState `json:"pocket"`
	PocketID int         `json:"pocket_id"` // -1 until collected
	Traveled float64     `json:"traveled"`
}

// NewBall returns an active, resting ball at pos.
func NewBall(number int, pos Vec2) Ball {
	return Ball{
		Number:   number,
		Kind:     KindOf(number),
		Pos:      pos,
		Active:   true,
		PocketID: -1,
	}
}

func (b *Ball) IsCue() bool {
	return b.Kind == KindCue
}

func (b *Ball) Speed() float64 {
	return b.Vel.Len()
}

// advancePocket moves the pocket state forward; it never regresses. The cue
// ball is the one exception: PlaceCue and RespotCue reset it to PocketNone
// when it comes back on the table.
func (b *Ball) advancePocket(to PocketState) bool {
	if to <= b.Pocket {
		return false
	}
	b.Pocket = to
	return true
}

// BallSnapshot is a read-only copy handed to renderers and the network layer.
type BallSnapshot struct {
	Number int         `json:"n" msgpack:"n"`
	X      float64     `json:"x" msgpack:"x"`
	Y      float64     `json:"y" msgpack:"y"`
	VX     float64     `json:"vx" msgpack:"vx"`
	VY     float64     `json:"vy" msgpack:"vy"`
	Active bool        `json:"active" msgpack:"a"`
	Pocket PocketState `json:"pocket" msgpack:"p"`
}

func (b *Ball) Snapshot() BallSnapshot {
	return BallSnapshot{
		Number: b.Number,
		X:      b.Pos[0],
		Y:      b.Pos[1],
		VX:     b.Vel[0],
		VY:     b.Vel[1],
		Active: b.Active,
		Pocket: b.Pocket,
	}
}
