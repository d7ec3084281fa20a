package genotype

import "fmt"

// Direction is one of the four ordinal moves available to the walker.
type Direction byte

const (
	North Direction = 'N'
	East  Direction = 'E'
	West  Direction = 'W'
	South Direction = 'S'
)

// Directions lists moves in observation order.
var Directions = [4]Direction{North, East, West, South}

func (d Direction) String() string {
	return string(d)
}

func (d Direction) Valid() bool {
	switch d {
	case North, East, West, South:
		return true
	default:
		return false
	}
}

// Delta returns the row/column offset of one step in direction d.
func (d Direction) Delta() (int, int) {
	switch d {
	case North:
		return -1, 0
	case East:
		return 0, 1
	case West:
		return 0, -1
	case South:
		return 1, 0
	default:
		return 0, 0
	}
}

func ParseDirection(s string) (Direction, error) {
	if len(s) != 1 || !Direction(s[0]).Valid() {
		return 0, fmt.Errorf("invalid direction %q", s)
	}
	return Direction(s[0]), nil
}

// OpenMarker fills an observation slot whose neighbor is not a wall.
const OpenMarker = 'x'

// Observation encodes which neighbors are walls as four characters in
// North, East, West, South order, e.g. "NxWx" for a north-west corner.
type Observation string

// Observations is the fixed set of surroundings reachable inside an open
// rectangular room. Rule tables are defined over exactly this set.
var Observations = [9]Observation{
	"xxxx",
	"Nxxx",
	"NExx",
	"NxWx",
	"xxxS",
	"xExS",
	"xxWS",
	"xExx",
	"xxWx",
}

var observationIndex = func() map[Observation]int {
	out := make(map[Observation]int, len(Observations))
	for i, obs := range Observations {
		out[obs] = i
	}
	return out
}()

// NewObservation builds the pattern for the given blocked flags.
func NewObservation(north, east, west, south bool) Observation {
	var buf [4]byte
	for i, blocked := range [4]bool{north, east, west, south} {
		if blocked {
			buf[i] = byte(Directions[i])
		} else {
			buf[i] = OpenMarker
		}
	}
	return Observation(buf[:])
}

func (o Observation) Valid() bool {
	_, ok := observationIndex[o]
	return ok
}

func (o Observation) Blocked(d Direction) bool {
	for i, candidate := range Directions {
		if candidate == d {
			return i < len(o) && o[i] == byte(d)
		}
	}
	return false
}

// LegalDirections returns the directions not blocked by o, in N, E, W, S order.
func (o Observation) LegalDirections() []Direction {
	out := make([]Direction, 0, len(Directions))
	for _, d := range Directions {
		if !o.Blocked(d) {
			out = append(out, d)
		}
	}
	return out
}

func ParseObservation(s string) (Observation, error) {
	obs := Observation(s)
	if !obs.Valid() {
		return "", fmt.Errorf("invalid observation %q", s)
	}
	return obs, nil
}
