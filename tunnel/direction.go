// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

// Direction names one side of a tunnel. The naming is arbitrary: Left is
// not "client" and Right is not "server".
type Direction int

const (
	Left Direction = iota
	Right
)

// directions lists both sides in the order the tunnel starts its pumps.
var directions = [2]Direction{Left, Right}

// Other returns the opposite side.
func (d Direction) Other() Direction {
	return d ^ 1
}

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "invalid"
	}
}
