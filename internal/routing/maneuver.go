package routing

import (
	"strings"
)

// ORS instruction type codes.
const (
	orsTypeLeft        = 0
	orsTypeRight       = 1
	orsTypeSharpLeft   = 2
	orsTypeSharpRight  = 3
	orsTypeSlightLeft  = 4
	orsTypeSlightRight = 5
	orsTypeStraight    = 6
	orsTypeRoundabout  = 7
	orsTypeExitRound   = 8
	orsTypeUTurn       = 9
	orsTypeGoal        = 10
	orsTypeDepart      = 11
	orsTypeKeepLeft    = 12
	orsTypeKeepRight   = 13
)

// ManeuverFromORSType maps an OpenRouteService instruction type onto a Maneuver.
func ManeuverFromORSType(code int) Maneuver {
	switch code {
	case orsTypeLeft:
		return ManeuverTurnLeft
	case orsTypeRight:
		return ManeuverTurnRight
	case orsTypeSharpLeft:
		return ManeuverSharpLeft
	case orsTypeSharpRight:
		return ManeuverSharpRight
	case orsTypeSlightLeft:
		return ManeuverSlightLeft
	case orsTypeSlightRight:
		return ManeuverSlightRight
	case orsTypeStraight:
		return ManeuverStraight
	case orsTypeRoundabout, orsTypeExitRound:
		return ManeuverRoundabout
	case orsTypeUTurn:
		return ManeuverUTurn
	case orsTypeGoal:
		return ManeuverArrive
	case orsTypeDepart:
		return ManeuverDepart
	case orsTypeKeepLeft:
		return ManeuverForkLeft
	case orsTypeKeepRight:
		return ManeuverForkRight
	default:
		return ManeuverContinue
	}
}

// ManeuverFromOSRM maps an OSRM maneuver type and modifier onto a Maneuver.
func ManeuverFromOSRM(kind, modifier string) Maneuver {
	modifier = strings.ToLower(strings.TrimSpace(modifier))

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "depart":
		return ManeuverDepart
	case "arrive":
		return ManeuverArrive
	case "roundabout", "rotary", "roundabout turn", "exit roundabout", "exit rotary":
		return ManeuverRoundabout
	case "merge":
		return ManeuverMerge
	case "fork":
		if strings.Contains(modifier, "left") {
			return ManeuverForkLeft
		}
		return ManeuverForkRight
	case "on ramp", "off ramp":
		if strings.Contains(modifier, "left") {
			return ManeuverRampLeft
		}
		return ManeuverRampRight
	case "continue", "new name", "notification":
		if modifier == "uturn" {
			return ManeuverUTurn
		}
		if modifier == "" || modifier == "straight" {
			return ManeuverContinue
		}
	}

	switch modifier {
	case "left":
		return ManeuverTurnLeft
	case "right":
		return ManeuverTurnRight
	case "slight left":
		return ManeuverSlightLeft
	case "slight right":
		return ManeuverSlightRight
	case "sharp left":
		return ManeuverSharpLeft
	case "sharp right":
		return ManeuverSharpRight
	case "uturn":
		return ManeuverUTurn
	case "straight":
		return ManeuverStraight
	default:
		return ManeuverContinue
	}
}

var maneuverPhrases = map[Maneuver]string{
	ManeuverDepart:      "Head out",
	ManeuverTurnLeft:    "Turn left",
	ManeuverTurnRight:   "Turn right",
	ManeuverStraight:    "Go straight",
	ManeuverUTurn:       "Make a U-turn",
	ManeuverRoundabout:  "Enter the roundabout",
	ManeuverMerge:       "Merge",
	ManeuverForkLeft:    "Keep left",
	ManeuverForkRight:   "Keep right",
	ManeuverRampLeft:    "Take the ramp on the left",
	ManeuverRampRight:   "Take the ramp on the right",
	ManeuverSlightLeft:  "Bear left",
	ManeuverSlightRight: "Bear right",
	ManeuverSharpLeft:   "Turn sharp left",
	ManeuverSharpRight:  "Turn sharp right",
	ManeuverContinue:    "Continue",
	ManeuverArrive:      "You have arrived at your destination",
}

// Phrase returns the spoken form of a maneuver without a street name.
func (m Maneuver) Phrase() string {
	if p, ok := maneuverPhrases[m]; ok {
		return p
	}
	return maneuverPhrases[ManeuverContinue]
}

// SynthesizeInstruction builds instruction text for backends that send only
// a maneuver and a street name.
func SynthesizeInstruction(m Maneuver, name string) string {
	phrase := m.Phrase()
	name = strings.TrimSpace(name)
	if name == "" || m == ManeuverArrive {
		return phrase
	}
	if m == ManeuverDepart {
		return phrase + " on " + name
	}
	return phrase + " onto " + name
}
