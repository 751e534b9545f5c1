package openrouteservice

// orsRequest represents the route request body.
type orsRequest struct {
	Coordinates [][]float64 `json:"coordinates"`
	AvoidTolls  bool        `json:"avoidTolls"`
	Profile     string      `json:"profile"`
}

// orsErrorResponse represents an error response from ORS.
type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Info string `json:"info,omitempty"`
}

// ORS error codes for error mapping.
const (
	orsErrorCodePointNotFound = 2010 // Routable point not found near a coordinate
	orsErrorCodeNotFound      = 2009 // Route not found
)
