package types

import "github.com/DoyleJ11/sensus-peek/internal/screen"

/*
	Display -> engine
	  touchstart | touchmove | touchend | touchcancel
	    touches: [{y: number}]   every contact still on the surface
	    ts:      number          client clock in ms, used for tap timing

	Engine -> display
	  Frame:  version, frame {revealed, hero, spectator, note, screen,
	          screenshot_url, navigate, vibrate}
	  Error:  error
*/

type Point struct {
	Y float64 `json:"y"`
}

type ClientMessage struct {
	Type    string  `json:"type"`
	Touches []Point `json:"touches,omitempty"`
	TS      int64   `json:"ts,omitempty"`
}

type ServerMessage struct {
	Type    string        `json:"type"` // "Frame" | "Error"
	Version int           `json:"version,omitempty"`
	Frame   *screen.Frame `json:"frame,omitempty"`
	Error   string        `json:"error,omitempty"`
}
