package collab

import "encoding/json"

type Message struct {
	Type     string          `json:"type"`
	FloorID  string          `json:"floorId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Seq      uint64          `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// PointerSamplePayload is a pointer position in screen coordinates.
type PointerSamplePayload struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampMs int64   `json:"timestampMs"`
}

// ViewTransformPayload replaces the session's view transform.
type ViewTransformPayload struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
}

// ViewPanPayload pans by (DX, DY) screen pixels and adds DZ to the scale.
type ViewPanPayload struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
	DZ float64 `json:"dz"`
}

// ViewZoomPayload zooms by Factor around the screen anchor (X, Y).
type ViewZoomPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Factor float64 `json:"factor"`
}

type HitResultPayload struct {
	SpaceID   *string `json:"spaceId"`
	ElapsedMs float64 `json:"elapsedMs"`
	SampleSeq uint64  `json:"sampleSeq"`
	Overrun   bool    `json:"overrun,omitempty"`
}

type FloorUpdatedPayload struct {
	Version uint64 `json:"version"`
	Spaces  int    `json:"spaces"`
}

type PresencePayload struct {
	Cursor       *CursorPos `json:"cursor,omitempty"`
	HoverSpaceID string     `json:"hoverSpaceId,omitempty"`
	DisplayName  string     `json:"displayName,omitempty"`
}

// CursorPos is a plan-space cursor position.
type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PresenceStatePayload struct {
	Presences map[string]*PresencePayload `json:"presences"`
}

type PresenceJoinPayload struct {
	ClientID    string `json:"clientId"`
	DisplayName string `json:"displayName"`
}

type PresenceLeavePayload struct {
	ClientID string `json:"clientId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

const (
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"
	TypeError          = "error"

	// Connection
	TypeWelcome = "welcome"

	// Pointer and view input
	TypePointerSample = "pointer.sample"
	TypeViewTransform = "view.transform"
	TypeViewPan       = "view.pan"
	TypeViewZoom      = "view.zoom"

	// Results
	TypeHitResult    = "hit.result"
	TypeFloorUpdated = "floor.updated"
)
