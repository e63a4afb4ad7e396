package plan

import "github.com/studiospace/plankit/internal/typeid"

// NewSampleFloor returns a small two-room floor with a corridor, useful for
// local development and as a seed when a store has no floors yet.
func NewSampleFloor(floorID string) *Floor {
	if floorID == "" {
		floorID = typeid.NewFloorID()
	}
	return &Floor{
		ID:     floorID,
		Name:   "Ground floor",
		Width:  1200,
		Height: 800,
		Spaces: []Space{
			{
				ID:         typeid.NewSpaceID(),
				Label:      "Studio A",
				Department: "Design",
				Vertices:   [][2]float64{{40, 40}, {560, 40}, {560, 360}, {40, 360}},
			},
			{
				ID:         typeid.NewSpaceID(),
				Label:      "Studio B",
				Department: "Engineering",
				Vertices:   [][2]float64{{640, 40}, {1160, 40}, {1160, 360}, {640, 360}},
			},
			{
				ID:       typeid.NewSpaceID(),
				Label:    "Corridor",
				Vertices: [][2]float64{{40, 400}, {1160, 400}, {1160, 480}, {40, 480}},
			},
			{
				ID:         typeid.NewSpaceID(),
				Label:      "Lounge",
				Department: "Shared",
				Vertices:   [][2]float64{{40, 520}, {600, 520}, {600, 760}, {320, 760}, {320, 640}, {40, 640}},
			},
		},
	}
}
