package entity

// Vertex is a point in normalized image coordinates. X grows rightward and Y
// grows downward, both in [0,1].
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is the canonical, provider independent detection record. Box holds
// four corners clockwise from top-left.
type Detection struct {
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Box        []Vertex `json:"box"`
}

type Label struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Mid         string  `json:"mid,omitempty"`
}

type Analysis struct {
	Provider string      `json:"provider"`
	Objects  []Detection `json:"objects"`
	Labels   []Label     `json:"labels"`

	// Dropped counts detections discarded for a missing or malformed box.
	Dropped int `json:"-"`
}

// Box is an axis aligned rectangle in [ymin, xmin, ymax, xmax] order, the
// order vision models emit.
type Box struct {
	YMin float64
	XMin float64
	YMax float64
	XMax float64
}

func (b Box) Polygon() []Vertex {
	return []Vertex{
		{X: b.XMin, Y: b.YMin},
		{X: b.XMax, Y: b.YMin},
		{X: b.XMax, Y: b.YMax},
		{X: b.XMin, Y: b.YMax},
	}
}
