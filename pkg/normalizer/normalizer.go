package normalizer

import (
	"VisionProxy/internal/entity"
	"VisionProxy/pkg/provider"
	"bytes"
	"errors"
	"fmt"
	"math"

	jsoniter "github.com/json-iterator/go"
)

const DefaultConfidence = 0.95

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatError is returned when a provider payload cannot be read as a
// detections container at all. Raw holds the payload exactly as received.
type FormatError struct {
	Provider string
	Raw      string
	Err      error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unexpected %s response format: %v", e.Provider, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

type INormalizer interface {
	Normalize(providerName string, payload []byte) (*entity.Analysis, error)
}

type normalizer struct {
	defaultConfidence float64
}

func New(defaultConfidence float64) INormalizer {
	return &normalizer{
		defaultConfidence: clamp(defaultConfidence),
	}
}

func (n *normalizer) Normalize(providerName string, payload []byte) (*entity.Analysis, error) {
	analysis := &entity.Analysis{
		Provider: providerName,
		Objects:  []entity.Detection{},
		Labels:   []entity.Label{},
	}

	var err error
	if providerName == provider.Google {
		err = n.fromAnnotation(payload, analysis)
	} else {
		err = n.fromModelText(payload, analysis)
	}
	if err != nil {
		return nil, &FormatError{
			Provider: providerName,
			Raw:      string(payload),
			Err:      err,
		}
	}

	return analysis, nil
}

type annotationPayload struct {
	LocalizedObjectAnnotations []jsoniter.RawMessage `json:"localizedObjectAnnotations"`
	LabelAnnotations           []struct {
		Mid         string  `json:"mid"`
		Description string  `json:"description"`
		Score       float64 `json:"score"`
	} `json:"labelAnnotations"`
}

type annotationObject struct {
	Name string `json:"name"`
	// Score is omitted on the wire when it is zero, both by the Vision REST
	// API and by the client's re-marshal, so a real 0 reads as absent and
	// takes the default confidence.
	Score        *float64 `json:"score"`
	BoundingPoly *struct {
		NormalizedVertices []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"normalizedVertices"`
	} `json:"boundingPoly"`
}

func (n *normalizer) fromAnnotation(payload []byte, analysis *entity.Analysis) error {
	var doc annotationPayload
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}

	for _, raw := range doc.LocalizedObjectAnnotations {
		var obj annotationObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			analysis.Dropped++
			continue
		}
		if obj.BoundingPoly == nil || len(obj.BoundingPoly.NormalizedVertices) < 4 {
			analysis.Dropped++
			continue
		}

		vertices := obj.BoundingPoly.NormalizedVertices
		box := entity.Box{
			YMin: vertices[0].Y, XMin: vertices[0].X,
			YMax: vertices[0].Y, XMax: vertices[0].X,
		}
		for _, v := range vertices[1:] {
			box.XMin = math.Min(box.XMin, v.X)
			box.XMax = math.Max(box.XMax, v.X)
			box.YMin = math.Min(box.YMin, v.Y)
			box.YMax = math.Max(box.YMax, v.Y)
		}

		analysis.Objects = append(analysis.Objects, entity.Detection{
			Name:       obj.Name,
			Confidence: n.confidence(obj.Score),
			Box:        NormalizeBox(box).Polygon(),
		})
	}

	for _, l := range doc.LabelAnnotations {
		analysis.Labels = append(analysis.Labels, entity.Label{
			Description: l.Description,
			Score:       clamp(l.Score),
			Mid:         l.Mid,
		})
	}

	return nil
}

type modelPayload struct {
	Objects []jsoniter.RawMessage `json:"objects"`
	Labels  []jsoniter.RawMessage `json:"labels"`
}

type modelObject struct {
	Name       string              `json:"name"`
	Confidence *float64            `json:"confidence"`
	Box        jsoniter.RawMessage `json:"box"`
	Box2D      jsoniter.RawMessage `json:"box_2d"`
}

func (n *normalizer) fromModelText(payload []byte, analysis *entity.Analysis) error {
	body := stripCodeFence(payload)
	if len(body) == 0 || body[0] != '{' {
		return errors.New("model reply is not a JSON object")
	}

	var doc modelPayload
	if err := json.Unmarshal(body, &doc); err != nil {
		return err
	}

	for _, raw := range doc.Objects {
		var obj modelObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			analysis.Dropped++
			continue
		}

		field := obj.Box
		if isAbsent(field) {
			field = obj.Box2D
		}
		box, ok := parseBox(field)
		if !ok {
			analysis.Dropped++
			continue
		}

		analysis.Objects = append(analysis.Objects, entity.Detection{
			Name:       obj.Name,
			Confidence: n.confidence(obj.Confidence),
			Box:        NormalizeBox(box).Polygon(),
		})
	}

	for _, raw := range doc.Labels {
		if label, ok := parseLabel(raw); ok {
			analysis.Labels = append(analysis.Labels, label)
		}
	}

	return nil
}

func (n *normalizer) confidence(v *float64) float64 {
	if v == nil {
		return n.defaultConfidence
	}
	return clamp(*v)
}

// NormalizeBox rescales a box that looks like it is on a 0-1000 grid and clamps
// every component into [0,1].
//
// The rescale is a guess: any component above 1 is taken to mean the whole box
// is on the 0-1000 scale. A box in pixel units is indistinguishable from one on
// that grid and will be misread. Providers do not tell us which they used.
func NormalizeBox(b entity.Box) entity.Box {
	if b.YMin > 1 || b.XMin > 1 || b.YMax > 1 || b.XMax > 1 {
		b.YMin /= 1000
		b.XMin /= 1000
		b.YMax /= 1000
		b.XMax /= 1000
	}

	return entity.Box{
		YMin: clamp(b.YMin),
		XMin: clamp(b.XMin),
		YMax: clamp(b.YMax),
		XMax: clamp(b.XMax),
	}
}

// Renormalize runs a canonical detection through the normalization again. It is
// a no-op for anything Normalize produced.
func Renormalize(d entity.Detection) entity.Detection {
	if len(d.Box) != 4 {
		return d
	}

	box := entity.Box{
		YMin: d.Box[0].Y,
		XMin: d.Box[0].X,
		YMax: d.Box[2].Y,
		XMax: d.Box[2].X,
	}

	return entity.Detection{
		Name:       d.Name,
		Confidence: clamp(d.Confidence),
		Box:        NormalizeBox(box).Polygon(),
	}
}

// BoxFromSlice reads [ymin, xmin, ymax, xmax].
func BoxFromSlice(v []float64) (entity.Box, bool) {
	if len(v) != 4 {
		return entity.Box{}, false
	}
	return entity.Box{YMin: v[0], XMin: v[1], YMax: v[2], XMax: v[3]}, true
}

func parseBox(raw jsoniter.RawMessage) (entity.Box, bool) {
	if isAbsent(raw) {
		return entity.Box{}, false
	}
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return entity.Box{}, false
	}
	return BoxFromSlice(values)
}

func parseLabel(raw jsoniter.RawMessage) (entity.Label, bool) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if name == "" {
			return entity.Label{}, false
		}
		return entity.Label{Description: name}, true
	}

	var obj struct {
		Description string  `json:"description"`
		Name        string  `json:"name"`
		Score       float64 `json:"score"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return entity.Label{}, false
	}

	label := entity.Label{Description: obj.Description, Score: clamp(obj.Score)}
	if label.Description == "" {
		label.Description = obj.Name
	}
	if label.Score == 0 {
		label.Score = clamp(obj.Confidence)
	}
	return label, label.Description != ""
}

func isAbsent(raw jsoniter.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// stripCodeFence removes one markdown fence around a model reply, e.g.
// ```json\n{...}\n```. Other surrounding text is left alone.
func stripCodeFence(payload []byte) []byte {
	body := bytes.TrimSpace(payload)
	if !bytes.HasPrefix(body, []byte("```")) {
		return body
	}

	newline := bytes.IndexByte(body, '\n')
	if newline == -1 {
		return body
	}
	body = body[newline+1:]
	body = bytes.TrimSpace(body)
	body = bytes.TrimSuffix(body, []byte("```"))

	return bytes.TrimSpace(body)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
