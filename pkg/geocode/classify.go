package geocode

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/resilience"
)

// Response is the raw material of one service answer.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Classify maps a transport error or a service response to exactly one
// outcome. It is pure: the same input always yields the same outcome.
//
// The service answers with a JSON array of GeoJSON features. The first
// feature wins; its geometry.coordinates are [longitude, latitude] and its
// properties.title is the matched address.
func Classify(resp *Response, err error) model.Outcome {
	if err != nil {
		if resilience.IsTimeout(err) {
			return model.Failure(model.StatusTimeout, err.Error())
		}
		return model.Failure(model.StatusCommunicationError, err.Error())
	}
	if resp == nil {
		return model.Failure(model.StatusCommunicationError, "no response")
	}

	if resp.StatusCode != http.StatusOK {
		return model.Failure(model.StatusCommunicationError, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body := bytes.TrimSpace(resp.Body)
	if isHTML(resp.ContentType, body) {
		return model.Failure(model.StatusCommunicationError, "HTML response")
	}
	if len(body) == 0 {
		return model.Failure(model.StatusCommunicationError, "empty response")
	}
	if !gjson.ValidBytes(body) {
		return model.Failure(model.StatusCommunicationError, "invalid JSON")
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return model.Failure(model.StatusCommunicationError, "unexpected JSON shape")
	}

	candidates := doc.Array()
	if len(candidates) == 0 {
		return model.Failure(model.StatusNotFound, "")
	}

	first := candidates[0]
	coords := first.Get("geometry.coordinates").Array()
	if len(coords) < 2 || coords[0].Type != gjson.Number || coords[1].Type != gjson.Number {
		return model.Failure(model.StatusCommunicationError, "malformed candidate: coordinates")
	}
	title := first.Get("properties.title")
	if title.Type != gjson.String {
		return model.Failure(model.StatusCommunicationError, "malformed candidate: title")
	}

	lon, lat := coords[0].Float(), coords[1].Float()
	if !validCoord(lat, 90) || !validCoord(lon, 180) {
		return model.Failure(model.StatusCommunicationError, "malformed candidate: out of range")
	}
	return model.Success(title.String(), lat, lon)
}

func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	return len(body) > 0 && body[0] == '<'
}

func validCoord(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= limit
}
