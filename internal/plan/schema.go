package plan

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// polygonSchema describes the polygon payload accepted from clients: a list
// of at least three finite [x, y] pairs.
const polygonSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 3,
  "items": {
    "type": "array",
    "minItems": 2,
    "maxItems": 2,
    "items": {"type": "number"}
  }
}`

var polygonLoader = gojsonschema.NewStringLoader(polygonSchema)

// ValidatePolygonJSON checks raw polygon JSON against the polygon schema.
// It does not check geometry; use geometry.Validate for that.
func ValidatePolygonJSON(raw []byte) error {
	result, err := gojsonschema.Validate(polygonLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate polygon: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("polygon does not match schema: %s", strings.Join(msgs, "; "))
}
