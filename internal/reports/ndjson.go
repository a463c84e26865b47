package reports

import (
	"encoding/json"
	"io"
)

// NDJSONEncoder writes a report as newline-delimited JSON: the execution
// line first, then one line per group.
type NDJSONEncoder struct {
	enc *json.Encoder
}

func NewNDJSONEncoder(w io.Writer) *NDJSONEncoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &NDJSONEncoder{enc: enc}
}

func (e *NDJSONEncoder) Encode(report Report) error {
	if err := e.enc.Encode(report.Execution); err != nil {
		return err
	}
	for _, line := range report.Groups {
		if err := e.enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
