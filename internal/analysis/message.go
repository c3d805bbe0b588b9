package analysis

import "encoding/json"

// ControlMessage is one control frame received over a stream session
// (spec.md §6.2). All keys are optional and applied in the fixed order
// method, window_size, score_threshold, then the legacy threshold
// aliases.
type ControlMessage struct {
	Method         *string  `json:"method"`
	WindowSize     *int     `json:"window_size"`
	ScoreThreshold *float64 `json:"score_threshold"`

	// Legacy aliases: each sets the threshold iff the (possibly
	// just-updated) current method matches the alias's own method.
	FFT    *float64 `json:"FFT"`
	ZScore *float64 `json:"Z_score"`
	LOF    *float64 `json:"LOF"`
}

// ParseControlMessage decodes a raw control frame. A JSON syntax error or
// type mismatch is reported as MalformedControlFrame-class error by the
// caller; ParseControlMessage itself just surfaces the decode error.
func ParseControlMessage(raw []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
