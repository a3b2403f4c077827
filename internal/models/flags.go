package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlagCode identifies which heuristic produced a flag
type FlagCode string

const (
	FlagRatio FlagCode = "ratio_check"
	FlagBot   FlagCode = "bot_check"
	FlagAFK   FlagCode = "afk_check"
)

// Flag records one heuristic that fired, with the measured value and the
// threshold it crossed.
type Flag struct {
	Code      FlagCode `json:"code"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
}

// String renders the flag with full-precision values.
func (f Flag) String() string {
	v := strconv.FormatFloat(f.Value, 'f', -1, 64)
	th := strconv.FormatFloat(f.Threshold, 'f', -1, 64)
	switch f.Code {
	case FlagRatio:
		return fmt.Sprintf("RatioCheck: token/xp ratio %s exceeds %s", v, th)
	case FlagBot:
		return fmt.Sprintf("BotCheck: movement variance %s below %s", v, th)
	case FlagAFK:
		return fmt.Sprintf("AFKCheck: afk ratio %s exceeds %s", v, th)
	default:
		return fmt.Sprintf("%s: %s (threshold %s)", f.Code, v, th)
	}
}

// Flags is an ordered list of flags, persisted as a JSON array.
type Flags []Flag

// Reason joins the flags into a single human-readable string.
func (fs Flags) Reason() string {
	if len(fs) == 0 {
		return ""
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, "; ")
}

// Value implements driver.Valuer.
func (fs Flags) Value() (driver.Value, error) {
	if fs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(fs)
}

// Scan implements sql.Scanner.
func (fs *Flags) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*fs = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("flags: unsupported scan type %T", src)
	}
	var out Flags
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	if len(out) == 0 {
		out = nil
	}
	*fs = out
	return nil
}
