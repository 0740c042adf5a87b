package entity

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common/errs"
)

// Scale is the bucket width of a price history query.
type Scale string

const (
	ScaleMinute Scale = "minute"
	ScaleHour   Scale = "hour"
	ScaleDay    Scale = "day"
)

func ParseScale(value string) (Scale, error) {
	switch Scale(value) {
	case ScaleMinute, ScaleHour, ScaleDay:
		return Scale(value), nil
	case "":
		return ScaleHour, nil
	}
	return "", errs.WithPublicMessage(errors.Wrapf(errs.InvalidArgument, "invalid scale %q", value), "scale must be one of minute, hour, day")
}

func (s Scale) Duration() time.Duration {
	switch s {
	case ScaleMinute:
		return time.Minute
	case ScaleHour:
		return time.Hour
	case ScaleDay:
		return 24 * time.Hour
	}
	return time.Hour
}
