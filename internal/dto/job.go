package dto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	apperrors "multitalk-worker/pkg/errors"
)

// requiredParams enumerates every key a job payload must carry. Missing any
// of them is a terminal validation failure before any network operation.
var requiredParams = []string{
	"image_url", "audio_url", "video_upload_url",
	"audio_crop_start_time", "audio_crop_end_time",
	"positive_prompt", "negative_prompt",
	"aspect_ratio", "scale_to_length", "scale_to_side",
	"fps", "num_frames",
	"embeds_audio_scale", "embeds_cfg_audio_scale",
	"embeds_multi_audio_type", "embeds_normalize_loudness",
	"steps", "seed", "scheduler",
}

// JobRequest is the strongly-typed job description, built from the inbound
// payload by ParseJobRequest.
type JobRequest struct {
	ImageURL       string
	AudioURL       string
	VideoUploadURL string

	AudioCropStartTime float64
	AudioCropEndTime   float64

	PositivePrompt string
	NegativePrompt string

	AspectRatio   string
	ScaleToSide   string
	ScaleToLength int

	FPS       float64
	NumFrames int

	EmbedsAudioScale        float64
	EmbedsCfgAudioScale     float64
	EmbedsMultiAudioType    string
	EmbedsNormalizeLoudness bool

	Steps     int
	Seed      int64
	Scheduler string
}

// JobResultPayload is the success payload of a finished job.
type JobResultPayload struct {
	VideoSize int64   `json:"video_size"`
	NumFrames int     `json:"num_frames"`
	Duration  float64 `json:"duration"`
}

// ParseJobRequest validates and types the raw job payload. Numeric fields may
// arrive as JSON numbers or as strings; both are accepted at this boundary so
// nothing downstream has to coerce.
func ParseJobRequest(input map[string]any) (*JobRequest, error) {
	missing := lo.Filter(requiredParams, func(key string, _ int) bool {
		_, ok := input[key]
		return !ok
	})
	if len(missing) > 0 {
		return nil, apperrors.Newf(apperrors.CodeInvalidParams,
			"Missing required parameters: %s", strings.Join(missing, ", "))
	}

	var (
		req      JobRequest
		parseErr error
	)

	field := func(key string, set func(any) error) {
		if parseErr != nil {
			return
		}
		if err := set(input[key]); err != nil {
			parseErr = apperrors.Newf(apperrors.CodeInvalidParams, "Invalid value for %s: %v", key, err)
		}
	}

	field("image_url", asString(&req.ImageURL))
	field("audio_url", asString(&req.AudioURL))
	field("video_upload_url", asString(&req.VideoUploadURL))
	field("audio_crop_start_time", asFloat(&req.AudioCropStartTime))
	field("audio_crop_end_time", asFloat(&req.AudioCropEndTime))
	field("positive_prompt", asString(&req.PositivePrompt))
	field("negative_prompt", asString(&req.NegativePrompt))
	field("aspect_ratio", asString(&req.AspectRatio))
	field("scale_to_side", asString(&req.ScaleToSide))
	field("scale_to_length", asInt(&req.ScaleToLength))
	field("fps", asFloat(&req.FPS))
	field("num_frames", asInt(&req.NumFrames))
	field("embeds_audio_scale", asFloat(&req.EmbedsAudioScale))
	field("embeds_cfg_audio_scale", asFloat(&req.EmbedsCfgAudioScale))
	field("embeds_multi_audio_type", asString(&req.EmbedsMultiAudioType))
	field("embeds_normalize_loudness", asBool(&req.EmbedsNormalizeLoudness))
	field("steps", asInt(&req.Steps))
	field("seed", asInt64(&req.Seed))
	field("scheduler", asString(&req.Scheduler))

	if parseErr != nil {
		return nil, parseErr
	}

	if req.FPS <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "Invalid value for fps: must be positive")
	}
	if req.NumFrames <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "Invalid value for num_frames: must be positive")
	}

	return &req, nil
}

func asString(dst *string) func(any) error {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		*dst = s
		return nil
	}
}

func asFloat(dst *float64) func(any) error {
	return func(v any) error {
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func asInt(dst *int) func(any) error {
	return func(v any) error {
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		*dst = int(f)
		return nil
	}
}

func asInt64(dst *int64) func(any) error {
	return func(v any) error {
		// Strings and json.Number are parsed as integers directly so
		// 16-digit seeds keep their precision.
		switch s := v.(type) {
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return fmt.Errorf("expected integer, got %q", s)
			}
			*dst = n
			return nil
		case json.Number:
			n, err := s.Int64()
			if err != nil {
				return fmt.Errorf("expected integer, got %q", s.String())
			}
			*dst = n
			return nil
		}
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		*dst = int64(f)
		return nil
	}
}

func asBool(dst *bool) func(any) error {
	return func(v any) error {
		switch b := v.(type) {
		case bool:
			*dst = b
		case string:
			parsed, err := strconv.ParseBool(strings.ToLower(b))
			if err != nil {
				return fmt.Errorf("expected boolean, got %q", b)
			}
			*dst = parsed
		case float64:
			*dst = b != 0
		case json.Number:
			f, err := b.Float64()
			if err != nil {
				return fmt.Errorf("expected boolean, got %q", b.String())
			}
			*dst = f != 0
		default:
			return fmt.Errorf("expected boolean, got %T", v)
		}
		return nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n.String())
		}
		return f, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
