package merge

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/quranload/audiocore/internal/domain/audio"
)

// Profile describes how merged audio is encoded.
type Profile struct {
	Codec     string `yaml:"codec" mapstructure:"codec" default:"libmp3lame" validate:"required"`
	Extension string `yaml:"extension" mapstructure:"extension" default:"mp3" validate:"required,alphanum"`
	// Quality is the codec's VBR scale; lower is better.
	Quality int `yaml:"quality" mapstructure:"quality" validate:"gte=0,lte=9"`
	// SampleRate and Channels keep the input values when zero.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0"`
	Channels   int `yaml:"channels" mapstructure:"channels" validate:"gte=0,lte=2"`
}

// DefaultProfiles returns the built-in encoder profiles.
// iOS devices get the higher-fidelity setting; Android trades quality for size.
func DefaultProfiles() map[audio.Platform]Profile {
	return map[audio.Platform]Profile{
		audio.PlatformIOS: {
			Codec:     "libmp3lame",
			Quality:   2,
			Extension: "mp3",
		},
		audio.PlatformAndroid: {
			Codec:     "libmp3lame",
			Quality:   5,
			Extension: "mp3",
		},
	}
}

// DecodeProfile overlays free-form settings on base and validates the result.
func DecodeProfile(base Profile, settings map[string]any) (Profile, error) {
	profile := base

	if len(settings) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &profile,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return Profile{}, errors.Wrap(err, "failed to create decoder")
		}
		if err := decoder.Decode(settings); err != nil {
			return Profile{}, errors.Wrap(err, "failed to decode profile settings")
		}
	}

	if err := defaults.Set(&profile); err != nil {
		return Profile{}, errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(profile); err != nil {
		return Profile{}, errors.Wrap(err, "profile validation failed")
	}
	return profile, nil
}

// ResolveProfile returns the profile for platform with optional overrides applied.
func ResolveProfile(platform audio.Platform, overrides map[string]map[string]any) (Profile, error) {
	base, ok := DefaultProfiles()[platform]
	if !ok {
		return Profile{}, errors.Newf("no encoder profile for platform %q", platform)
	}
	profile, err := DecodeProfile(base, overrides[platform.String()])
	if err != nil {
		return Profile{}, errors.Wrapf(err, "invalid profile for platform %s", platform)
	}
	return profile, nil
}
