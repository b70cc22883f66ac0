package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/danmuck/cardtable/internal/protocol"
)

// Fixed palettes a player picks their look from.
var (
	PrimaryPalette   = []string{"crimson", "amber", "emerald", "azure", "violet", "slate"}
	SecondaryPalette = []string{"ivory", "charcoal", "gold", "silver", "teal", "rose"}
	Avatars          = []string{"fox", "owl", "bear", "cat", "wolf", "otter"}
)

// normalizePersonalization fills empty choices with the first palette entry
// and rejects anything outside the palettes.
func normalizePersonalization(in protocol.Personalization) (protocol.Personalization, error) {
	pick := func(field, v string, palette []string) (string, error) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return palette[0], nil
		}
		if !slices.Contains(palette, v) {
			return "", fmt.Errorf("%w: %s %q not in palette", ErrInvalidJoin, field, v)
		}
		return v, nil
	}
	var (
		out protocol.Personalization
		err error
	)
	if out.PrimaryColor, err = pick("primary_color", in.PrimaryColor, PrimaryPalette); err != nil {
		return protocol.Personalization{}, err
	}
	if out.SecondaryColor, err = pick("secondary_color", in.SecondaryColor, SecondaryPalette); err != nil {
		return protocol.Personalization{}, err
	}
	if out.Avatar, err = pick("avatar", in.Avatar, Avatars); err != nil {
		return protocol.Personalization{}, err
	}
	return out, nil
}
