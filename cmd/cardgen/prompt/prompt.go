package prompt

import (
	"fmt"
	"strings"
)

// Build composes the image generation prompt for a city. The model has
// search grounding enabled, so it is asked to look up live weather
// itself rather than being fed stale numbers.
func Build(city string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You have access to Google Search. Search for today's real-time weather in %q, then generate a weather card image.\n\n", city)

	b.WriteString(`Image style:
Present a clear, 45-degree top-down view of a vertical (9:16) isometric miniature 3D cartoon scene, highlighting iconic landmarks centered in the composition.
The scene features soft, refined textures with realistic PBR materials and gentle, lifelike lighting and shadow effects.
Weather elements are creatively integrated into the urban architecture, creating an immersive weather ambiance.
Use a clean, unified composition with minimalistic aesthetics and a soft, solid-colored background.

Text overlay:
Display a prominent weather icon at the top-center, with the date (x-small text) and temperature range (medium text) beneath it.
The city name (large text) is positioned directly above the weather icon.
The text must be in the city's native language.
`)

	return strings.TrimSpace(b.String())
}
