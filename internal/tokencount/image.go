package tokencount

import (
	"fmt"

	"github.com/penguin-run/penguin/pkg/types"
)

// imageTokenEstimate is the rough token cost charged per image, mirroring
// the per-tile estimate vision-capable providers typically use (roughly a
// 512x512 tile at default detail).
const imageTokenEstimate = 1024

// ReplaceImagesWithPlaceholders swaps ImagePart entries for a lightweight
// text placeholder once budget pressure makes the image's token cost not
// worth the space it occupies in an older turn. Only parts belonging to
// messages the caller has already decided to keep should be passed in.
func ReplaceImagesWithPlaceholders(parts []types.Part, remainingBudget int) ([]types.Part, int) {
	if remainingBudget >= imageTokenEstimate*countImages(parts) {
		return parts, 0
	}

	replaced := 0
	out := make([]types.Part, len(parts))
	for i, p := range parts {
		img, ok := p.(*types.ImagePart)
		if !ok || img.Placeholder {
			out[i] = p
			continue
		}
		out[i] = &types.ImagePart{
			ID:          img.ID,
			SessionID:   img.SessionID,
			MessageID:   img.MessageID,
			Type:        img.Type,
			MediaType:   img.MediaType,
			Placeholder: true,
			URL:         fmt.Sprintf("[image omitted to fit context window: %s]", img.MediaType),
		}
		replaced++
	}
	return out, replaced
}

func countImages(parts []types.Part) int {
	n := 0
	for _, p := range parts {
		if img, ok := p.(*types.ImagePart); ok && !img.Placeholder {
			n++
		}
	}
	return n
}
