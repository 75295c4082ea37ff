package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"
)

// ToWatermill copies md into the header map of a Watermill message.
func ToWatermill(md Metadata) message.Metadata {
	wm := make(message.Metadata, len(md))
	maps.Copy(wm, md)
	return wm
}
