// Package source turns external sensor feeds into ordered motion readings.
package source

import "github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"

// Reading is one sample plus the location to attach to any event it confirms.
type Reading struct {
	Sample   motion.Sample
	Location *motion.Location
}

// Stats counts what a source consumed.
type Stats struct {
	Lines   int // non-blank lines read
	Skipped int // malformed lines dropped
}
