package surface

import "github.com/helixml/deskgate/pkg/rectutil"

// Tuning constants preserved verbatim from the original implementation
// (spec.md §9 Open Questions: not independently justified, kept as-is).
const (
	costBase                = 4096
	costRectOnlyDivisor     = 16
	negligibleIncreaseDivisor = 4
	fillPatternFactor       = 3
	negligibleDimension     = 64
)

// cost estimates the wire cost of re-encoding r: costBase + area for
// a full image rectangle, divided by costRectOnlyDivisor when the
// incoming update carries no pixel content to re-encode (a pure
// metadata op). The divisor applies only to that update's own cost —
// the existing dirty rect and the combined candidate are always
// priced as full image data.
func cost(r rectutil.Rect, rectOnly bool) int {
	c := costBase + r.Area()
	if rectOnly {
		return c / costRectOnlyDivisor
	}
	return c
}

// shouldCombine decides whether a newly dirtied rectangle should be
// merged into the surface's existing dirty rectangle (true) or
// deferred as a fresh queue entry (false). realized is false for a
// surface the remote side has not yet allocated (pure scratch, always
// combine). rectOnly marks a metadata-only update with no pixel
// content to re-encode.
func shouldCombine(dirty, update rectutil.Rect, realized, rectOnly bool) bool {
	if dirty.Empty() {
		return true
	}
	if !realized {
		return true
	}

	combined := rectutil.Extend(dirty, update)

	if combined.W <= negligibleDimension && combined.H <= negligibleDimension {
		return true
	}

	dirtyCost := cost(dirty, false)
	updateCost := cost(update, rectOnly)
	combinedCost := cost(combined, false)

	if combinedCost <= dirtyCost+updateCost {
		return true
	}
	if combinedCost-dirtyCost <= dirtyCost/negligibleIncreaseDivisor {
		return true
	}
	if combinedCost-updateCost <= updateCost/negligibleIncreaseDivisor {
		return true
	}

	// Vertical scroll/fill pattern: the new rect sits directly below
	// the dirty rect at the same x.
	if update.X == dirty.X && update.Y == dirty.Bottom() {
		if combinedCost <= fillPatternFactor*(dirtyCost+updateCost) {
			return true
		}
	}

	return false
}
