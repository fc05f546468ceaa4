package texture

// StreamAction is what StreamWantedMips asked of the asset.
type StreamAction int

const (
	NoAction StreamAction = iota
	StreamedIn
	StreamedOut
)

func (a StreamAction) String() string {
	switch a {
	case StreamedIn:
		return "stream_in"
	case StreamedOut:
		return "stream_out"
	default:
		return "none"
	}
}

// StreamWantedMips issues the resize toward WantedMips.
func (r *Record) StreamWantedMips() StreamAction {
	if r.Asset == nil || r.WantedMips == r.ResidentMips {
		return NoAction
	}
	action := NoAction
	if r.WantedMips < r.ResidentMips {
		if r.Asset.StreamOut(r.WantedMips) {
			action = StreamedOut
		}
	} else {
		prioritize := (r.ForceFullyLoadHeuristic || r.IsTerrain || r.IsCharacter) && r.WantedMips <= r.VisibleWantedMips
		if r.Asset.StreamIn(r.WantedMips, prioritize) {
			action = StreamedIn
		}
	}
	r.UpdateStreamingStatus(false)
	return action
}

// CancelPendingMipChangeRequest aborts the in-flight resize, if any.
func (r *Record) CancelPendingMipChangeRequest() {
	if r.Asset == nil {
		return
	}
	r.Asset.CancelPendingMipChangeRequest()
	r.UpdateStreamingStatus(false)
}
