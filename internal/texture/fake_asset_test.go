package texture

// fakeAsset is an in-memory Asset whose mip n costs 16<<(2n) bytes in total.
type fakeAsset struct {
	name          string
	group         Group
	mips          int
	nonStreaming  int
	lodBias       int
	notReady      bool
	resident      int
	requested     int
	inFlight      bool
	lastRender    float64
	forceResident bool
	pending       bool

	streamIns  []int
	streamOuts []int
	cancels    int
}

func newFakeAsset(name string, mips, resident int) *fakeAsset {
	return &fakeAsset{name: name, mips: mips, nonStreaming: 1, resident: resident, requested: resident}
}

func sizeOf(mips int) int64 {
	if mips <= 0 {
		return 0
	}
	return int64(16) << (2 * mips)
}

func (a *fakeAsset) Name() string                  { return a.name }
func (a *fakeAsset) Group() Group                  { return a.group }
func (a *fakeAsset) NumMips() int                  { return a.mips }
func (a *fakeAsset) NumNonStreamingMips() int      { return a.nonStreaming }
func (a *fakeAsset) CalcMemorySize(mips int) int64 { return sizeOf(mips) }
func (a *fakeAsset) CachedLODBias() int            { return a.lodBias }
func (a *fakeAsset) IsReadyForStreaming() bool     { return !a.notReady }
func (a *fakeAsset) StreamIn(mips int, _ bool) bool {
	a.streamIns = append(a.streamIns, mips)
	a.requested = mips
	a.inFlight = true
	return true
}
func (a *fakeAsset) StreamOut(mips int) bool {
	a.streamOuts = append(a.streamOuts, mips)
	a.requested = mips
	a.inFlight = true
	return true
}
func (a *fakeAsset) CancelPendingMipChangeRequest() {
	a.cancels++
	a.requested = a.resident
	a.inFlight = false
}
func (a *fakeAsset) UpdateStreamingStatus(bool) Status {
	return Status{InFlight: a.inFlight, ResidentMips: a.resident, RequestedMips: a.requested}
}
func (a *fakeAsset) LastRenderTimeForStreaming() float64 { return a.lastRender }
func (a *fakeAsset) ForceMipLevelsResident() bool        { return a.forceResident }
func (a *fakeAsset) SetStreamingUpdatePending(p bool)    { a.pending = p }
