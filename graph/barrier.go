package graph

// BarrierScheduler compares tracked resource state with the state a pass requires and
// emits the minimal set of image barriers. It is owned by the recording goroutine.
type BarrierScheduler struct {
	touched []*AttachmentResource
	seen    map[*AttachmentResource]struct{}
}

func NewBarrierScheduler() *BarrierScheduler {
	return &BarrierScheduler{seen: make(map[*AttachmentResource]struct{})}
}

// BeginFrame resets every resource touched since the last BeginFrame to UndefinedState.
func (s *BarrierScheduler) BeginFrame() {
	for _, res := range s.touched {
		res.State = UndefinedState
	}
	s.touched = s.touched[:0]
	clear(s.seen)
}

func (s *BarrierScheduler) touch(res *AttachmentResource) {
	if _, ok := s.seen[res]; ok {
		return
	}
	s.seen[res] = struct{}{}
	s.touched = append(s.touched, res)
}

// Transition returns the barrier that moves res from its tracked state to required and
// updates the tracked state. It reports false, and emits nothing, when the states match.
func (s *BarrierScheduler) Transition(res *AttachmentResource, required TrackedState, aspect Aspect) (ImageBarrier, bool) {
	s.touch(res)
	if res.State == required {
		return ImageBarrier{}, false
	}
	b := ImageBarrier{
		Image:     res.Image,
		Aspect:    aspect,
		SrcStage:  res.State.Stage,
		DstStage:  required.Stage,
		SrcAccess: res.State.Access,
		DstAccess: required.Access,
		OldLayout: res.State.Layout,
		NewLayout: required.Layout,
	}
	res.State = required
	return b, true
}

// Assume records that res was moved to state by the GPU without an explicit barrier,
// as a resolve target is at the end of a rendering scope.
func (s *BarrierScheduler) Assume(res *AttachmentResource, state TrackedState) {
	s.touch(res)
	res.State = state
}

// Present returns the unconditional transition of the backbuffer to the present layout
// and resets its tracked state, so the next frame starts from a known baseline even if
// frames are skipped in between.
func (s *BarrierScheduler) Present(res *AttachmentResource) ImageBarrier {
	b := ImageBarrier{
		Image:     res.Image,
		Aspect:    AspectColor,
		SrcStage:  res.State.Stage,
		DstStage:  StageBottomOfPipe,
		SrcAccess: res.State.Access,
		DstAccess: AccessNone,
		OldLayout: res.State.Layout,
		NewLayout: LayoutPresentSrc,
	}
	res.State = UndefinedState
	return b
}
