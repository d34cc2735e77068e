package vkcompute

// scope accumulates cleanup closures as resources are acquired and runs
// them in reverse order, the concrete realization of the "scoped
// acquisition with guaranteed release" design note: every Vulkan object
// created below pushes its destructor here instead of being unwound with
// hand-written defers, so a failure halfway through a multi-step
// acquisition (instance, device, image, memory, view...) never leaks the
// steps that already succeeded.
type scope struct {
	fns []func()
}

// defer_ registers fn to run during release, in LIFO order.
func (s *scope) defer_(fn func()) {
	s.fns = append(s.fns, fn)
}

// release runs every registered closure in reverse registration order
// and clears the scope. Safe to call on an already-released scope.
func (s *scope) release() {
	for i := len(s.fns) - 1; i >= 0; i-- {
		s.fns[i]()
	}
	s.fns = nil
}

// commit discards the scope's closures without running them, used once
// ownership of every acquired resource has been transferred to a
// longer-lived struct (Context, ExternalImage, LinearImage).
func (s *scope) commit() {
	s.fns = nil
}
