package report

// WalkSpecs calls fn for every spec in tree order, with its owning suite.
func (r *Run) WalkSpecs(fn func(suite *Suite, spec *Spec)) {
	for _, s := range r.Suites {
		walkSuite(s, fn)
	}
}

func walkSuite(s *Suite, fn func(*Suite, *Spec)) {
	for _, sp := range s.Specs {
		fn(s, sp)
	}
	for _, child := range s.Suites {
		walkSuite(child, fn)
	}
}

// Summary counts suites, specs and screenshots in the tree.
func (r *Run) Summary() Summary {
	var sum Summary
	var countSuites func(suites []*Suite)
	countSuites = func(suites []*Suite) {
		for _, s := range suites {
			sum.Suites++
			countSuites(s.Suites)
		}
	}
	countSuites(r.Suites)

	r.WalkSpecs(func(_ *Suite, sp *Spec) {
		sum.Specs++
		switch sp.Status {
		case StatusPassed:
			sum.Passed++
		case StatusFailed:
			sum.Failed++
		case StatusPending:
			sum.Pending++
		case StatusDisabled:
			sum.Disabled++
		}
		for _, shot := range sp.Screenshots {
			sum.Screenshots++
			if shot.HasComparison() && shot.Mismatch() > r.MismatchThreshold {
				sum.Mismatches++
			}
		}
	})
	return sum
}

// TopSuite returns the top-level suite that contains s.
func TopSuite(s *Suite) *Suite {
	for s != nil && s.parent != nil {
		s = s.parent
	}
	return s
}

// relink restores the parent and suite back-references, which are not
// serialized. Nodes read from JSON count as started and done.
func (r *Run) relink() {
	var link func(parent *Suite, suites []*Suite)
	link = func(parent *Suite, suites []*Suite) {
		for _, s := range suites {
			s.parent = parent
			s.started = true
			s.done = s.EndTime != nil
			for _, sp := range s.Specs {
				sp.suite = s
				sp.done = sp.Status.IsTerminal()
			}
			link(s, s.Suites)
		}
	}
	link(nil, r.Suites)
}
