package compute

// ContentCounts is the number of items the peer network advertises per
// content category.
type ContentCounts struct {
	Pinned   int
	Files    int
	Vectors  int
	Entities int
}

// Populated returns how many categories hold at least one item.
func (c ContentCounts) Populated() int {
	n := 0
	for _, v := range []int{c.Pinned, c.Files, c.Vectors, c.Entities} {
		if v > 0 {
			n++
		}
	}
	return n
}

// Observation is the raw state reported by a peer-network backend, before
// it is reduced to scoring signals.
type Observation struct {
	HostActive      bool
	DiscoveryActive bool
	TotalPeers      int
	ConnectedPeers  int
	Content         ContentCounts
}

// FromObservation derives the scoring Input, including issue tags, from a
// raw observation. Issue tags restate conditions the signal deductions
// already cover, so both penalties apply.
func FromObservation(obs Observation) Input {
	in := Input{
		DiscoveryActive:   obs.DiscoveryActive,
		TotalPeers:        obs.TotalPeers,
		ConnectedPeers:    obs.ConnectedPeers,
		ContentCategories: obs.Content.Populated(),
	}

	if !obs.HostActive {
		in.Issues = append(in.Issues, IssueHostInactive)
	}
	if obs.DiscoveryActive && obs.TotalPeers == 0 {
		in.Issues = append(in.Issues, IssueDiscoveryActiveNoPeers)
	}
	if obs.TotalPeers > 0 && float64(obs.ConnectedPeers)/float64(obs.TotalPeers) < minConnectedRatio {
		in.Issues = append(in.Issues, IssueLowConnectivity)
	}
	if in.ContentCategories == 0 {
		in.Issues = append(in.Issues, IssueNoContentAvailable)
	}
	return in
}
