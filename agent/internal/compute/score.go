package compute

import "github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"

// Base score and the fixed deductions/bonuses of the composite formula.
const (
	baseScore = 100.0

	penaltyDiscoveryInactive = 25.0
	penaltyNoPeers           = 30.0
	penaltyFewPeers          = 15.0
	penaltyLowRatio          = 15.0
	penaltyNoContent         = 20.0

	bonusPerCategory = 5.0
	bonusCap         = 20.0

	// minPeers is the peer count below which the network is considered thin.
	minPeers = 3
	// minConnectedRatio is the connected/known ratio below which an extra
	// deduction applies.
	minConnectedRatio = 0.5

	// ContentCategories is the number of content categories the peer
	// network can advertise: pinned objects, files, vectors, entities.
	ContentCategories = 4
)

// Thresholds that map a score to a health value.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 70.0
)

// Issue is a symptom tag reported alongside the raw signals.
type Issue string

const (
	IssueHostInactive           Issue = "host_inactive"
	IssueDiscoveryActiveNoPeers Issue = "discovery_active_no_peers"
	IssueLowConnectivity        Issue = "low_connectivity"
	IssueNoContentAvailable     Issue = "no_content_available"
)

// issuePenalties are additive with the signal deductions: a symptom that
// co-occurs with its underlying signal is penalised twice.
var issuePenalties = map[Issue]float64{
	IssueHostInactive:           40,
	IssueDiscoveryActiveNoPeers: 20,
	IssueLowConnectivity:        10,
	IssueNoContentAvailable:     15,
}

// Input holds the signals fed into the composite score.
type Input struct {
	// DiscoveryActive is true when peer discovery is running.
	DiscoveryActive bool

	// TotalPeers is the number of known peers; ConnectedPeers the subset
	// with a live connection.
	TotalPeers     int
	ConnectedPeers int

	// ContentCategories is how many of the four content categories hold at
	// least one item. Values outside [0, 4] are clamped.
	ContentCategories int

	// Issues are symptom tags. Unknown tags carry no penalty and duplicate
	// tags are counted once.
	Issues []Issue
}

// Adjustment is one signed contribution to the score.
type Adjustment struct {
	Reason string  `json:"reason"`
	Delta  float64 `json:"delta"`
}

// Output is the result of the score calculation.
type Output struct {
	// Score is the composite value in [0, 100].
	Score float64

	// Health is derived from Score via the thresholds above.
	Health types.Health

	// Adjustments lists every deduction and bonus in the order applied,
	// before clamping. Useful for explaining a score in the API.
	Adjustments []Adjustment
}

// Score calculates the composite health score from the given signals.
//
// The formula deducts or adds fixed amounts rather than averaging, so a
// single failing signal dominates the result:
//
//	100
//	 - 25 discovery inactive
//	 - 30 no known peers | - 15 fewer than 3 peers
//	 - 15 connected/known < 50%
//	 + 5 per populated content category (max +20) | - 20 all empty
//	 - fixed penalty per distinct issue tag
//
// and the total is clamped to [0, 100]. Score is pure: identical inputs
// always yield identical outputs.
func Score(in Input) Output {
	var adj []Adjustment
	add := func(reason string, delta float64) {
		adj = append(adj, Adjustment{Reason: reason, Delta: delta})
	}

	if !in.DiscoveryActive {
		add("discovery_inactive", -penaltyDiscoveryInactive)
	}

	switch {
	case in.TotalPeers <= 0:
		add("no_peers", -penaltyNoPeers)
	case in.TotalPeers < minPeers:
		add("few_peers", -penaltyFewPeers)
	}
	if in.TotalPeers > 0 && float64(in.ConnectedPeers)/float64(in.TotalPeers) < minConnectedRatio {
		add("low_connected_ratio", -penaltyLowRatio)
	}

	cats := in.ContentCategories
	if cats < 0 {
		cats = 0
	}
	if cats > ContentCategories {
		cats = ContentCategories
	}
	if cats == 0 {
		add("no_content", -penaltyNoContent)
	} else {
		bonus := float64(cats) * bonusPerCategory
		if bonus > bonusCap {
			bonus = bonusCap
		}
		add("content_categories", bonus)
	}

	seen := make(map[Issue]bool, len(in.Issues))
	for _, is := range in.Issues {
		if seen[is] {
			continue
		}
		seen[is] = true
		if p, ok := issuePenalties[is]; ok {
			add("issue:"+string(is), -p)
		}
	}

	score := baseScore
	for _, a := range adj {
		score += a.Delta
	}
	score = clamp(score, 0, 100)

	return Output{
		Score:       score,
		Health:      HealthFromScore(score),
		Adjustments: adj,
	}
}

// HealthFromScore maps a numeric score to a health value.
func HealthFromScore(score float64) types.Health {
	switch {
	case score >= ThresholdHealthy:
		return types.HealthHealthy
	case score >= ThresholdDegraded:
		return types.HealthDegraded
	default:
		return types.HealthUnhealthy
	}
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
