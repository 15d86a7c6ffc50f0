package dimensions

import (
	"time"

	"github.com/onchainscore/scoringcore/internal/util"
)

var (
	repoStarsPoints = []util.Breakpoint{
		util.LogBreakpoint(1, 0),
		util.LogBreakpoint(5, 8),
		util.LogBreakpoint(50, 15),
		util.LogBreakpoint(500, 20),
	}
	identityWalletAgePoints = []util.Breakpoint{
		util.LogBreakpoint(1, 0),
		util.LogBreakpoint(30, 10),
		util.LogBreakpoint(90, 16),
		util.LogBreakpoint(365, 20),
	}
)

const codeHostRecencyWindow = 30 * 24 * time.Hour

// IdentityFacts bundles the inputs the identity scorer reads (spec §4.4).
type IdentityFacts struct {
	SelfRegistered   bool
	OwnsBasename     bool
	CodeHostVerified bool
	RepoStars        int
	LastPushedAt     time.Time
	WalletAgeDays     float64
	Now              time.Time
}

// ScoreIdentity computes the identity dimension (weight 0.20).
func ScoreIdentity(f IdentityFacts) (int, map[string]int) {
	points := map[string]int{}

	if f.SelfRegistered {
		points["self_registered"] = 20
	}
	if f.OwnsBasename {
		points["basename"] = 15
	}
	if f.CodeHostVerified {
		points["code_host_verified"] = 15
		points["repo_stars"] = int(util.PiecewiseLogInterpolate(repoStarsPoints, float64(f.RepoStars)))
		if !f.LastPushedAt.IsZero() && f.Now.Sub(f.LastPushedAt) <= codeHostRecencyWindow {
			points["recency_bonus"] = 10
		}
	}
	points["wallet_age"] = int(util.PiecewiseLogInterpolate(identityWalletAgePoints, f.WalletAgeDays))

	total := 0
	for _, v := range points {
		total += v
	}
	return util.ClampInt(total, 0, 100), points
}
