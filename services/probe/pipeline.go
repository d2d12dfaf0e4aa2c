package probe

import (
	"context"

	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"

	"github.com/smutt/fediscripts/fedi"
	"github.com/smutt/fediscripts/pkg/executor"
	"github.com/smutt/fediscripts/pkg/pinger"
)

// Stages selects which probe stages run. All implies every stage but keeps
// the distinction between an explicit and an implied request, which matters
// for ipv6 gating.
type Stages struct {
	DNS       bool
	DNSSEC    bool
	Ping4     bool
	Ping6     bool
	HTTPS     bool
	NodeInfo  bool
	NodeInfo2 bool
	All       bool
}

// Any returns true if at least one stage is requested.
func (s Stages) Any() bool {
	return s.All || s.DNS || s.DNSSEC || s.Ping4 || s.Ping6 || s.HTTPS || s.NodeInfo || s.NodeInfo2
}

// NeedsPing returns true if a ping stage will run.
func (s Stages) NeedsPing() bool {
	return s.All || s.Ping4 || s.Ping6
}

// Pipeline chains probe stages in canonical order over a shrinking instance
// set. Each stage sizes and tears down its own worker pool.
type Pipeline struct {
	prober  *Prober
	cfg     *executor.Config
	hasIPv6 func() bool
}

// NewPipeline returns a Pipeline running prober's stages with the given
// executor sizing.
func NewPipeline(prober *Prober, cfg *executor.Config) *Pipeline {
	return &Pipeline{prober: prober, cfg: cfg, hasIPv6: pinger.HasLocalIPv6}
}

// Run applies the requested stages to instances in canonical order:
// dns-resolve, dnssec, ping-ipv4, ping-ipv6, https, node-info, node-info2.
// Skipped stages pass the set through unchanged. An explicit ping-ipv6
// request on a host without local ipv6 connectivity fails before any stage
// runs; when ipv6 testing is only implied by All the stage is skipped.
func (p *Pipeline) Run(ctx context.Context, stages Stages, instances []*fedi.Instance) ([]*fedi.Instance, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("trace_id", id.String()).Logger()
	ctx = logger.WithContext(ctx)

	// local connectivity is detected once per run
	ipv6 := false
	if stages.Ping6 || stages.All {
		ipv6 = p.hasIPv6()
		if !ipv6 && stages.Ping6 {
			return nil, fedi.ErrNoLocalIPv6
		}
	}

	if stages.DNS || stages.All {
		instances = p.stage(ctx, "dns-resolve", p.prober.TestDNS, instances)
	}
	if stages.DNSSEC || stages.All {
		instances = p.stage(ctx, "dnssec", p.prober.TestDNSSEC, instances)
	}
	if stages.Ping4 || stages.All {
		instances = p.stage(ctx, "ping-ipv4", p.prober.TestPing4, instances)
	}
	if stages.Ping6 || stages.All {
		if ipv6 {
			instances = p.stage(ctx, "ping-ipv6", p.prober.TestPing6, instances)
		} else {
			log.Ctx(ctx).Info().Msg("no local ipv6 connectivity, skipping ping-ipv6")
		}
	}
	if stages.HTTPS || stages.All {
		instances = p.stage(ctx, "https", p.prober.TestHTTPS, instances)
	}
	if stages.NodeInfo || stages.All {
		instances = p.stage(ctx, "node-info", p.prober.TestNodeInfo, instances)
	}
	if stages.NodeInfo2 || stages.All {
		instances = p.stage(ctx, "node-info2", p.prober.TestNodeInfo2, instances)
	}

	return instances, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, testFn executor.TestFunc, instances []*fedi.Instance) []*fedi.Instance {
	log.Ctx(ctx).Info().Str("stage", name).Int("instances", len(instances)).Msg("testing")
	surviving := executor.RunTest(ctx, p.cfg, testFn, instances)
	log.Ctx(ctx).Info().Str("stage", name).Int("passed", len(surviving)).Msg("stage complete")
	return surviving
}

// Categorize buckets instances with the named method's categorizer.
func (p *Pipeline) Categorize(ctx context.Context, method string, instances []*fedi.Instance) (*fedi.Tally, bool) {
	catFn, ok := p.prober.Categorizers()[method]
	if !ok {
		return nil, false
	}
	return executor.RunCategorize(ctx, p.cfg, catFn, instances), true
}

// Total sums the named method's nodeinfo attribute across instances.
func (p *Pipeline) Total(ctx context.Context, method string, instances []*fedi.Instance) (int64, bool) {
	attrFn, ok := p.prober.Sums()[method]
	if !ok {
		return 0, false
	}
	return executor.RunTotal(ctx, p.cfg, attrFn, instances), true
}
