package executor_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/smutt/fediscripts/fedi"
	"github.com/smutt/fediscripts/feditest"
	"github.com/smutt/fediscripts/pkg/executor"
)

func TestRunTestStableFilter(t *testing.T) {
	instances := feditest.BuildInstances(t, "a.example", "b.example", "c.example", "d.example", "e.example")

	// drop domains containing "b" or "d"
	surviving := executor.RunTest(context.Background(), executor.DefaultConfig(), func(ctx context.Context, domain string) bool {
		return !strings.Contains(domain, "b") && !strings.Contains(domain, "d")
	}, instances)

	if len(surviving) != 3 {
		t.Fatalf("expected 3 survivors got %d\n", len(surviving))
	}
	expected := []string{"a.example", "c.example", "e.example"}
	for i, ins := range surviving {
		if ins.Domain != expected[i] {
			t.Fatalf("position %d: expected %s got %s\n", i, expected[i], ins.Domain)
		}
	}
}

func TestRunTestSequentialSmallBatch(t *testing.T) {
	// below MinWorkers*2 the executor runs in input order on one goroutine
	instances := feditest.BuildInstances(t, "a.example", "b.example", "c.example")

	order := make([]string, 0, len(instances))
	surviving := executor.RunTest(context.Background(), executor.DefaultConfig(), func(ctx context.Context, domain string) bool {
		order = append(order, domain)
		return true
	}, instances)

	if len(surviving) != 3 {
		t.Fatalf("expected 3 survivors got %d\n", len(surviving))
	}
	for i, ins := range instances {
		if order[i] != ins.Domain {
			t.Fatalf("expected sequential execution order, got %v\n", order)
		}
	}
}

func TestRunTestLargeBatch(t *testing.T) {
	domains := make([]string, 0, 300)
	for i := 0; i < 300; i++ {
		domains = append(domains, fmt.Sprintf("host%d.example", i))
	}
	instances := feditest.BuildInstances(t, domains...)

	surviving := executor.RunTest(context.Background(), executor.DefaultConfig(), func(ctx context.Context, domain string) bool {
		return !strings.HasPrefix(domain, "host1")
	}, instances)

	if len(surviving) >= len(instances) {
		t.Fatalf("expected a strict subset, got %d of %d\n", len(surviving), len(instances))
	}

	// survivors must be a subsequence of the input
	pos := 0
	for _, ins := range surviving {
		for pos < len(instances) && instances[pos] != ins {
			pos++
		}
		if pos == len(instances) {
			t.Fatalf("survivor %s out of input order\n", ins.Domain)
		}
		pos++
	}
}

func TestRunTestEmpty(t *testing.T) {
	surviving := executor.RunTest(context.Background(), executor.DefaultConfig(), func(ctx context.Context, domain string) bool {
		t.Errorf("test function should not be called\n")
		return true
	}, nil)
	if len(surviving) != 0 {
		t.Fatalf("expected no survivors got %d\n", len(surviving))
	}
}

func TestRunCategorizeEvenOdd(t *testing.T) {
	instances := feditest.BuildInstances(t, "a.example", "b.example", "c.example")
	instances[0].Hits = 5
	instances[1].Hits = 2
	instances[2].Hits = 9

	hits := map[string]int{}
	for _, ins := range instances {
		hits[ins.Domain] = ins.Hits
	}

	tally := executor.RunCategorize(context.Background(), executor.DefaultConfig(), func(ctx context.Context, domain string) string {
		if hits[domain]%2 == 0 {
			return "even"
		}
		return "odd"
	}, instances)

	if tally.Total != 3 {
		t.Fatalf("expected total 3 got %d\n", tally.Total)
	}
	if tally.Count("odd") != 2 || tally.Count("even") != 1 {
		t.Fatalf("expected odd:2 even:1 got %+v\n", tally.Categories)
	}
	if tally.Categories[0].Label != "odd" {
		t.Fatalf("expected odd first got %s\n", tally.Categories[0].Label)
	}
}

func TestRunCategorizeOther(t *testing.T) {
	instances := feditest.BuildInstances(t, "a.example", "b.example", "c.example", "d.example")

	tally := executor.RunCategorize(context.Background(), executor.DefaultConfig(), func(ctx context.Context, domain string) string {
		if domain == "a.example" {
			return "mastodon"
		}
		return ""
	}, instances)

	if tally.Total != 4 {
		t.Fatalf("expected total 4 got %d\n", tally.Total)
	}
	if tally.Count(fedi.OtherCategory) != 3 {
		t.Fatalf("expected Other:3 got %d\n", tally.Count(fedi.OtherCategory))
	}

	sum := 0
	for _, c := range tally.Categories {
		sum += c.Count
	}
	if sum != tally.Total {
		t.Fatalf("bucket sum %d != total %d\n", sum, tally.Total)
	}
}

func TestRunTotal(t *testing.T) {
	instances := feditest.BuildInstances(t, "a.example", "b.example", "c.example", "d.example", "e.example")

	values := map[string]struct {
		v  int64
		ok bool
	}{
		"a.example": {100, true},
		"b.example": {-5, true},  // negative, excluded
		"c.example": {0, false},  // absent, excluded
		"d.example": {200, true},
		"e.example": {0, true}, // zero adds nothing
	}

	total := executor.RunTotal(context.Background(), executor.DefaultConfig(), func(ctx context.Context, domain string) (int64, bool) {
		r := values[domain]
		return r.v, r.ok
	}, instances)

	if total != 300 {
		t.Fatalf("expected 300 got %d\n", total)
	}
}
