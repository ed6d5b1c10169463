package tabular

import (
	"math/rand/v2"
	"strings"

	"github.com/JakeFAU/articlescraper/internal/scrape"
)

// PrepareOptions controls how the loaded table is cleaned before a run.
type PrepareOptions struct {
	// Dedupe drops rows whose URL already appeared, keeping the first.
	Dedupe bool
	// Shuffle randomizes row order so slow hosts spread across workers.
	Shuffle bool
	// Seed fixes the shuffle; 0 picks a random seed.
	Seed uint64
}

// PrepareReport counts the rows Prepare removed.
type PrepareReport struct {
	Blank      int
	Duplicates int
}

// Prepare returns a new table without blank-URL rows, optionally deduplicated
// and shuffled. The input table is not modified.
func Prepare(table *scrape.Table, opts PrepareOptions) (*scrape.Table, PrepareReport) {
	var report PrepareReport
	if table == nil {
		return nil, report
	}
	seen := make(map[string]bool, len(table.Rows))
	rows := make([]scrape.Row, 0, len(table.Rows))
	for _, row := range table.Rows {
		url := strings.TrimSpace(row.URL)
		if url == "" {
			report.Blank++
			continue
		}
		if opts.Dedupe {
			if seen[url] {
				report.Duplicates++
				continue
			}
			seen[url] = true
		}
		row.URL = url
		rows = append(rows, row)
	}

	if opts.Shuffle {
		rng := newRand(opts.Seed)
		rng.Shuffle(len(rows), func(i, j int) {
			rows[i], rows[j] = rows[j], rows[i]
		})
	}
	return scrape.NewTable(append([]string(nil), table.Columns...), rows), report
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // ordering only
	}
	return rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // ordering only
}
