package validation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds the routing worker pool.
const DefaultWorkers = 5

// chunkSize is the number of records one routing task evaluates.
const chunkSize = 512

// Partitions is the result of routing a batch.
type Partitions struct {
	Valid    []Record
	Rejected []Record
}

// Partition evaluates valid against every record in order.
func Partition(records []Record, valid Rule) Partitions {
	var p Partitions
	for _, rec := range records {
		if valid.Eval(rec) {
			p.Valid = append(p.Valid, rec)
		} else {
			p.Rejected = append(p.Rejected, rec)
		}
	}
	return p
}

// group is one named output of Route.
type group struct {
	name   string
	filter Rule
}

// Route splits records into the records satisfying valid and the records
// satisfying Not(valid). The two filters run independently on a pool of at
// most workers goroutines; each task writes only to its own result slot.
// Input order is preserved within each partition.
func Route(ctx context.Context, records []Record, valid Rule, workers int) (Partitions, error) {
	if workers < 1 {
		workers = DefaultWorkers
	}
	groups := []group{
		{name: "valid", filter: valid},
		{name: "rejected", filter: Not(valid)},
	}

	var chunks [][]Record
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}

	results := make([][][]Record, len(groups))
	for i := range results {
		results[i] = make([][]Record, len(chunks))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for gi, grp := range groups {
		for ci, chunk := range chunks {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("route %s: %w", grp.name, err)
				}
				var out []Record
				for _, rec := range chunk {
					if grp.filter.Eval(rec) {
						out = append(out, rec)
					}
				}
				results[gi][ci] = out
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Partitions{}, err
	}

	var p Partitions
	for _, part := range results[0] {
		p.Valid = append(p.Valid, part...)
	}
	for _, part := range results[1] {
		p.Rejected = append(p.Rejected, part...)
	}
	return p, nil
}
