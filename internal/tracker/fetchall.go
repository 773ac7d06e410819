package tracker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/starford/workboard/internal/model"
)

// FetchAll fetches records and links for every project concurrently. The
// fetches are independent reads joined before anything downstream runs; the
// concurrency is a latency optimization only and does not affect the result
// set. The first error cancels the remaining fetches.
func (c *Client) FetchAll(ctx context.Context, projects []string) ([]*model.Record, []model.Link, error) {
	recordsPer := make([][]*model.Record, len(projects))
	linksPer := make([][]model.Link, len(projects))

	g, gCtx := errgroup.WithContext(ctx)
	for i, project := range projects {
		g.Go(func() error {
			records, err := c.Records(gCtx, project)
			if err != nil {
				return err
			}
			links, err := c.Links(gCtx, project, records)
			if err != nil {
				return err
			}
			recordsPer[i] = records
			linksPer[i] = links
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var records []*model.Record
	var links []model.Link
	for i := range projects {
		records = append(records, recordsPer[i]...)
		links = append(links, linksPer[i]...)
	}
	return records, links, nil
}
