// internal/notion/scanner.go
package notion

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
)

// Block types whose children may hold inline databases.
var containerTypes = map[string]bool{
	"column_list":        true,
	"column":             true,
	"callout":            true,
	"synced_block":       true,
	"toggle":             true,
	"quote":              true,
	"bulleted_list_item": true,
	"numbered_list_item": true,
	"to_do":              true,
	"tab":                true,
	"heading_1":          true,
	"heading_2":          true,
	"heading_3":          true,
}

// Scanner walks a page's block tree and collects its child databases.
type Scanner struct {
	client      *Client
	maxDepth    int
	concurrency int
}

// NewScanner creates a Scanner. maxDepth counts container levels below the
// page; concurrency bounds sibling descents per level.
func NewScanner(client *Client, maxDepth, concurrency int) *Scanner {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scanner{client: client, maxDepth: maxDepth, concurrency: concurrency}
}

// Scan returns the databases found on the page in document order,
// deduplicated by id. Failing to list the page itself is an error; a
// nested container that cannot be read is skipped.
func (s *Scanner) Scan(ctx context.Context, token, pageID string) ([]domain.DatabaseRef, error) {
	refs, err := s.scanBlock(ctx, token, pageID, 0)
	if err != nil {
		return nil, err
	}
	return domain.DedupeDatabases(refs), nil
}

func (s *Scanner) scanBlock(ctx context.Context, token, blockID string, depth int) ([]domain.DatabaseRef, error) {
	blocks, err := s.client.ListAllBlockChildren(ctx, token, blockID)
	if err != nil {
		if depth == 0 {
			return nil, fmt.Errorf("listing blocks of %s: %w", blockID, err)
		}
		if errors.Is(err, ErrNotFound) || isForbidden(err) {
			customLog.Warnf("Scanner: skipping unreadable block %s: %v", blockID, err)
			return nil, nil
		}
		return nil, err
	}

	// One slot per block keeps document order across parallel descents.
	found := make([][]domain.DatabaseRef, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, block := range blocks {
		if block.Type == "child_database" {
			ref := domain.DatabaseRef{ID: core.CanonicalID(block.ID), Icon: block.Icon.ToDomain()}
			if block.ChildDatabase != nil {
				ref.Title = block.ChildDatabase.Title
			}
			found[i] = []domain.DatabaseRef{ref}
			continue
		}

		target, ok := descendTarget(block)
		if !ok || depth+1 > s.maxDepth {
			continue
		}

		i := i
		g.Go(func() error {
			refs, err := s.scanBlock(gctx, token, target, depth+1)
			if err != nil {
				return err
			}
			found[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.DatabaseRef
	for _, refs := range found {
		out = append(out, refs...)
	}
	return out, nil
}

// descendTarget returns the block whose children should be listed. Synced
// block copies point at their original.
func descendTarget(block Block) (string, bool) {
	if !block.HasChildren && block.Type != "synced_block" {
		return "", false
	}
	if !containerTypes[block.Type] {
		return "", false
	}
	if block.Type == "synced_block" && block.SyncedBlock != nil && block.SyncedBlock.SyncedFrom != nil {
		return block.SyncedBlock.SyncedFrom.BlockID, true
	}
	if !block.HasChildren {
		return "", false
	}
	return block.ID, true
}

func isForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 403
}
