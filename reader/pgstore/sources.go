package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"pairbot/models"
)

// Table names are validated as plain identifiers by config before they
// reach these queries.
const (
	volumeQuery = "SELECT pair_symbol, pair_base, volume FROM %s ORDER BY volume DESC, id ASC"
	recentQuery = "SELECT pair, time FROM %s WHERE pair = ANY($1) ORDER BY time DESC, pair ASC"
	latestQuery = "SELECT pair, time FROM %s ORDER BY time DESC, pair ASC LIMIT 1"
)

type VolumeSource struct {
	store *Store
	table string
}

func (v *VolumeSource) EachByVolume(ctx context.Context, fn func(models.VolumeRecord) bool) error {
	ctx, cancel := withTimeout(ctx, v.store.cfg.QueryTimeout)
	defer cancel()

	rows, err := v.store.q().QueryxContext(ctx, fmt.Sprintf(volumeQuery, v.table))
	if err != nil {
		return fmt.Errorf("query %s: %w", v.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.VolumeRecord
		if err := rows.StructScan(&rec); err != nil {
			return fmt.Errorf("scan %s: %w", v.table, err)
		}
		if !fn(rec) {
			v.store.abandon(cancel)
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", v.table, err)
	}
	return nil
}

func (v *VolumeSource) Count(ctx context.Context) (int64, error) {
	return v.store.count(ctx, v.table)
}

type PostSource struct {
	store *Store
	table string
}

func (p *PostSource) EachRecentPost(ctx context.Context, pairs []string, fn func(models.PostRecord) bool) error {
	if len(pairs) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx, p.store.cfg.QueryTimeout)
	defer cancel()

	rows, err := p.store.q().QueryxContext(ctx, fmt.Sprintf(recentQuery, p.table), pq.Array(pairs))
	if err != nil {
		return fmt.Errorf("query %s: %w", p.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var post models.PostRecord
		if err := rows.StructScan(&post); err != nil {
			return fmt.Errorf("scan %s: %w", p.table, err)
		}
		if !fn(post) {
			p.store.abandon(cancel)
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", p.table, err)
	}
	return nil
}

func (p *PostSource) LatestPost(ctx context.Context) (models.PostRecord, bool, error) {
	ctx, cancel := withTimeout(ctx, p.store.cfg.QueryTimeout)
	defer cancel()

	var post models.PostRecord
	err := p.store.q().GetContext(ctx, &post, fmt.Sprintf(latestQuery, p.table))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PostRecord{}, false, nil
	}
	if err != nil {
		return models.PostRecord{}, false, fmt.Errorf("query latest in %s: %w", p.table, err)
	}
	return post, true, nil
}

func (p *PostSource) Count(ctx context.Context) (int64, error) {
	return p.store.count(ctx, p.table)
}
