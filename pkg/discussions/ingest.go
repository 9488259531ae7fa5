// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package discussions ingests external conversations (pull requests,
// issues) and links them to the code they talk about.
package discussions

import (
	"context"
	"log/slog"

	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// Ingestor stores batches of fetched discussions.
type Ingestor struct {
	store  store.Store
	logger *slog.Logger
}

// NewIngestor creates a discussion ingestor.
func NewIngestor(st store.Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: st, logger: logger}
}

// IngestResult summarizes one ingestion batch.
type IngestResult struct {
	Stored    int // new or updated
	Unchanged int
	Summary   model.BatchSummary
}

// Ingest upserts a batch of discussions. Items missing an identity are
// skipped and reported; duplicates within the batch collapse to the newest
// copy. Re-ingesting the same batch changes nothing.
func (i *Ingestor) Ingest(ctx context.Context, batch []model.Discussion) (*IngestResult, error) {
	res := &IngestResult{}

	// In-batch dedupe: keep the newest copy per key, preserve first-seen
	// order for determinism.
	var order []string
	newest := make(map[string]model.Discussion, len(batch))
	for _, d := range batch {
		if d.Source == "" || d.ExternalID == "" {
			res.Summary.Add(d.Key(), "missing source or external id")
			continue
		}
		key := d.Key()
		if prev, ok := newest[key]; ok {
			if d.CreatedAt.After(prev.CreatedAt) {
				newest[key] = d
			}
			continue
		}
		newest[key] = d
		order = append(order, key)
	}

	for _, key := range order {
		d := newest[key]
		changed, err := i.store.UpsertDiscussion(ctx, d)
		if err != nil {
			return nil, err
		}
		if changed {
			res.Stored++
		} else {
			res.Unchanged++
		}
		res.Summary.Succeeded++
	}

	i.logger.Info("discussions.ingest.done",
		"stored", res.Stored,
		"unchanged", res.Unchanged,
		"summary", res.Summary.String(),
	)
	return res, nil
}
