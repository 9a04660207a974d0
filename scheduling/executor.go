package scheduling

import (
	"context"
)

// CommitResult reports what Commit wrote before it returned.
type CommitResult struct {
	Deleted int
	Created []Occurrence
	Updated int
}

// Commit applies a plan's mutations: deletes, then creates, then updates.
//
// Deleting first means a failure part-way leaves a gap in the series rather
// than duplicates on the same day. The first failing call stops the commit;
// the result says how far it got.
func Commit(ctx context.Context, store OccurrenceStore, plan *Plan) (CommitResult, error) {
	var res CommitResult

	for _, id := range plan.Deletes {
		if err := store.DeleteOccurrence(ctx, id); err != nil {
			return res, storageErr("delete occurrence "+id, err)
		}
		res.Deleted++
	}

	for _, fields := range plan.Creates {
		occ, err := store.CreateOccurrence(ctx, fields)
		if err != nil {
			return res, storageErr("create occurrence "+fields.Day.Key(), err)
		}
		res.Created = append(res.Created, occ)
	}

	for _, u := range plan.Updates {
		if err := store.UpdateOccurrence(ctx, u.ID, u.Fields); err != nil {
			return res, storageErr("update occurrence "+u.ID, err)
		}
		res.Updated++
	}

	return res, nil
}
