package memory

import (
	"context"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

type submissionRepo struct{ u unit }

func copyEntry(e entity.SubmissionEntry) *entity.SubmissionEntry {
	return &e
}

func (r *submissionRepo) Enqueue(ctx context.Context, e *entity.SubmissionEntry) error {
	return r.u.do(func(st *state) error {
		if _, ok := st.submissions[e.ID]; ok {
			return domain.ErrConflict
		}
		st.submissions[e.ID] = *e
		st.subOrder = append(st.subOrder, e.ID)
		return nil
	})
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*entity.SubmissionEntry, error) {
	var out *entity.SubmissionEntry
	err := r.u.do(func(st *state) error {
		if e, ok := st.submissions[id]; ok {
			out = copyEntry(e)
		}
		return nil
	})
	return out, err
}

func (r *submissionRepo) filter(match func(e entity.SubmissionEntry) bool, limit, offset int) ([]*entity.SubmissionEntry, error) {
	var out []*entity.SubmissionEntry
	err := r.u.do(func(st *state) error {
		skipped := 0
		for _, id := range st.subOrder {
			e := st.submissions[id]
			if !match(e) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, copyEntry(e))
		}
		return nil
	})
	return out, err
}

func (r *submissionRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.SubmissionEntry, error) {
	return r.filter(func(e entity.SubmissionEntry) bool { return e.InvoiceID == invoiceID }, 0, 0)
}

func (r *submissionRepo) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*entity.SubmissionEntry, error) {
	return r.filter(func(e entity.SubmissionEntry) bool { return status == "" || e.Status == status }, limit, offset)
}

func (r *submissionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.SubmissionEntry, error) {
	return r.filter(func(e entity.SubmissionEntry) bool { return e.IsDue(now) }, limit, 0)
}

func (r *submissionRepo) CountDue(ctx context.Context, now time.Time) (int, error) {
	due, err := r.ListDue(ctx, now, 0)
	return len(due), err
}

func (r *submissionRepo) Claim(ctx context.Context, id, token string, now time.Time) (*entity.SubmissionEntry, error) {
	var out *entity.SubmissionEntry
	err := r.u.do(func(st *state) error {
		e, ok := st.submissions[id]
		if !ok {
			return domain.ErrNotFound
		}
		if !e.IsDue(now) {
			return domain.ErrClaimConflict
		}
		for otherID, other := range st.submissions {
			if otherID != id && other.InvoiceID == e.InvoiceID && other.InFlight() {
				return domain.ErrClaimConflict
			}
		}
		claimed := now
		e.ClaimedAt = &claimed
		e.ClaimToken = token
		e.UpdatedAt = now
		st.submissions[id] = e
		out = copyEntry(e)
		return nil
	})
	return out, err
}

func (r *submissionRepo) RecordAttempt(ctx context.Context, id, token string, attempts int, at time.Time) error {
	return r.u.do(func(st *state) error {
		e, ok := st.submissions[id]
		if !ok {
			return domain.ErrNotFound
		}
		if e.ClaimToken != token || e.ClaimedAt == nil {
			return domain.ErrClaimConflict
		}
		ts := at
		e.Attempts = attempts
		e.LastAttemptAt = &ts
		e.UpdatedAt = at
		st.submissions[id] = e
		return nil
	})
}

func (r *submissionRepo) Complete(ctx context.Context, done *entity.SubmissionEntry, token string) error {
	return r.u.do(func(st *state) error {
		e, ok := st.submissions[done.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if e.ClaimToken != token || e.ClaimedAt == nil {
			return domain.ErrClaimConflict
		}
		e.Status = done.Status
		e.Attempts = done.Attempts
		e.LastAttemptAt = done.LastAttemptAt
		e.NextAttemptAt = done.NextAttemptAt
		e.Request = done.Request
		e.Response = done.Response
		e.Error = done.Error
		e.ErrorKind = done.ErrorKind
		e.ClaimedAt = nil
		e.ClaimToken = ""
		e.UpdatedAt = done.UpdatedAt
		st.submissions[done.ID] = e
		return nil
	})
}

func (r *submissionRepo) Requeue(ctx context.Context, id string, now time.Time) (*entity.SubmissionEntry, error) {
	var out *entity.SubmissionEntry
	err := r.u.do(func(st *state) error {
		e, ok := st.submissions[id]
		if !ok {
			return domain.ErrNotFound
		}
		if e.Status != entity.SubmissionStatusError || e.InFlight() {
			return domain.ErrInvalidTransition
		}
		e.Status = entity.SubmissionStatusPending
		e.NextAttemptAt = nil
		e.UpdatedAt = now
		st.submissions[id] = e
		out = copyEntry(e)
		return nil
	})
	return out, err
}

func (r *submissionRepo) ReleaseStale(ctx context.Context, before time.Time) (int, error) {
	n := 0
	err := r.u.do(func(st *state) error {
		for id, e := range st.submissions {
			if e.ClaimedAt != nil && e.ClaimedAt.Before(before) {
				e.ClaimedAt = nil
				e.ClaimToken = ""
				st.submissions[id] = e
				n++
			}
		}
		return nil
	})
	return n, err
}
