package evaluation

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/roster"
)

// Submit stores an evaluation header and its scored target as one unit:
// if the target cannot be written, the header is rolled back.
func (svc *Service) Submit(ctx context.Context, ne NewEvaluation) (Submission, error) {
	var sub Submission
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.students.GetStudentByID(ctx, ne.EvaluatorID, tx); err != nil {
			if errors.Cause(err) == roster.ErrStudentNotFound {
				return ErrUnknownStudent
			}
			return errors.Wrap(err, "finding evaluator")
		}

		header, err := svc.repo.CreateEvaluation(ctx, Evaluation{
			EvaluatorID: ne.EvaluatorID,
			SubmittedAt: NowFunc().UTC(),
		}, tx)
		if err != nil {
			return errors.Wrap(err, "inserting evaluation")
		}

		tgt, err := svc.repo.CreateTarget(ctx, Target{
			EvaluationID:      header.ID,
			EvaluateeID:       ne.TeammateID,
			ContributionScore: *ne.ContributionScore,
			PlanMgmtScore:     *ne.PlanMgmtScore,
			TeamClimateScore:  *ne.TeamClimateScore,
			ConflictResScore:  *ne.ConflictResScore,
			OverallRating:     *ne.OverallRating,
			Feedback:          ne.Feedback,
		}, tx)
		if err != nil {
			return errors.Wrap(err, "inserting evaluation target")
		}

		sub = Submission{Evaluation: header, Target: tgt}
		return nil
	})
	return sub, err
}
