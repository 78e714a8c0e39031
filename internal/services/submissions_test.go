package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskcoin/backend/internal/models"
)

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 2, 20)

	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done, see link")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, sub.Status)
	assert.Equal(t, int64(20), sub.PayableAmount)
	assert.Equal(t, buyer, sub.BuyerID)
	assert.Equal(t, task.Title, sub.TaskTitle)

	stored, _ := f.task(task.ID)
	assert.Equal(t, 2, stored.RequiredWorkers, "submitting does not consume a slot")
	assert.Equal(t, int64(0), f.balance(worker))
	assert.Len(t, f.notes.to(buyer), 1)
}

func TestSubmit_Errors(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 1, 20)
	full := f.newTask(t, buyer, 0, 20)
	ctx := context.Background()

	_, err := f.submissions.Submit(ctx, worker, uuid.New(), "x")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.submissions.Submit(ctx, worker, full.ID, "x")
	require.ErrorIs(t, err, models.ErrSlotsExhausted)

	_, err = f.submissions.Submit(ctx, worker, task.ID, "x")
	require.NoError(t, err)
	_, err = f.submissions.Submit(ctx, worker, task.ID, "again")
	require.ErrorIs(t, err, models.ErrDuplicateSubmission)
	assert.Equal(t, models.KindDuplicateSubmission, models.ErrorKind(err))
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 5)
	task := f.newTask(t, buyer, 5, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)

	approved, err := f.submissions.Approve(context.Background(), buyer, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Equal(t, int64(25), f.balance(worker))
	stored, _ := f.task(task.ID)
	assert.Equal(t, 4, stored.RequiredWorkers)
	assert.Equal(t, models.StatusApproved, f.submission(sub.ID).Status)

	earnings := f.entries(models.EntryTaskEarning)
	require.Len(t, earnings, 1)
	assert.Equal(t, worker, earnings[0].AccountID)
	require.NotNil(t, earnings[0].SubmissionID)
	assert.Equal(t, sub.ID, *earnings[0].SubmissionID)

	notes := f.notes.to(worker)
	require.Len(t, notes, 1)
	assert.Equal(t, "/dashboard/worker-home", notes[0].ActionRoute)
}

func TestApprove_SecondDecisionIsInvalidState(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 2, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)

	_, err = f.submissions.Approve(context.Background(), buyer, sub.ID)
	require.NoError(t, err)
	balance := f.balance(worker)
	stored, _ := f.task(task.ID)

	_, err = f.submissions.Approve(context.Background(), buyer, sub.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)
	_, err = f.submissions.Reject(context.Background(), buyer, sub.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)

	assert.Equal(t, balance, f.balance(worker))
	after, _ := f.task(task.ID)
	assert.Equal(t, stored.RequiredWorkers, after.RequiredWorkers)
	assert.Len(t, f.entries(models.EntryTaskEarning), 1)
}

func TestApprove_Errors(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	other := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 2, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)

	_, err = f.submissions.Approve(context.Background(), other, sub.ID)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.submissions.Reject(context.Background(), other, sub.ID)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.submissions.Approve(context.Background(), buyer, uuid.New())
	require.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, models.StatusPending, f.submission(sub.ID).Status)
	assert.Equal(t, int64(0), f.balance(worker))
}

func TestApprove_FailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	task := f.newTask(t, buyer, 2, 20)

	// The worker has no account row, so the credit fails after the
	// submission and task rows were read.
	ghost := uuid.New()
	sub, err := f.submissions.Submit(context.Background(), ghost, task.ID, "done")
	require.NoError(t, err)

	_, err = f.submissions.Approve(context.Background(), buyer, sub.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, models.StatusPending, f.submission(sub.ID).Status)
	stored, _ := f.task(task.ID)
	assert.Equal(t, 2, stored.RequiredWorkers)
	assert.Empty(t, f.entries(models.EntryTaskEarning))
	assert.Empty(t, f.notes.to(ghost))
}

func TestApprove_NotifierFailureDoesNotFailApproval(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 1, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)

	f.notes.fails = true
	_, err = f.submissions.Approve(context.Background(), buyer, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), f.balance(worker))
}

func TestReject_ReturnsSlot(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 2, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)
	before := f.holdings()

	rejected, err := f.submissions.Reject(context.Background(), buyer, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, int64(0), f.balance(worker))

	stored, _ := f.task(task.ID)
	assert.Equal(t, 3, stored.RequiredWorkers)
	// Reopening a slot that was never consumed grows the open escrow.
	assert.Equal(t, before+20, f.holdings())

	notes := f.notes.to(worker)
	require.Len(t, notes, 1)
	assert.Equal(t, "/dashboard/my-submissions", notes[0].ActionRoute)
}

func TestApprove_ConcurrentRace(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 3, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.submissions.Approve(context.Background(), buyer, sub.ID)
			} else {
				_, errs[i] = f.submissions.Reject(context.Background(), buyer, sub.ID)
			}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)

	stored, _ := f.task(task.ID)
	switch f.submission(sub.ID).Status {
	case models.StatusApproved:
		assert.Equal(t, int64(20), f.balance(worker))
		assert.Equal(t, 2, stored.RequiredWorkers)
	case models.StatusRejected:
		assert.Equal(t, int64(0), f.balance(worker))
		assert.Equal(t, 4, stored.RequiredWorkers)
	default:
		t.Fatalf("submission left in status %q", f.submission(sub.ID).Status)
	}
}

func TestApprove_ConcurrentApprovesCreditOnce(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 3, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.submissions.Approve(context.Background(), buyer, sub.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, invalid int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, models.ErrInvalidState):
			invalid++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, invalid)
	assert.Equal(t, int64(20), f.balance(worker))
	assert.Len(t, f.entries(models.EntryTaskEarning), 1)
}

// Several workers may hold pending claims on the last slot. Approving all of
// them pays each worker while the slot count stops at zero, so the buyer pays
// out more than was escrowed.
func TestOverSubscription(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 100)
	w1 := f.account(models.RoleWorker, 0)
	w2 := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 1, 30)
	start := f.holdings()

	s1, err := f.submissions.Submit(context.Background(), w1, task.ID, "one")
	require.NoError(t, err)
	s2, err := f.submissions.Submit(context.Background(), w2, task.ID, "two")
	require.NoError(t, err)

	_, err = f.submissions.Approve(context.Background(), buyer, s1.ID)
	require.NoError(t, err)
	_, err = f.submissions.Approve(context.Background(), buyer, s2.ID)
	require.NoError(t, err)

	stored, _ := f.task(task.ID)
	assert.Equal(t, 0, stored.RequiredWorkers)
	assert.Equal(t, int64(30), f.balance(w1))
	assert.Equal(t, int64(30), f.balance(w2))
	assert.Equal(t, start+30, f.holdings(), "second approval is paid without escrow backing it")
}

// Deleting a task refunds every open slot even while a submission is still
// pending against it. Approving that submission afterwards pays the worker a
// second time from nowhere.
func TestDanglingSubmissionAfterTaskDeletion(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 2, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)
	start := f.holdings()

	refund, balance, err := f.escrow.DeleteTask(context.Background(), buyer, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), refund, "pending claim is refunded along with the open slot")
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, start, f.holdings())

	_, err = f.submissions.Approve(context.Background(), buyer, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), f.balance(worker))
	assert.Equal(t, int64(1000), f.balance(buyer))
	_, ok := f.task(task.ID)
	assert.False(t, ok)
	assert.Equal(t, start+20, f.holdings(), "approval after deletion mints the payable amount")
}

func TestRejectAfterTaskDeletion(t *testing.T) {
	f := newFixture(t)
	buyer := f.account(models.RoleBuyer, 1000)
	worker := f.account(models.RoleWorker, 0)
	task := f.newTask(t, buyer, 1, 20)
	sub, err := f.submissions.Submit(context.Background(), worker, task.ID, "done")
	require.NoError(t, err)
	_, _, err = f.escrow.DeleteTask(context.Background(), buyer, task.ID)
	require.NoError(t, err)

	_, err = f.submissions.Reject(context.Background(), buyer, sub.ID)
	require.NoError(t, err)
	_, ok := f.task(task.ID)
	assert.False(t, ok, "reject must not resurrect the task")
}
