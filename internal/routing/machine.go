package routing

import (
	"fmt"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

// DefaultCancelReason is used when a workflow is cancelled without a reason.
const DefaultCancelReason = "Workflow cancelled"

// DeclineReason is the cancel reason recorded when a recipient declines.
const DeclineReason = "Recipient declined"

// EnvelopeStatusFunc reads the owning envelope's status. It is only called
// when a transition needs it (cancellation of a dispatched envelope).
type EnvelopeStatusFunc func() (api.EnvelopeStatus, error)

// Transition applies state machine operations to a snapshot in place and
// accumulates the post-commit effects and history events they produce.
//
// A Transition is single-use: build a fresh one for every attempt at a
// mutation, so that effects from an aborted or retried attempt are discarded.
type Transition struct {
	Now     time.Time
	Effects []api.Effect
	Events  []api.WorkflowEvent
}

// NewTransition returns an empty Transition stamped with now.
func NewTransition(now time.Time) *Transition {
	return &Transition{Now: now}
}

// Initialize creates a workflow for the envelope, or resets cur, and replaces
// its steps with one step per recipient.
func (t *Transition) Initialize(
	cur *api.Snapshot,
	envelopeID string,
	recipients []api.Recipient,
	override *api.RoutingType,
	newID func() string,
) (*api.Snapshot, error) {
	if len(recipients) == 0 {
		return nil, api.ErrNoRecipients
	}
	for _, r := range recipients {
		if r.RoutingOrder < 1 {
			return nil, fmt.Errorf("recipient %s: routing order %d must be at least 1", r.ID, r.RoutingOrder)
		}
	}

	rt := DetectRoutingType(RoutingOrders(recipients))
	if override != nil {
		if !override.Valid() {
			return nil, fmt.Errorf("invalid routing type %q", *override)
		}
		rt = *override
	}

	var wf *api.Workflow
	if cur != nil && cur.Workflow != nil {
		if err := checkReinitialize(cur); err != nil {
			return nil, err
		}
		wf = cur.Workflow
	} else {
		wf = &api.Workflow{
			ID:         newID(),
			EnvelopeID: envelopeID,
			CreatedAt:  t.Now,
		}
	}

	wf.Status = api.WorkflowNotStarted
	wf.RoutingType = rt
	wf.CurrentRoutingOrder = 1
	wf.AutoNavigation = true
	wf.ScheduledResumeAt = nil
	wf.StartedAt = nil
	wf.CompletedAt = nil
	wf.CancelledAt = nil
	wf.CancelReason = ""
	wf.UpdatedAt = t.Now

	next := &api.Snapshot{
		Workflow: wf,
		Steps:    BuildSteps(wf.ID, recipients, newID),
	}
	t.event(wf, api.EventWorkflowInitialized, nil, string(rt))
	return next, nil
}

// checkReinitialize allows a reset only while no recipient has been engaged.
func checkReinitialize(cur *api.Snapshot) error {
	switch cur.Workflow.Status {
	case api.WorkflowNotStarted, api.WorkflowCancelled:
		return nil
	case api.WorkflowPaused:
		if cur.Triggered() {
			return api.ErrAlreadyInProgress
		}
		return nil
	case api.WorkflowInProgress:
		return api.ErrAlreadyInProgress
	case api.WorkflowCompleted:
		return api.ErrAlreadyCompleted
	}
	return fmt.Errorf("%w: unknown workflow status %q", api.ErrInconsistentRoutingState, cur.Workflow.Status)
}

// Start begins routing. A scheduledAt in the future parks the workflow as
// paused until the sweeper resumes it.
func (t *Transition) Start(s *api.Snapshot, scheduledAt *time.Time) error {
	if s == nil || s.Workflow == nil {
		return api.ErrWorkflowNotInitialized
	}
	wf := s.Workflow

	switch wf.Status {
	case api.WorkflowNotStarted, api.WorkflowPaused:
	case api.WorkflowInProgress:
		return api.ErrAlreadyInProgress
	case api.WorkflowCompleted:
		return api.ErrAlreadyCompleted
	case api.WorkflowCancelled:
		return api.ErrAlreadyCancelled
	default:
		return fmt.Errorf("%w: unknown workflow status %q", api.ErrInconsistentRoutingState, wf.Status)
	}

	if scheduledAt != nil && scheduledAt.After(t.Now) {
		at := *scheduledAt
		wf.Status = api.WorkflowPaused
		wf.ScheduledResumeAt = &at
		wf.UpdatedAt = t.Now
		t.event(wf, api.EventWorkflowScheduled, nil, at.UTC().Format(time.RFC3339))
		return nil
	}

	order, err := t.enterProgress(s)
	if err != nil {
		return err
	}
	t.event(wf, api.EventWorkflowStarted, nil, "")
	return t.triggerPending(s, order)
}

// Progress records a recipient finishing their step. It reports false when
// there is nothing to progress: no active workflow, or no triggered step for
// the recipient.
func (t *Transition) Progress(s *api.Snapshot, recipientID string, declined bool, envelopeStatus EnvelopeStatusFunc) (bool, error) {
	if s == nil || s.Workflow == nil || s.Workflow.Status != api.WorkflowInProgress {
		return false, nil
	}
	step := s.StepForRecipient(recipientID)
	if step == nil || step.Status != api.StepTriggered {
		return false, nil
	}

	if declined {
		if err := t.finish(s.Workflow, step, api.StepDeclined); err != nil {
			return false, err
		}
		if err := t.cancel(s, DeclineReason, envelopeStatus); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := t.finish(s.Workflow, step, api.StepCompleted); err != nil {
		return false, err
	}
	if err := t.advance(s); err != nil {
		return false, err
	}
	return true, nil
}

// advance moves to the next wave once every step of the current one has
// completed, or completes the workflow when no wave is left.
func (t *Transition) advance(s *api.Snapshot) error {
	wf := s.Workflow
	current := s.StepsAt(wf.CurrentRoutingOrder)
	if len(current) == 0 {
		return fmt.Errorf("%w: no step at routing order %d", api.ErrInconsistentRoutingState, wf.CurrentRoutingOrder)
	}
	for _, st := range current {
		if st.Status != api.StepCompleted {
			return nil
		}
	}

	wf.UpdatedAt = t.Now
	if next, ok := s.NextOrderAfter(wf.CurrentRoutingOrder); ok {
		wf.CurrentRoutingOrder = next
		t.event(wf, api.EventWorkflowAdvanced, nil, fmt.Sprintf("routing order %d", next))
		return t.triggerPending(s, next)
	}

	now := t.Now
	wf.Status = api.WorkflowCompleted
	wf.CompletedAt = &now
	t.event(wf, api.EventWorkflowCompleted, nil, "")
	t.effect(api.Effect{Kind: api.EffectCompleteEnvelope, EnvelopeID: wf.EnvelopeID, WorkflowID: wf.ID})
	return nil
}

// Pause stops advancement. Triggered steps stay triggered.
func (t *Transition) Pause(s *api.Snapshot, resumeAt *time.Time) error {
	if s == nil || s.Workflow == nil {
		return api.ErrWorkflowNotInitialized
	}
	wf := s.Workflow
	if wf.Status != api.WorkflowInProgress {
		return api.ErrNotInProgress
	}

	wf.Status = api.WorkflowPaused
	wf.ScheduledResumeAt = nil
	detail := ""
	if resumeAt != nil {
		at := *resumeAt
		wf.ScheduledResumeAt = &at
		detail = at.UTC().Format(time.RFC3339)
	}
	wf.UpdatedAt = t.Now
	t.event(wf, api.EventWorkflowPaused, nil, detail)
	return nil
}

// Resume continues a paused workflow. Pending steps of the current wave are
// triggered only if none of them is already triggered, so recipients who
// were notified before the pause are not notified twice.
func (t *Transition) Resume(s *api.Snapshot) error {
	if s == nil || s.Workflow == nil {
		return api.ErrWorkflowNotInitialized
	}
	wf := s.Workflow
	if wf.Status != api.WorkflowPaused {
		return api.ErrNotPaused
	}

	order, err := t.enterProgress(s)
	if err != nil {
		return err
	}
	t.event(wf, api.EventWorkflowResumed, nil, "")

	for _, st := range s.StepsAt(order) {
		if st.Status == api.StepTriggered {
			return nil
		}
	}
	return t.triggerPending(s, order)
}

// Cancel stops the workflow and fails every open step. A dispatched envelope
// is voided after commit.
func (t *Transition) Cancel(s *api.Snapshot, reason string, envelopeStatus EnvelopeStatusFunc) error {
	if s == nil || s.Workflow == nil {
		return api.ErrWorkflowNotInitialized
	}
	switch s.Workflow.Status {
	case api.WorkflowCompleted:
		return api.ErrAlreadyCompleted
	case api.WorkflowCancelled:
		return api.ErrAlreadyCancelled
	}
	return t.cancel(s, reason, envelopeStatus)
}

func (t *Transition) cancel(s *api.Snapshot, reason string, envelopeStatus EnvelopeStatusFunc) error {
	if reason == "" {
		reason = DefaultCancelReason
	}
	wf := s.Workflow
	now := t.Now
	wf.Status = api.WorkflowCancelled
	wf.CancelledAt = &now
	wf.CancelReason = reason
	wf.ScheduledResumeAt = nil
	wf.UpdatedAt = now

	for _, st := range s.Steps {
		if st.Status == api.StepPending || st.Status == api.StepTriggered {
			if err := t.finish(wf, st, api.StepFailed); err != nil {
				return err
			}
		}
	}
	t.event(wf, api.EventWorkflowCancelled, nil, reason)

	if envelopeStatus == nil {
		return nil
	}
	status, err := envelopeStatus()
	if err != nil {
		return err
	}
	if status.Dispatched() {
		t.effect(api.Effect{Kind: api.EffectVoidEnvelope, EnvelopeID: wf.EnvelopeID, WorkflowID: wf.ID, Reason: reason})
	}
	return nil
}

// enterProgress moves the workflow to InProgress at the lowest open routing
// order and returns that order.
func (t *Transition) enterProgress(s *api.Snapshot) (int, error) {
	order, ok := s.LowestOpenOrder()
	if !ok {
		return 0, fmt.Errorf("%w: workflow %s has no open steps", api.ErrInconsistentRoutingState, s.Workflow.ID)
	}
	wf := s.Workflow
	wf.Status = api.WorkflowInProgress
	wf.CurrentRoutingOrder = order
	wf.ScheduledResumeAt = nil
	if wf.StartedAt == nil {
		now := t.Now
		wf.StartedAt = &now
	}
	wf.UpdatedAt = t.Now
	return order, nil
}

func (t *Transition) triggerPending(s *api.Snapshot, order int) error {
	for _, st := range s.StepsAt(order) {
		if st.Status != api.StepPending {
			continue
		}
		if err := t.move(st, api.StepTriggered); err != nil {
			return err
		}
		now := t.Now
		st.TriggeredAt = &now
		t.event(s.Workflow, api.EventStepTriggered, st, "")
		t.effect(api.Effect{
			Kind:        api.EffectNotifyRecipient,
			EnvelopeID:  s.Workflow.EnvelopeID,
			WorkflowID:  s.Workflow.ID,
			RecipientID: st.RecipientID,
		})
	}
	return nil
}

func (t *Transition) finish(wf *api.Workflow, st *api.WorkflowStep, status api.StepStatus) error {
	if err := t.move(st, status); err != nil {
		return err
	}
	now := t.Now
	st.CompletedAt = &now

	var typ api.EventType
	switch status {
	case api.StepCompleted:
		typ = api.EventStepCompleted
	case api.StepDeclined:
		typ = api.EventStepDeclined
	case api.StepFailed:
		typ = api.EventStepFailed
	}
	t.event(wf, typ, st, "")
	return nil
}

func (t *Transition) move(st *api.WorkflowStep, next api.StepStatus) error {
	if !st.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: step %s cannot move from %s to %s",
			api.ErrInconsistentRoutingState, st.ID, st.Status, next)
	}
	st.Status = next
	return nil
}

func (t *Transition) event(wf *api.Workflow, typ api.EventType, st *api.WorkflowStep, detail string) {
	ev := api.WorkflowEvent{
		EnvelopeID: wf.EnvelopeID,
		WorkflowID: wf.ID,
		At:         t.Now,
		Type:       typ,
		Detail:     detail,
	}
	if st != nil {
		ev.StepID = st.ID
		ev.RecipientID = st.RecipientID
		ev.RoutingOrder = st.RoutingOrder
	}
	t.Events = append(t.Events, ev)
}

func (t *Transition) effect(e api.Effect) {
	t.Effects = append(t.Effects, e)
}
