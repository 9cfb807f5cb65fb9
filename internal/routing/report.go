package routing

import (
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

// BuildReport projects a snapshot into a status report as of now.
// A nil snapshot yields a report with HasWorkflow false.
func BuildReport(envelopeID string, s *api.Snapshot, recipients []api.Recipient, now time.Time) *api.StatusReport {
	rep := &api.StatusReport{EnvelopeID: envelopeID}
	if s == nil || s.Workflow == nil {
		return rep
	}
	wf := s.Workflow

	rep.HasWorkflow = true
	rep.WorkflowID = wf.ID
	rep.Status = wf.Status
	rep.RoutingType = wf.RoutingType
	rep.CurrentRoutingOrder = wf.CurrentRoutingOrder
	rep.AutoNavigation = wf.AutoNavigation

	if wf.ScheduledResumeAt != nil {
		at := *wf.ScheduledResumeAt
		rep.Schedule = api.ScheduleInfo{
			Enabled:  true,
			ResumeAt: &at,
			Passed:   !at.After(now),
		}
	}

	byID := indexRecipients(recipients)
	rep.Steps = make([]api.StepReport, 0, len(s.Steps))
	for _, st := range s.Steps {
		r := byID[st.RecipientID]
		rep.Steps = append(rep.Steps, api.StepReport{
			StepID:         st.ID,
			RecipientID:    st.RecipientID,
			RecipientName:  r.Name,
			RecipientEmail: r.Email,
			Action:         st.Action,
			RoutingOrder:   st.RoutingOrder,
			SequenceIndex:  st.SequenceIndex,
			Status:         st.Status,
			TriggeredAt:    st.TriggeredAt,
			CompletedAt:    st.CompletedAt,
		})

		rep.Counts.Total++
		switch st.Status {
		case api.StepPending:
			rep.Counts.Pending++
		case api.StepTriggered:
			rep.Counts.InProgress++
		case api.StepCompleted:
			rep.Counts.Completed++
		case api.StepDeclined:
			rep.Counts.Declined++
		case api.StepFailed:
			rep.Counts.Failed++
		}
	}
	return rep
}
