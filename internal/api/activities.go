package api

import (
	"context"
	"net/http"
	"time"

	"example.com/tags/internal/auth"
	"example.com/tags/internal/directory"
	"example.com/tags/internal/domain"
	"example.com/tags/internal/membership"
	"example.com/tags/internal/submission"
)

// LocationView is the JSON shape of a place.
type LocationView struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Category         string        `json:"category"`
	JoinType         string        `json:"join_type"`
	MaxParticipants  int           `json:"max_participants,omitempty"`
	Date             string        `json:"date"`
	Time             string        `json:"time"`
	Location         LocationView  `json:"location"`
	CreatedBy        string        `json:"created_by"`
	CreatedAt        time.Time     `json:"created_at"`
	Participants     []string      `json:"participants"`
	ParticipantCount int           `json:"participant_count"`
	AtCapacity       bool          `json:"at_capacity"`
	Joined           bool          `json:"joined"`
	Feedback         *FeedbackView `json:"feedback,omitempty"`
}

// ListActivitiesResponse packages list results. Degraded is set when the store could not be read and
// the empty list stands in for the directory.
type ListActivitiesResponse struct {
	Items    []ActivityView `json:"items"`
	Degraded bool           `json:"degraded"`
}

// PinsResponse packages map pins.
type PinsResponse struct {
	Items    []directory.Pin `json:"items"`
	Degraded bool            `json:"degraded"`
}

// FeedbackView describes the celebratory or farewell cue started by a membership change.
type FeedbackView struct {
	Kind       string    `json:"kind"`
	DurationMS int64     `json:"duration_ms"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// MembershipResponse is returned by join and leave.
type MembershipResponse struct {
	ActivityID string        `json:"activity_id"`
	State      string        `json:"state"`
	Changed    bool          `json:"changed"`
	Feedback   *FeedbackView `json:"feedback,omitempty"`
}

// MembershipListResponse lists the activity ids the caller has joined, as this instance sees them.
type MembershipListResponse struct {
	UserID string   `json:"user_id"`
	Joined []string `json:"joined"`
}

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest = submission.Fields

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	activities, degraded := h.deps.Directory.Snapshot(ctx)
	activities = directory.Filter(activities, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:    h.activityViews(activities, auth.SessionFromContext(r.Context())),
		Degraded: degraded,
	})
}

func (h *Handler) activityPins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	activities, degraded := h.deps.Directory.Snapshot(ctx)
	activities = directory.Filter(activities, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, PinsResponse{Items: directory.Pins(activities), Degraded: degraded})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	activity, err := h.deps.Activities.GetActivity(ctx, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.activityView(*activity, auth.SessionFromContext(r.Context())))
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		h.writeServiceError(w, domain.ErrAuthRequired)
		return
	}

	var req CreateActivityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	activity, err := h.deps.Submissions.Submit(ctx, session, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.activityView(activity, session))
}

func (h *Handler) joinActivity(w http.ResponseWriter, r *http.Request) {
	h.changeMembership(w, r, h.deps.Tracker.Join)
}

func (h *Handler) leaveActivity(w http.ResponseWriter, r *http.Request) {
	h.changeMembership(w, r, h.deps.Tracker.Leave)
}

type membershipOp func(ctx context.Context, session *auth.Session, activityID string) (membership.Outcome, error)

func (h *Handler) changeMembership(w http.ResponseWriter, r *http.Request, op membershipOp) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	outcome, err := op(ctx, auth.SessionFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipResponse(outcome))
}

func (h *Handler) createdActivities(w http.ResponseWriter, r *http.Request) {
	h.mine(w, r, h.deps.Directory.Created)
}

func (h *Handler) joinedActivities(w http.ResponseWriter, r *http.Request) {
	h.mine(w, r, h.deps.Directory.Joined)
}

type mineQuery func(ctx context.Context, session *auth.Session) ([]domain.Activity, bool, error)

func (h *Handler) mine(w http.ResponseWriter, r *http.Request, query mineQuery) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	session := auth.SessionFromContext(r.Context())
	activities, degraded, err := query(ctx, session)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: h.activityViews(activities, session), Degraded: degraded})
}

// myMembership serves the tracker's view, reconciling it from the store on first use.
func (h *Handler) myMembership(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		h.writeServiceError(w, domain.ErrAuthRequired)
		return
	}
	if !h.deps.Tracker.Tracked(session.UserID) {
		ctx, cancel := h.storeContext(r)
		defer cancel()
		if _, err := h.deps.Tracker.Reconcile(ctx, session.UserID); err != nil {
			h.writeServiceError(w, domain.Network(err))
			return
		}
	}
	writeJSON(w, http.StatusOK, MembershipListResponse{
		UserID: session.UserID,
		Joined: h.deps.Tracker.Joined(session.UserID),
	})
}

func (h *Handler) activityViews(activities []domain.Activity, session *auth.Session) []ActivityView {
	views := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, h.activityView(a, session))
	}
	return views
}

// activityView renders a. A user with a tracked view gets joined and feedback from the tracker,
// which may be ahead of the store read that produced a.
func (h *Handler) activityView(a domain.Activity, session *auth.Session) ActivityView {
	view := toActivityView(a, session)
	if session == nil || h.deps.Tracker == nil {
		return view
	}
	if state, tracked := h.deps.Tracker.Lookup(session.UserID, a.ID); tracked {
		view.Joined = state == membership.Joined
	}
	if fb, ok := h.deps.Tracker.ActiveFeedback(session.UserID, a.ID); ok {
		view.Feedback = toFeedbackView(fb)
	}
	return view
}

func toActivityView(a domain.Activity, session *auth.Session) ActivityView {
	participants := a.Participants
	if participants == nil {
		participants = []string{}
	}
	return ActivityView{
		ID:               a.ID,
		Title:            a.Title,
		Description:      a.Description,
		Category:         string(a.Category),
		JoinType:         string(a.JoinType.Kind),
		MaxParticipants:  a.JoinType.Capacity(),
		Date:             a.Date,
		Time:             a.Time,
		Location:         LocationView{Name: a.Location.Name, Latitude: a.Location.Latitude, Longitude: a.Location.Longitude},
		CreatedBy:        a.CreatedBy,
		CreatedAt:        a.CreatedAt,
		Participants:     participants,
		ParticipantCount: len(participants),
		AtCapacity:       a.AtCapacity(),
		Joined:           session != nil && a.HasParticipant(session.UserID),
	}
}

func toFeedbackView(fb membership.Feedback) *FeedbackView {
	return &FeedbackView{
		Kind:       string(fb.Kind),
		DurationMS: fb.Duration.Milliseconds(),
		ExpiresAt:  fb.StartedAt.Add(fb.Duration),
	}
}

func toMembershipResponse(o membership.Outcome) MembershipResponse {
	resp := MembershipResponse{
		ActivityID: o.ActivityID,
		State:      string(o.State),
		Changed:    o.Changed,
	}
	if o.Feedback != nil {
		resp.Feedback = toFeedbackView(*o.Feedback)
	}
	return resp
}
