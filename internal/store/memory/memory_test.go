package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

func TestNew_SeedsHealthMetrics(t *testing.T) {
	s := New()
	metrics, err := s.ListHealthMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 4 {
		t.Fatalf("got %d metrics, want 4", len(metrics))
	}
	if metrics[0].Name != model.MetricAPIErrorRate {
		t.Errorf("first metric = %q", metrics[0].Name)
	}
	th, err := metrics[1].ParseThreshold()
	if err != nil {
		t.Fatal(err)
	}
	if th.MaxLoadTime != 3000 {
		t.Errorf("MaxLoadTime = %v, want 3000", th.MaxLoadTime)
	}
	th, err = metrics[2].ParseThreshold()
	if err != nil {
		t.Fatal(err)
	}
	if metrics[2].Name != model.MetricLoginFailureRate || th.FailureRate != 0.1 || th.TimeWindow != 600 || th.ErrorCount != 0 {
		t.Errorf("login threshold = %s %+v, want failure_rate 0.1 over 600s", metrics[2].Name, th)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &model.User{Username: "alice", UserType: model.UserTypeAdmin, TenantID: "t1"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if u.ID != 1 {
		t.Errorf("ID = %d, want 1", u.ID)
	}
	if err := s.CreateUser(ctx, &model.User{Username: "alice"}); err == nil {
		t.Error("expected duplicate username error")
	}
	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetUserByUsername = %+v, %v", got, err)
	}
	if _, err := s.GetUser(ctx, 99); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetUser missing: err = %v, want ErrNoRows", err)
	}
	n, _ := s.CountUsers(ctx, "t1")
	if n != 1 {
		t.Errorf("CountUsers = %d", n)
	}
	admin, err := s.FirstAdminUser(ctx, "t1")
	if err != nil || admin.Username != "alice" {
		t.Errorf("FirstAdminUser = %+v, %v", admin, err)
	}
	if _, err := s.FirstAdminUser(ctx, "t2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("FirstAdminUser other tenant: err = %v", err)
	}
}

func TestSessions_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	_ = s.CreateSession(ctx, &model.Session{Token: "old", UserID: 1, ExpiresAt: now.Add(-time.Minute)})
	_ = s.CreateSession(ctx, &model.Session{Token: "new", UserID: 1, ExpiresAt: now.Add(time.Hour)})

	n, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredSessions = %d, %v", n, err)
	}
	if _, err := s.GetSession(ctx, "old"); !errors.Is(err, sql.ErrNoRows) {
		t.Error("expired session should be gone")
	}
	if _, err := s.GetSession(ctx, "new"); err != nil {
		t.Errorf("live session: %v", err)
	}
}

func TestTenants(t *testing.T) {
	ctx := context.Background()
	s := New()
	tn := &model.Tenant{Name: "Acme", Status: model.TenantActive}
	if err := s.CreateTenant(ctx, tn); err != nil {
		t.Fatal(err)
	}
	if tn.ID == "" {
		t.Fatal("tenant id not assigned")
	}
	created := tn.CreatedAt
	tn.Name = "Acme Ltd"
	tn.CreatedAt = time.Time{}
	if err := s.UpdateTenant(ctx, tn); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetTenant(ctx, tn.ID)
	if got.Name != "Acme Ltd" || !got.CreatedAt.Equal(created) {
		t.Errorf("after update: %+v", got)
	}
	if err := s.UpdateTenant(ctx, &model.Tenant{ID: "missing"}); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("UpdateTenant missing: %v", err)
	}
}

func TestNetwork(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := &model.BusinessProfile{UserID: 1, BusinessName: "Alpha Accounting", Industry: "Finance"}
	b := &model.BusinessProfile{UserID: 2, BusinessName: "Beta Bakery", Industry: "Food"}
	for _, p := range []*model.BusinessProfile{a, b} {
		if err := s.CreateBusinessProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CreateBusinessProfile(ctx, &model.BusinessProfile{UserID: 1}); err == nil {
		t.Error("expected one profile per user")
	}

	if err := s.CreateFollow(ctx, &model.Follow{FollowerID: a.ID, FollowingID: b.ID}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateFollow(ctx, &model.Follow{FollowerID: a.ID, FollowingID: b.ID}); err == nil {
		t.Error("expected duplicate follow error")
	}
	if err := s.CreateFollow(ctx, &model.Follow{FollowerID: a.ID, FollowingID: a.ID}); err == nil {
		t.Error("expected self-follow error")
	}
	_ = s.AdjustFollowCounts(ctx, a.ID, b.ID, 1)
	_ = s.AdjustFollowCounts(ctx, a.ID, b.ID, -5)
	gotB, _ := s.GetBusinessProfile(ctx, b.ID)
	if gotB.Followers != 0 {
		t.Errorf("followers = %d, want clamped 0", gotB.Followers)
	}

	found, _ := s.ListBusinessProfiles(ctx, "BAKERY", 0)
	if len(found) != 1 || found[0].ID != b.ID {
		t.Errorf("search = %+v", found)
	}

	post := &model.BusinessPost{ProfileID: b.ID, Content: "Fresh bread"}
	if err := s.CreatePost(ctx, post); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateComment(ctx, &model.PostComment{PostID: post.ID, ProfileID: a.ID, Content: "Yum"}); err != nil {
		t.Fatal(err)
	}
	liked, err := s.LikePost(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if liked.Likes != 1 || liked.Comments != 1 {
		t.Errorf("post counters = %d likes, %d comments", liked.Likes, liked.Comments)
	}

	ids, _ := s.ListFollowingIDs(ctx, a.ID)
	feed, _ := s.ListPosts(ctx, ids, 10)
	if len(feed) != 1 || feed[0].Profile == nil || feed[0].Profile.BusinessName != "Beta Bakery" {
		t.Errorf("feed = %+v", feed)
	}
	empty, _ := s.ListPosts(ctx, []int64{}, 10)
	if empty != nil {
		t.Errorf("empty follow set returned %d posts", len(empty))
	}

	comments, _ := s.ListComments(ctx, post.ID)
	if len(comments) != 1 || comments[0].Profile == nil {
		t.Errorf("comments = %+v", comments)
	}

	removed, _ := s.DeleteFollow(ctx, a.ID, b.ID)
	if !removed {
		t.Error("DeleteFollow reported nothing removed")
	}
	removed, _ = s.DeleteFollow(ctx, a.ID, b.ID)
	if removed {
		t.Error("second DeleteFollow should report false")
	}
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateMessage(ctx, &model.Message{SenderID: 1, ReceiverID: 2, Content: "hi"})
	_ = s.CreateMessage(ctx, &model.Message{SenderID: 2, ReceiverID: 1, Content: "hello"})
	_ = s.CreateMessage(ctx, &model.Message{SenderID: 3, ReceiverID: 2, Content: "hey"})

	thread, _ := s.ListMessagesBetween(ctx, 1, 2)
	if len(thread) != 2 || thread[0].Content != "hi" {
		t.Fatalf("thread = %+v", thread)
	}
	if err := s.MarkMessagesRead(ctx, 2, 1); err != nil {
		t.Fatal(err)
	}
	inbox, _ := s.ListMessagesForProfile(ctx, 2)
	if len(inbox) != 3 {
		t.Fatalf("inbox has %d messages", len(inbox))
	}
	for _, m := range inbox {
		if m.SenderID == 1 && !m.Read {
			t.Error("message from 1 should be read")
		}
		if m.SenderID == 3 && m.Read {
			t.Error("message from 3 should be unread")
		}
	}
}

func TestCloneOperations(t *testing.T) {
	ctx := context.Background()
	s := New()
	op := &model.CloneOperation{RequestID: "req-1", TemplateID: 1, Status: model.CloneInProgress}
	if err := s.CreateCloneOperation(ctx, op); err != nil {
		t.Fatal(err)
	}
	done := time.Now()
	op.Status = model.CloneCompleted
	op.CompletedAt = &done
	if err := s.UpdateCloneOperation(ctx, op); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetCloneOperation(ctx, "req-1")
	if err != nil || got.Status != model.CloneCompleted || got.CompletedAt == nil {
		t.Errorf("GetCloneOperation = %+v, %v", got, err)
	}
	if err := s.UpdateCloneOperation(ctx, &model.CloneOperation{RequestID: "nope"}); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("update missing: %v", err)
	}
}

func TestSOT(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetLatestSOTDeclaration(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("empty latest: %v", err)
	}
	d := &model.SOTDeclaration{InstanceID: "i1", InstanceType: "client_site"}
	_ = s.CreateSOTDeclaration(ctx, d)
	if d.Status != model.DeclarationPending || d.ToolsSupported == nil {
		t.Errorf("defaults not applied: %+v", d)
	}
	d2 := &model.SOTDeclaration{InstanceID: "i2", CreatedAt: d.CreatedAt}
	_ = s.CreateSOTDeclaration(ctx, d2)
	latest, _ := s.GetLatestSOTDeclaration(ctx)
	if latest.ID != d2.ID {
		t.Errorf("latest = %d, want %d (id tie-break)", latest.ID, d2.ID)
	}

	p := &model.SOTClientProfile{BusinessID: "b1", BusinessName: "One", SyncStatus: "synced"}
	_ = s.UpsertSOTClientProfile(ctx, p)
	firstID := p.ID
	p2 := &model.SOTClientProfile{BusinessID: "b1", BusinessName: "One Renamed", SyncStatus: "synced"}
	_ = s.UpsertSOTClientProfile(ctx, p2)
	if p2.ID != firstID {
		t.Errorf("upsert changed id %d -> %d", firstID, p2.ID)
	}
	got, _ := s.GetSOTClientProfile(ctx, "")
	if got.BusinessName != "One Renamed" {
		t.Errorf("latest profile = %q", got.BusinessName)
	}
}

func TestIncidents(t *testing.T) {
	ctx := context.Background()
	s := New()
	inc := &model.HealthIncident{MetricID: 1, Status: model.IncidentActive, Severity: model.SeverityWarning}
	if err := s.CreateHealthIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}
	active, err := s.GetActiveIncident(ctx, 1)
	if err != nil || active.MetricName != model.MetricAPIErrorRate {
		t.Fatalf("GetActiveIncident = %+v, %v", active, err)
	}
	at := time.Now().UTC()
	_ = s.SetIncidentStatus(ctx, inc.ID, model.IncidentResolved, at)
	if _, err := s.GetActiveIncident(ctx, 1); !errors.Is(err, sql.ErrNoRows) {
		t.Error("resolved incident still active")
	}
	got, _ := s.GetHealthIncident(ctx, inc.ID)
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(at) {
		t.Errorf("ResolvedAt = %v", got.ResolvedAt)
	}

	_ = s.CreateHealthNotification(ctx, &model.HealthNotification{IncidentID: inc.ID, Type: model.NotifyAdmin})
	_ = s.CreateHealthNotification(ctx, &model.HealthNotification{IncidentID: inc.ID, Type: model.NotifyUser})
	pending, _ := s.ListPendingNotifications(ctx, model.NotifyAdmin)
	if len(pending) != 1 {
		t.Fatalf("pending admin = %d", len(pending))
	}
	_ = s.MarkNotificationDelivered(ctx, pending[0].ID, at)
	pending, _ = s.ListPendingNotifications(ctx, "")
	if len(pending) != 1 || pending[0].Type != model.NotifyUser {
		t.Errorf("pending after delivery = %+v", pending)
	}
}

func TestDeleteHealthMetricLogsBefore(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	_ = s.CreateHealthMetricLog(ctx, &model.HealthMetricLog{MetricID: 1, RecordedAt: now.Add(-2 * time.Hour)})
	_ = s.CreateHealthMetricLog(ctx, &model.HealthMetricLog{MetricID: 1, RecordedAt: now})
	n, _ := s.DeleteHealthMetricLogsBefore(ctx, now.Add(-time.Hour))
	if n != 1 || len(s.MetricLogs(1)) != 1 {
		t.Errorf("deleted %d, remaining %d", n, len(s.MetricLogs(1)))
	}
}

func TestAnalyticsSummary(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	for _, e := range []*model.EmbedEventRecord{
		{TenantID: "t1", SessionID: "s1", Kind: model.EmbedPageView, PageURL: "/b", CreatedAt: now},
		{TenantID: "t1", SessionID: "s1", Kind: model.EmbedPageView, PageURL: "/a", CreatedAt: now},
		{TenantID: "t1", SessionID: "s2", Kind: model.EmbedPageView, PageURL: "/b", CreatedAt: now},
		{TenantID: "t1", SessionID: "s2", Kind: model.EmbedEvent, EventName: "click", CreatedAt: now},
		{TenantID: "t2", SessionID: "s3", Kind: model.EmbedPageView, PageURL: "/a", CreatedAt: now},
		{TenantID: "t1", SessionID: "s4", Kind: model.EmbedPageView, PageURL: "/old", CreatedAt: now.Add(-48 * time.Hour)},
	} {
		if err := s.CreateEmbedEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	sum, err := s.GetAnalyticsSummary(ctx, "t1", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sum.PageViews != 3 || sum.Events != 1 || sum.UniqueSessions != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.TopPages) != 2 || sum.TopPages[0].PageURL != "/b" || sum.TopPages[1].PageURL != "/a" {
		t.Errorf("top pages = %+v", sum.TopPages)
	}
}

func TestAgentStats(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := &model.AgentConversation{ConversationID: "conv_1", Mode: model.AgentModePublic,
		Messages: []model.ChatMessage{{Role: "user", Content: "hi"}}}
	_ = s.UpsertAgentConversation(ctx, c)
	c.Messages = append(c.Messages, model.ChatMessage{Role: "assistant", Content: "hello"})
	_ = s.UpsertAgentConversation(ctx, c)
	if got := s.Conversation("conv_1"); got == nil || len(got.Messages) != 2 {
		t.Fatalf("conversation = %+v", got)
	}
	_ = s.CreateConversationInsight(ctx, &model.ConversationInsight{ConversationID: "conv_1", Mode: "public", LeadPotential: true})
	_ = s.CreateConversationInsight(ctx, &model.ConversationInsight{ConversationID: "conv_1", Mode: "admin"})

	st, _ := s.GetAgentStats(ctx)
	if st.TotalConversations != 1 || st.TotalInsights != 2 || st.LeadPotential != 1 {
		t.Errorf("stats = %+v", st)
	}
	pub, _ := s.ListConversationInsights(ctx, "public", 0)
	if len(pub) != 1 || pub[0].Sentiment != "neutral" {
		t.Errorf("public insights = %+v", pub)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateTenant(ctx, &model.Tenant{ID: "t1", Name: "x"}); err != nil {
			return err
		}
		return tx.RunInTransaction(ctx, func(inner store.Store) error {
			_ = inner.CreateUser(ctx, &model.User{Username: "u"})
			return boom
		})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := s.GetTenant(ctx, "t1"); !errors.Is(err, sql.ErrNoRows) {
		t.Error("tenant survived rollback")
	}
	if n, _ := s.CountUsers(ctx, ""); n != 0 {
		t.Errorf("users after rollback = %d", n)
	}
	// Sequences roll back too.
	u := &model.User{Username: "after"}
	_ = s.CreateUser(ctx, u)
	if u.ID != 1 {
		t.Errorf("ID after rollback = %d, want 1", u.ID)
	}
}

func TestFailOn(t *testing.T) {
	s := New()
	boom := errors.New("db down")
	s.FailOn("ListTenants", boom)
	if _, err := s.ListTenants(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want injected", err)
	}
	s.FailOn("ListTenants", nil)
	if _, err := s.ListTenants(context.Background()); err != nil {
		t.Errorf("after clear: %v", err)
	}
}
