package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type cohortRepoStub struct {
	cohorts     map[string]*models.Cohort
	memberships []*models.CohortMembership
	nextID      int
}

func newCohortRepoStub() *cohortRepoStub {
	return &cohortRepoStub{cohorts: make(map[string]*models.Cohort)}
}

func (s *cohortRepoStub) Create(ctx context.Context, cohort *models.Cohort) error {
	if cohort.ID == "" {
		s.nextID++
		cohort.ID = fmt.Sprintf("c0a0b7aa-0000-4000-8000-%012d", s.nextID)
	}
	cohort.CreatedAt = time.Now().UTC()
	s.cohorts[cohort.ID] = cohort
	return nil
}

func (s *cohortRepoStub) FindByID(ctx context.Context, id string) (*models.Cohort, error) {
	if c, ok := s.cohorts[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *cohortRepoStub) List(ctx context.Context) ([]models.Cohort, error) {
	var out []models.Cohort
	for _, c := range s.cohorts {
		out = append(out, *c)
	}
	return out, nil
}

func (s *cohortRepoStub) AddMember(ctx context.Context, m *models.CohortMembership) error {
	m.CreatedAt = time.Now().UTC()
	s.memberships = append(s.memberships, m)
	return nil
}

func (s *cohortRepoStub) RemoveMember(ctx context.Context, cohortID, userID string) error {
	for _, m := range s.memberships {
		if m.CohortID == cohortID && m.UserID == userID && m.Active {
			m.Active = false
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *cohortRepoStub) ActiveMembership(ctx context.Context, userID, cohortID string) (*models.CohortMembership, error) {
	for _, m := range s.memberships {
		if m.CohortID == cohortID && m.UserID == userID && m.Active {
			return m, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *cohortRepoStub) ListMembers(ctx context.Context, cohortID string) ([]models.CohortMembership, error) {
	var out []models.CohortMembership
	for _, m := range s.memberships {
		if m.CohortID == cohortID && m.Active {
			out = append(out, *m)
		}
	}
	return out, nil
}

func activeMentor() *models.User {
	return &models.User{ID: "3f1c9b0e-1f36-4a96-a6e1-000000000003", Email: "otieno@fgc-kenya.org", Role: models.RoleMentor, Active: true}
}

func newCohortTestService(repo *cohortRepoStub, audit *auditRepoStub) *CohortService {
	users := newUserRepoStub(activeStudent(), activeSuperAdmin(), activeMentor())
	return NewCohortService(repo, users, audit, nil, nil)
}

func seedCohort(repo *cohortRepoStub, active bool) *models.Cohort {
	cohort := &models.Cohort{Name: "FGC 2026", Year: 2026, Active: active}
	_ = repo.Create(context.Background(), cohort)
	return cohort
}

func TestAddMemberToActiveCohort(t *testing.T) {
	repo := newCohortRepoStub()
	audit := &auditRepoStub{}
	svc := newCohortTestService(repo, audit)
	cohort := seedCohort(repo, true)

	member, err := svc.AddMember(context.Background(), adminClaims(), cohort.ID, models.AddMemberRequest{
		UserID:  activeStudent().ID,
		SubRole: "STUDENT",
	}, models.RequestMeta{})
	require.NoError(t, err)
	require.True(t, member.Active)
	require.Equal(t, models.CohortRoleStudent, member.SubRole)
	require.Contains(t, audit.actions(), models.AuditActionCohortMemberChange)
}

func TestAddMemberClosedCohort(t *testing.T) {
	repo := newCohortRepoStub()
	svc := newCohortTestService(repo, &auditRepoStub{})
	cohort := seedCohort(repo, false)

	_, err := svc.AddMember(context.Background(), adminClaims(), cohort.ID, models.AddMemberRequest{
		UserID:  activeStudent().ID,
		SubRole: "STUDENT",
	}, models.RequestMeta{})
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestAddMemberMentorSubRoleRequiresMentorRole(t *testing.T) {
	repo := newCohortRepoStub()
	svc := newCohortTestService(repo, &auditRepoStub{})
	cohort := seedCohort(repo, true)

	_, err := svc.AddMember(context.Background(), adminClaims(), cohort.ID, models.AddMemberRequest{
		UserID:  activeStudent().ID,
		SubRole: "MENTOR",
	}, models.RequestMeta{})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	member, err := svc.AddMember(context.Background(), adminClaims(), cohort.ID, models.AddMemberRequest{
		UserID:  activeMentor().ID,
		SubRole: "MENTOR",
	}, models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.CohortRoleMentor, member.SubRole)
}

func TestRemoveMemberKeepsHistory(t *testing.T) {
	repo := newCohortRepoStub()
	svc := newCohortTestService(repo, &auditRepoStub{})
	cohort := seedCohort(repo, true)

	_, err := svc.AddMember(context.Background(), adminClaims(), cohort.ID, models.AddMemberRequest{
		UserID:  activeStudent().ID,
		SubRole: "STUDENT",
	}, models.RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveMember(context.Background(), adminClaims(), cohort.ID, activeStudent().ID, models.RequestMeta{}))

	// Row survives, just inactive.
	require.Len(t, repo.memberships, 1)
	require.False(t, repo.memberships[0].Active)

	err = svc.RemoveMember(context.Background(), adminClaims(), cohort.ID, activeStudent().ID, models.RequestMeta{})
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestListMembersAuthorization(t *testing.T) {
	repo := newCohortRepoStub()
	svc := newCohortTestService(repo, &auditRepoStub{})
	cohort := seedCohort(repo, true)
	other := seedCohort(repo, true)

	mentor := activeMentor()
	_, err := svc.AddMember(context.Background(), adminClaims(), cohort.ID, models.AddMemberRequest{
		UserID:  mentor.ID,
		SubRole: "MENTOR",
	}, models.RequestMeta{})
	require.NoError(t, err)
	_, err = svc.AddMember(context.Background(), adminClaims(), cohort.ID, models.AddMemberRequest{
		UserID:  activeStudent().ID,
		SubRole: "STUDENT",
	}, models.RequestMeta{})
	require.NoError(t, err)

	mentorClaims := &models.JWTClaims{UserID: mentor.ID, Role: models.RoleMentor}

	members, err := svc.ListMembers(context.Background(), mentorClaims, cohort.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	// A mentor cannot read a cohort they do not mentor.
	_, err = svc.ListMembers(context.Background(), mentorClaims, other.ID)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	// Students never get the roster.
	student := &models.JWTClaims{UserID: activeStudent().ID, Role: models.RoleStudent}
	_, err = svc.ListMembers(context.Background(), student, cohort.ID)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	// Admins see any cohort.
	members, err = svc.ListMembers(context.Background(), adminClaims(), other.ID)
	require.NoError(t, err)
	require.Empty(t, members)
}
